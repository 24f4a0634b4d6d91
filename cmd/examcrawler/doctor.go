package main

import (
	"fmt"
	"runtime"

	"github.com/RecoveryAshes/ExamCrawler/internal/crawlers"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"
)

// doctorCmd 检查运行环境
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "检查运行环境 (浏览器、密钥、内存)",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("==============================================")
		fmt.Println("  ExamCrawler 环境检查")
		fmt.Println("==============================================")

		allOK := true

		fmt.Printf("✅ Go版本: %s\n", runtime.Version())
		fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

		if appConfig.Browser.Bin != "" {
			fmt.Printf("✅ 浏览器 (配置): %s\n", appConfig.Browser.Bin)
		} else if path, ok := launcher.LookPath(); ok {
			fmt.Printf("✅ 浏览器: %s\n", path)
		} else {
			fmt.Println("⚠️  未找到本地Chromium, 首次遇到人机验证时将自动下载")
		}

		if appConfig.Captcha.APIKey != "" {
			fmt.Println("✅ 验证码识别服务密钥已配置")
		} else {
			fmt.Println("❌ 未配置验证码识别服务密钥 (EXAMCRAWLER_CAPTCHA_API_KEY)")
			allOK = false
		}

		if appConfig.Proxy.APIKey != "" {
			fmt.Println("✅ 抓取代理密钥已配置")
		} else {
			fmt.Println("⚠️  未配置抓取代理密钥, 只能使用 direct 路由")
		}

		status, err := crawlers.NewResourceGuard(appConfig.Resource).MemoryStatus()
		if err != nil {
			fmt.Printf("⚠️  无法读取内存信息: %v\n", err)
		} else {
			fmt.Printf("✅ 可用内存: %d MB / %d MB (%s)\n",
				status.AvailableMemory/(1024*1024), status.TotalMemory/(1024*1024), status.MemoryPressure)
		}

		fmt.Println("==============================================")
		if !allOK {
			return fmt.Errorf("环境检查未通过")
		}
		fmt.Println("✨ 环境检查通过")
		return nil
	},
}
