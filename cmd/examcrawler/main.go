package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/ExamCrawler/internal/core"
	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/RecoveryAshes/ExamCrawler/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers        []string
	validateConfig bool

	// 爬取参数
	seedURLs        []string
	urlFile         string
	pageLimit       int
	retryPerPage    int
	captchaRetries  int
	route           string
	headless        bool
	resume          bool
	outputDir       string
	outputFormat    string
	continueOnError bool
	seedDelay       string
)

// appConfig 由 PersistentPreRunE 加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "examcrawler",
	Short: "题库分页爬取工具",
	Long: `ExamCrawler - 分页题库爬取工具

从种子地址开始沿"下一页"链接逐页提取题目,支持:
  • 直连、缓存镜像、抓取代理三种获取路径
  • 自动处理"我不是机器人"人机验证 (浏览器 + 验证码识别服务)
  • 断点续爬和多种子批量处理
  • JSON / YAML 输出
  • 自定义HTTP请求头

示例:
  # 单个种子, 最多10页
  examcrawler -u https://www.examtopics.com/exams/amazon/aws-certified-developer-associate/view/ -p 10

  # 种子文件 + 代理
  examcrawler -f seeds.txt --route proxied

  # 验证配置文件
  examcrawler --validate-config

密钥通过环境变量或 .env 提供:
  EXAMCRAWLER_CAPTCHA_API_KEY, EXAMCRAWLER_PROXY_API_KEY

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		logConfig := config.LogConfig()
		if logLevel != "" {
			logConfig.Level = logLevel
		} else if verbose {
			logConfig.Level = "debug"
		}
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}
		appConfig = config
		return nil
	},
	RunE: runCrawl,
}

func runCrawl(cmd *cobra.Command, args []string) error {
	headerManager, err := core.NewHeaderManager(appConfig.Headers, headers)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}

	if validateConfig {
		return runValidateConfig(headerManager)
	}

	overrides, err := collectOverrides(cmd)
	if err != nil {
		return err
	}
	appConfig.MergeCLIFlags(overrides)

	if len(appConfig.Crawl.Seeds) == 0 && appConfig.Crawl.SeedFile == "" {
		return cmd.Help()
	}

	if err := appConfig.Validate(); err != nil {
		return err
	}
	seeds, err := appConfig.ResolveSeeds()
	if err != nil {
		return err
	}

	// Ctrl+C 取消当前页面并写出报告
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	crawler, err := core.NewCrawler(appConfig, headerManager)
	if err != nil {
		return fmt.Errorf("创建爬取器失败: %w", err)
	}

	utils.Infof("运行ID: %s", crawler.RunID())
	utils.Debugf("HTTP头部: %s", utils.NewHeaderRedactor().RedactToString(headerManager.GetMergedHeaders()))

	report, err := crawler.Run(ctx, seeds)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			utils.Warn("收到中断信号,已保存断点,可使用 --resume 继续")
			return nil
		}
		return err
	}

	if report.Failed > 0 && report.Succeeded == 0 {
		return fmt.Errorf("全部种子失败")
	}
	utils.Info("✨ 爬取任务完成!")
	return nil
}

func runValidateConfig(headerManager *core.HeaderManager) error {
	utils.Info("🔍 验证配置...")
	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("HTTP头部验证失败: %w", err)
	}

	if appConfig.Captcha.APIKey == "" {
		utils.Warn("⚠️ 未配置 captcha.api_key, 遇到人机验证时无法继续")
	}
	if appConfig.Crawl.FetchRoute != models.RouteDirect && appConfig.Proxy.APIKey == "" {
		utils.Warnf("⚠️ 路由策略 %s 需要配置 proxy.api_key", appConfig.Crawl.FetchRoute)
	}

	safeHeaders := headerManager.GetSafeHeaders()
	utils.Info("✅ 配置验证通过!")
	utils.Infof("路由策略: %s, 每页重试: %d, 页数上限: %d",
		appConfig.Crawl.FetchRoute, appConfig.Crawl.RetryPerPage, appConfig.Crawl.PageLimit)
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
	for name, value := range safeHeaders {
		utils.Infof("  %s: %s", name, value)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ExamCrawler %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 爬取参数
	rootCmd.Flags().StringArrayVarP(&seedURLs, "url", "u", nil, "种子地址,可多次指定")
	rootCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "种子文件路径 (每行一个URL)")
	rootCmd.Flags().IntVarP(&pageLimit, "pages", "p", 0, "每个种子最多处理的页数 (0=不限)")
	rootCmd.Flags().IntVar(&retryPerPage, "retries", 5, "每页验证框刷新/元素查找次数 (1-50)")
	rootCmd.Flags().IntVar(&captchaRetries, "captcha-retries", 3, "验证码识别尝试次数")
	rootCmd.Flags().StringVar(&route, "route", "direct", "获取路径 (direct|cached|proxied)")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.Flags().BoolVar(&resume, "resume", false, "从检查点恢复")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "output", "输出目录")
	rootCmd.Flags().StringVar(&outputFormat, "format", "json", "输出格式 (json|yaml)")
	rootCmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "种子失败时继续处理下一个")
	rootCmd.Flags().StringVar(&seedDelay, "seed-delay", "1s", "种子之间的等待时间")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(doctorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
