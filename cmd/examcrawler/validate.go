package main

import (
	"fmt"
	"time"

	"github.com/RecoveryAshes/ExamCrawler/internal/core"
	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/RecoveryAshes/ExamCrawler/internal/output"
	"github.com/spf13/cobra"
)

// ValidateFlags 验证命令行标志
func ValidateFlags(seeds []string, pages, retries, captchaRetries int, route, format string) error {
	for _, seed := range seeds {
		if err := models.ValidateURL(seed); err != nil {
			return fmt.Errorf("无效的种子地址 %s: %w", seed, err)
		}
	}

	if pages < 0 {
		return fmt.Errorf("页数上限不能为负数,当前值: %d", pages)
	}
	if retries < 1 || retries > 50 {
		return fmt.Errorf("每页重试次数必须在1-50之间,当前值: %d", retries)
	}
	if captchaRetries < 1 || captchaRetries > 20 {
		return fmt.Errorf("验证码识别尝试次数必须在1-20之间,当前值: %d", captchaRetries)
	}
	if _, err := models.ParseRouteStrategy(route); err != nil {
		return err
	}
	if _, err := output.ParseFormat(format); err != nil {
		return err
	}
	return nil
}

// collectOverrides 收集显式指定的命令行参数
func collectOverrides(cmd *cobra.Command) (core.CLIOverrides, error) {
	if err := ValidateFlags(seedURLs, pageLimit, retryPerPage, captchaRetries, route, outputFormat); err != nil {
		return core.CLIOverrides{}, err
	}

	flags := cmd.Flags()
	o := core.CLIOverrides{Seeds: seedURLs}

	if flags.Changed("url-file") {
		o.SeedFile = &urlFile
	}
	if flags.Changed("pages") {
		o.PageLimit = &pageLimit
	}
	if flags.Changed("retries") {
		o.RetryPerPage = &retryPerPage
	}
	if flags.Changed("captcha-retries") {
		o.CaptchaRetries = &captchaRetries
	}
	if flags.Changed("route") {
		o.Route = &route
	}
	if flags.Changed("headless") {
		o.Headless = &headless
	}
	if flags.Changed("resume") {
		o.Resume = &resume
	}
	if flags.Changed("output") {
		o.OutputDir = &outputDir
	}
	if flags.Changed("format") {
		o.Format = &outputFormat
	}
	if flags.Changed("continue-on-error") {
		o.ContinueOnError = &continueOnError
	}
	if flags.Changed("seed-delay") {
		d, err := time.ParseDuration(seedDelay)
		if err != nil || d < 0 {
			return core.CLIOverrides{}, fmt.Errorf("无效的种子间隔: %s", seedDelay)
		}
		o.SeedDelay = &d
	}
	return o, nil
}
