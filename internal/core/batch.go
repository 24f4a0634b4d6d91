package core

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/RecoveryAshes/ExamCrawler/internal/utils"
)

// Run 依次处理所有种子并生成报告
// 单个种子失败时按 continue_on_error 决定是否继续; context取消时立即停止
func (c *Crawler) Run(ctx context.Context, seeds []string) (*models.CrawlReport, error) {
	report := &models.CrawlReport{
		RunID:      c.runID,
		Route:      c.router.Strategy(),
		PageLimit:  c.cfg.Crawl.PageLimit,
		StartTime:  time.Now(),
		TotalSeeds: len(seeds),
		Seeds:      make([]models.SeedReport, 0, len(seeds)),
	}

	writer, err := c.openWriter()
	if err != nil {
		return nil, err
	}
	defer writer.Close()
	report.OutputFile = writer.Path()

	utils.Infof("🚀 开始爬取: %d个种子, 路由=%s, 页数上限=%d", len(seeds), report.Route, report.PageLimit)

	total := -1
	if c.cfg.Crawl.PageLimit > 0 {
		total = c.cfg.Crawl.PageLimit * len(seeds)
	}
	bar := utils.NewProgressBar(total, "📄 爬取页面")

	for i, seed := range seeds {
		utils.Infof("==================== [%d/%d] ====================", i+1, len(seeds))
		utils.Infof("种子: %s", seed)

		result := c.crawlSeed(ctx, seed, writer, bar)
		report.Seeds = append(report.Seeds, result)
		report.TotalPages += result.PagesVisited
		report.TotalRecords += result.Records

		if result.StopReason.Succeeded() {
			report.Succeeded++
			utils.Infof("✅ 种子完成: %s (%d页, %d条, %s)", seed, result.PagesVisited, result.Records, result.StopReason)
		} else {
			report.Failed++
			utils.Errorf("❌ 种子失败: %s (%s): %s", seed, result.StopReason, result.Error)

			if result.StopReason == models.StopCancelled {
				break
			}
			if !c.cfg.Crawl.ContinueOnError {
				utils.Warn("爬取中止 (--continue-on-error=false)")
				break
			}
		}

		if i < len(seeds)-1 && c.cfg.Crawl.SeedDelay > 0 {
			utils.Debugf("等待 %s 后处理下一个种子...", c.cfg.Crawl.SeedDelay)
			if err := utils.Sleep(ctx, c.cfg.Crawl.SeedDelay); err != nil {
				break
			}
		}
	}
	bar.Finish()

	if err := writer.Close(); err != nil {
		utils.Warnf("关闭记录文件失败: %v", err)
	}

	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime).Seconds()

	reporter := utils.NewReporter(c.cfg.Output.BaseDir)
	if err := reporter.GenerateReport(report); err != nil {
		utils.Warnf("生成报告失败: %v", err)
	}

	printSummary(report)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("爬取被中断: %w", err)
	}
	return report, nil
}

// printSummary 打印爬取摘要
func printSummary(report *models.CrawlReport) {
	utils.Info("==================================================")
	utils.Info("📊 爬取摘要")
	utils.Info("==================================================")
	utils.Infof("种子数: %d", report.TotalSeeds)
	utils.Infof("✅ 成功: %d", report.Succeeded)
	utils.Infof("❌ 失败: %d", report.Failed)
	utils.Infof("📄 页数: %d", report.TotalPages)
	utils.Infof("📝 记录数: %d", report.TotalRecords)
	utils.Infof("📦 输出文件: %s", report.OutputFile)
	utils.Infof("⏱️  总耗时: %.2f秒", report.Duration)
	utils.Info("==================================================")

	if report.Failed > 0 {
		utils.Warn("失败的种子:")
		for _, seed := range report.Seeds {
			if !seed.StopReason.Succeeded() {
				utils.Warnf("  - %s [%s]: %s", seed.SeedURL, seed.StopReason, seed.Error)
			}
		}
	}
}
