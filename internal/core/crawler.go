package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/ExamCrawler/internal/browser"
	"github.com/RecoveryAshes/ExamCrawler/internal/captcha"
	"github.com/RecoveryAshes/ExamCrawler/internal/crawlers"
	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/RecoveryAshes/ExamCrawler/internal/output"
	"github.com/RecoveryAshes/ExamCrawler/internal/utils"
	"github.com/schollz/progressbar/v3"
)

// PageSource 静态获取器, 同时提供缓存镜像探测
type PageSource interface {
	crawlers.Fetcher
	crawlers.Prober
}

// Crawler 主爬取器协调器
// 按配置组装路由、获取器、验证处理器和浏览器会话, 依次处理每个种子
type Crawler struct {
	cfg     *Config
	headers models.HeaderProvider
	runID   string

	source      PageSource
	router      *crawlers.Router
	resolver    *crawlers.ChallengeResolver
	solver      crawlers.Solver
	openSession crawlers.SessionFactory
	guard       crawlers.CapacityGate

	checkpointDir string
}

// Option 爬取器选项
type Option func(*Crawler)

// WithSolver 使用指定的验证码识别服务
func WithSolver(solver crawlers.Solver) Option {
	return func(c *Crawler) {
		c.solver = solver
	}
}

// WithSessionFactory 使用指定的浏览器会话工厂
func WithSessionFactory(open crawlers.SessionFactory) Option {
	return func(c *Crawler) {
		c.openSession = open
	}
}

// WithPageSource 使用指定的页面获取器
func WithPageSource(source PageSource) Option {
	return func(c *Crawler) {
		c.source = source
	}
}

// WithCapacityGate 使用指定的资源闸门
func WithCapacityGate(gate crawlers.CapacityGate) Option {
	return func(c *Crawler) {
		c.guard = gate
	}
}

// NewCrawler 创建主爬取器
func NewCrawler(cfg *Config, headers models.HeaderProvider, opts ...Option) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Crawler{
		cfg:           cfg,
		headers:       headers,
		runID:         models.NewRunID(),
		checkpointDir: filepath.Join(cfg.Output.BaseDir, "checkpoints"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.solver == nil {
		client, err := captcha.NewClient(cfg.Captcha)
		if err != nil {
			return nil, err
		}
		c.solver = client
	}
	if c.source == nil {
		c.source = crawlers.NewPageFetcher(cfg.Crawl.RequestTimeout, headers)
	}
	if c.openSession == nil {
		c.openSession = c.openBrowser
	}
	if c.guard == nil {
		c.guard = crawlers.NewResourceGuard(cfg.Resource)
	}

	router, err := crawlers.NewRouter(cfg.Crawl.FetchRoute, cfg.Proxy, c.source)
	if err != nil {
		return nil, err
	}
	c.router = router

	c.resolver = crawlers.NewChallengeResolver(crawlers.ResolverConfig{
		RetryPerPage:    cfg.Crawl.RetryPerPage,
		MaxRounds:       cfg.Crawl.MaxChallengeRounds,
		ChallengeSettle: cfg.Crawl.ChallengeSettle,
	}, c.solver)

	return c, nil
}

// RunID 本次运行的ID
func (c *Crawler) RunID() string {
	return c.runID
}

// openBrowser 启动新的浏览器会话
func (c *Crawler) openBrowser(ctx context.Context) (crawlers.BrowserSession, error) {
	var headers http.Header
	if c.headers != nil {
		h, err := c.headers.GetHeaders()
		if err != nil {
			return nil, err
		}
		headers = h
	}

	utils.Infof("🌐 启动浏览器 (headless=%v)", c.cfg.Crawl.Headless)
	session, err := browser.Open(ctx, browser.Config{
		Headless:        c.cfg.Crawl.Headless,
		NoSandbox:       c.cfg.Browser.NoSandbox,
		BrowserBin:      c.cfg.Browser.Bin,
		Headers:         headers,
		PageLoadTimeout: c.cfg.Crawl.PageLoadTimeout,
		ElementRetries:  c.cfg.Crawl.RetryPerPage,
		ElementBackoff:  c.cfg.Crawl.ElementBackoff,
		ClickSettle:     c.cfg.Crawl.ClickSettle,
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// crawlSeed 处理单个种子, 每页处理完成后保存断点
func (c *Crawler) crawlSeed(ctx context.Context, seed string, sink crawlers.RecordSink, bar *progressbar.ProgressBar) models.SeedReport {
	started := time.Now()
	report := models.SeedReport{SeedURL: seed}

	state := models.NewCrawlState(seed, c.cfg.Crawl.PageLimit)
	checkpoint := c.loadCheckpoint(seed)
	if checkpoint != nil {
		if checkpoint.Finished {
			utils.Infof("⏭️  种子已完成,跳过: %s (%d页)", seed, checkpoint.PagesVisited)
			report.PagesVisited = checkpoint.PagesVisited
			report.StopReason = checkpoint.StopReason
			return report
		}
		state.CurrentURL = checkpoint.NextURL
		state.PagesVisited = checkpoint.PagesVisited
		checkpoint.RunID = c.runID
		utils.Infof("🔄 从断点恢复: %s (已处理%d页)", checkpoint.NextURL, checkpoint.PagesVisited)
	} else {
		checkpoint = models.NewCheckpoint(c.runID, seed)
	}

	hook := func(state *models.CrawlState, outcome models.PageOutcome) {
		report.Records += outcome.Records
		checkpoint.Record(state, outcome)
		c.saveCheckpoint(checkpoint)
		if bar != nil {
			bar.Add(1)
		}
	}

	driver := crawlers.NewCrawlDriver(c.router, c.source, c.resolver, c.openSession, sink,
		crawlers.WithCapacityGate(c.guard),
		crawlers.WithPageHook(hook),
	)

	reason, err := driver.Crawl(ctx, state)

	report.StopReason = reason
	report.PagesVisited = state.PagesVisited
	report.Duration = time.Since(started).Seconds()

	checkpoint.StopReason = reason
	checkpoint.Finished = reason.Succeeded()
	checkpoint.LastError = ""
	if err != nil {
		report.Error = err.Error()
		checkpoint.LastError = err.Error()
	}
	c.saveCheckpoint(checkpoint)

	return report
}

func (c *Crawler) checkpointPath(seed string) string {
	return filepath.Join(c.checkpointDir, models.CheckpointFilename(seed))
}

// loadCheckpoint 仅在 resume 模式下读取断点, 不存在或损坏时返回 nil
func (c *Crawler) loadCheckpoint(seed string) *models.Checkpoint {
	if !c.cfg.Crawl.Resume {
		return nil
	}
	cp, err := models.LoadCheckpointFromFile(c.checkpointPath(seed))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			utils.Warnf("读取断点失败,从头开始 [%s]: %v", seed, err)
		}
		return nil
	}
	if cp.SeedURL != seed || cp.NextURL == "" {
		utils.Warnf("断点与种子不匹配,从头开始: %s", seed)
		return nil
	}
	return cp
}

func (c *Crawler) saveCheckpoint(cp *models.Checkpoint) {
	if err := os.MkdirAll(c.checkpointDir, 0755); err != nil {
		utils.Warnf("创建断点目录失败: %v", err)
		return
	}
	if err := cp.SaveToFile(c.checkpointPath(cp.SeedURL)); err != nil {
		utils.Warnf("保存断点失败: %v", err)
	}
}

// openWriter 创建记录输出文件
func (c *Crawler) openWriter() (*output.RecordWriter, error) {
	format, err := output.ParseFormat(c.cfg.Output.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
	}
	return output.NewRecordWriter(c.cfg.Output.BaseDir, format, time.Now())
}
