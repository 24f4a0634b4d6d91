package crawlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/RecoveryAshes/ExamCrawler/internal/utils"
	"github.com/rs/zerolog"
)

// ErrFetchFailed 静态获取页面失败
var ErrFetchFailed = errors.New("页面获取失败")

// PageRouter 选择页面获取路径
type PageRouter interface {
	Resolve(ctx context.Context, target string, pageNumber int) (models.PageRequest, error)
}

// Fetcher 静态页面获取
type Fetcher interface {
	Fetch(ctx context.Context, req models.PageRequest) (*models.FetchedPage, error)
}

// BrowserSession 驱动器使用的浏览器会话
type BrowserSession interface {
	ChallengeSession
	Navigate(ctx context.Context, url string) error
	CurrentSource(ctx context.Context) (string, error)
	Close() error
}

// SessionFactory 打开新的浏览器会话
type SessionFactory func(ctx context.Context) (BrowserSession, error)

// CapacityGate 启动浏览器前的资源检查
type CapacityGate interface {
	WaitForCapacity(ctx context.Context) error
}

// RecordSink 接收提取出的记录
type RecordSink interface {
	Write(q *models.Question) error
}

// PageHook 每处理完一页后回调
type PageHook func(state *models.CrawlState, outcome models.PageOutcome)

// CrawlDriver 单个种子的翻页驱动
type CrawlDriver struct {
	router      PageRouter
	fetcher     Fetcher
	extractor   *QuestionExtractor
	resolver    *ChallengeResolver
	openSession SessionFactory
	gate        CapacityGate
	sink        RecordSink
	onPage      PageHook
	log         zerolog.Logger
}

// DriverOption 驱动器选项
type DriverOption func(*CrawlDriver)

// WithCapacityGate 启动浏览器前检查资源
func WithCapacityGate(gate CapacityGate) DriverOption {
	return func(d *CrawlDriver) {
		d.gate = gate
	}
}

// WithPageHook 每页处理后回调 (断点、进度)
func WithPageHook(hook PageHook) DriverOption {
	return func(d *CrawlDriver) {
		d.onPage = hook
	}
}

// NewCrawlDriver 创建驱动器
func NewCrawlDriver(
	router PageRouter,
	fetcher Fetcher,
	resolver *ChallengeResolver,
	openSession SessionFactory,
	sink RecordSink,
	opts ...DriverOption,
) *CrawlDriver {
	d := &CrawlDriver{
		router:      router,
		fetcher:     fetcher,
		extractor:   NewQuestionExtractor(),
		resolver:    resolver,
		openSession: openSession,
		sink:        sink,
		log:         utils.Component("driver"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Crawl 从 state.CurrentURL 开始逐页处理, 直到最后一页、页数上限或致命错误
func (d *CrawlDriver) Crawl(ctx context.Context, state *models.CrawlState) (models.StopReason, error) {
	for {
		if err := ctx.Err(); err != nil {
			return models.StopCancelled, err
		}
		if state.LimitReached() {
			d.log.Info().Int("pages", state.PagesVisited).Msg("已达到页数上限")
			return models.StopPageLimit, nil
		}

		outcome, err := d.ProcessPage(ctx, state)
		if err != nil {
			return classifyStop(ctx, err), err
		}

		if d.onPage != nil {
			d.onPage(state, outcome)
		}

		if outcome.Kind == models.OutcomeDone {
			d.log.Info().Int("pages", state.PagesVisited).Msg("🏁 已到达最后一页")
			return models.StopLastPage, nil
		}
		state.MoveTo(outcome.NextURL)
	}
}

// ProcessPage 处理 state.CurrentURL 指向的一页
func (d *CrawlDriver) ProcessPage(ctx context.Context, state *models.CrawlState) (models.PageOutcome, error) {
	target := state.CurrentURL
	pageNumber := state.PagesVisited + 1

	req, err := d.router.Resolve(ctx, target, pageNumber)
	if err != nil {
		return models.PageOutcome{}, err
	}

	d.log.Info().
		Int("page", pageNumber).
		Str("url", target).
		Str("route", string(req.Route)).
		Msg("📄 处理页面")

	fetched, err := d.fetcher.Fetch(ctx, req)
	if err != nil {
		return models.PageOutcome{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	body := fetched.Body
	baseURL := target

	gated, err := HasRobotGate(body)
	if err != nil {
		return models.PageOutcome{}, err
	}
	switch {
	case gated:
		body, baseURL, err = d.bypass(ctx, target)
		if err != nil {
			return models.PageOutcome{}, err
		}
	case fetched.StatusCode >= 400:
		return models.PageOutcome{}, fmt.Errorf("%w: HTTP状态码 %d [%s]", ErrFetchFailed, fetched.StatusCode, utils.RedactURL(req.FetchURL))
	}

	questions, err := d.extractor.Extract(baseURL, body)
	state.Advance()
	if err != nil {
		return models.PageOutcome{}, err
	}

	for _, q := range questions {
		if err := d.sink.Write(q); err != nil {
			return models.PageOutcome{}, fmt.Errorf("写入记录失败: %w", err)
		}
	}

	next, ok, err := d.extractor.NextPage(baseURL, body)
	if err != nil {
		return models.PageOutcome{}, err
	}

	d.log.Info().Int("page", pageNumber).Int("records", len(questions)).Bool("has_next", ok).Msg("页面处理完成")
	if !ok {
		return models.LastPage(len(questions)), nil
	}
	return models.ContinueTo(next, len(questions)), nil
}

// bypass 在浏览器中打开目标页并清除人机验证, 返回验证后的DOM和当前地址
// 会话在所有返回路径上关闭
func (d *CrawlDriver) bypass(ctx context.Context, target string) ([]byte, string, error) {
	if d.gate != nil {
		if err := d.gate.WaitForCapacity(ctx); err != nil {
			return nil, "", err
		}
	}

	session, err := d.openSession(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("打开浏览器会话失败: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			d.log.Warn().Err(err).Msg("关闭浏览器会话失败")
		}
	}()

	if err := session.Navigate(ctx, target); err != nil {
		return nil, "", err
	}

	if _, err := d.resolver.Resolve(ctx, session); err != nil {
		return nil, "", err
	}

	d.dismissDisclaimer(ctx, session)

	source, err := session.CurrentSource(ctx)
	if err != nil {
		return nil, "", err
	}

	baseURL := session.CurrentURL()
	if baseURL == "" || baseURL == "about:blank" {
		baseURL = target
	}
	return []byte(source), baseURL, nil
}

// dismissDisclaimer 关闭最后一页的提示框, 失败时忽略
func (d *CrawlDriver) dismissDisclaimer(ctx context.Context, session BrowserSession) {
	visible, err := session.Exists(ctx, LocatorLastPageDisclaimer)
	if err != nil || !visible {
		return
	}
	if err := session.Click(ctx, LocatorLastPageDisclaimer); err != nil {
		d.log.Debug().Err(err).Msg("关闭提示框失败,忽略")
		return
	}
	d.log.Debug().Msg("已关闭最后一页提示框")
}

func classifyStop(ctx context.Context, err error) models.StopReason {
	switch {
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		return models.StopCancelled
	case errors.Is(err, models.ErrUnableToBypassCaptcha):
		return models.StopCaptchaBlocked
	case errors.Is(err, ErrFetchFailed):
		return models.StopFetchFailed
	default:
		return models.StopError
	}
}
