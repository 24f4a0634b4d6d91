package models

import (
	"fmt"
	"time"
)

// RouteStrategy 页面获取路由策略
type RouteStrategy string

const (
	RouteDirect  RouteStrategy = "direct"  // 直接请求目标站点
	RouteCached  RouteStrategy = "cached"  // 优先通过缓存镜像(经代理)获取,不可用时直连
	RouteProxied RouteStrategy = "proxied" // 始终通过抓取代理获取
)

// ParseRouteStrategy 解析路由策略名称
func ParseRouteStrategy(name string) (RouteStrategy, error) {
	switch RouteStrategy(name) {
	case RouteDirect, RouteCached, RouteProxied:
		return RouteStrategy(name), nil
	case "":
		return RouteDirect, nil
	default:
		return "", fmt.Errorf("无效的路由策略: %s (可选: direct|cached|proxied)", name)
	}
}

// PageRequest 单个页面的获取请求
// TargetURL 为站点上的真实地址, FetchURL 为实际发出请求的地址(可能是缓存或代理地址)
type PageRequest struct {
	TargetURL  string        `json:"target_url"`
	FetchURL   string        `json:"fetch_url"`
	Route      RouteStrategy `json:"route"`
	PageNumber int           `json:"page_number"`
}

// FetchedPage 静态获取到的页面
type FetchedPage struct {
	Request    PageRequest
	StatusCode int
	Body       []byte
}

// CrawlState 单个种子的遍历状态
type CrawlState struct {
	SeedURL      string
	CurrentURL   string
	PagesVisited int
	PageLimit    int // 0 表示不限制
}

// NewCrawlState 创建遍历状态
func NewCrawlState(seedURL string, pageLimit int) *CrawlState {
	return &CrawlState{
		SeedURL:    seedURL,
		CurrentURL: seedURL,
		PageLimit:  pageLimit,
	}
}

// LimitReached 是否已达到页数上限
func (s *CrawlState) LimitReached() bool {
	return s.PageLimit > 0 && s.PagesVisited >= s.PageLimit
}

// Advance 记录一个已处理页面
func (s *CrawlState) Advance() {
	s.PagesVisited++
}

// MoveTo 切换到下一页
func (s *CrawlState) MoveTo(nextURL string) {
	s.CurrentURL = nextURL
}

// OutcomeKind 页面处理结果类型
type OutcomeKind int

const (
	OutcomeContinue OutcomeKind = iota // 存在下一页
	OutcomeDone                        // 最后一页,正常结束
)

func (k OutcomeKind) String() string {
	if k == OutcomeDone {
		return "done"
	}
	return "continue"
}

// PageOutcome 页面处理结果
type PageOutcome struct {
	Kind    OutcomeKind
	NextURL string
	Records int
}

// ContinueTo 返回继续遍历的结果
func ContinueTo(nextURL string, records int) PageOutcome {
	return PageOutcome{Kind: OutcomeContinue, NextURL: nextURL, Records: records}
}

// LastPage 返回到达最后一页的结果
func LastPage(records int) PageOutcome {
	return PageOutcome{Kind: OutcomeDone, Records: records}
}

// StopReason 种子遍历结束原因
type StopReason string

const (
	StopLastPage       StopReason = "last_page"
	StopPageLimit      StopReason = "page_limit"
	StopCaptchaBlocked StopReason = "captcha_blocked"
	StopFetchFailed    StopReason = "fetch_failed"
	StopCancelled      StopReason = "cancelled"
	StopError          StopReason = "error"
)

// Succeeded 是否属于正常结束
func (r StopReason) Succeeded() bool {
	return r == StopLastPage || r == StopPageLimit
}

// CrawlConfig 遍历配置
type CrawlConfig struct {
	Seeds              []string      `mapstructure:"seeds" json:"seeds"`
	SeedFile           string        `mapstructure:"seed_file" json:"seed_file,omitempty"`
	PageLimit          int           `mapstructure:"page_limit" json:"page_limit"`                     // 每个种子最多处理的页数, 0=不限
	RetryPerPage       int           `mapstructure:"retry_per_page" json:"retry_per_page"`             // 元素查找/验证框重试上限
	FetchRoute         RouteStrategy `mapstructure:"fetch_route" json:"fetch_route"`                   // direct|cached|proxied
	Headless           bool          `mapstructure:"headless" json:"headless"`                         // 无头浏览器
	ElementBackoff     time.Duration `mapstructure:"element_backoff" json:"element_backoff"`           // 元素查找重试间隔
	ClickSettle        time.Duration `mapstructure:"click_settle" json:"click_settle"`                 // 点击后等待
	ChallengeSettle    time.Duration `mapstructure:"challenge_settle" json:"challenge_settle"`         // 提交验证后等待
	MaxChallengeRounds int           `mapstructure:"max_challenge_rounds" json:"max_challenge_rounds"` // 单次关卡最多的验证轮数
	PageLoadTimeout    time.Duration `mapstructure:"page_load_timeout" json:"page_load_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout" json:"request_timeout"`
	SeedDelay          time.Duration `mapstructure:"seed_delay" json:"seed_delay"`
	ContinueOnError    bool          `mapstructure:"continue_on_error" json:"continue_on_error"`
	Resume             bool          `mapstructure:"resume" json:"resume"`
}

// Validate 验证配置
func (c *CrawlConfig) Validate() error {
	if c.PageLimit < 0 {
		return fmt.Errorf("页数上限不能为负数")
	}
	if c.RetryPerPage < 1 || c.RetryPerPage > 50 {
		return fmt.Errorf("每页重试次数必须在1-50之间")
	}
	if _, err := ParseRouteStrategy(string(c.FetchRoute)); err != nil {
		return err
	}
	if c.MaxChallengeRounds < 1 {
		return fmt.Errorf("验证轮数上限必须大于0")
	}
	if c.ElementBackoff < 0 || c.ClickSettle < 0 || c.ChallengeSettle < 0 || c.SeedDelay < 0 {
		return fmt.Errorf("等待时间不能为负数")
	}
	return nil
}
