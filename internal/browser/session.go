// Package browser 基于Rod的浏览器会话, 供人机验证流程使用
package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/RecoveryAshes/ExamCrawler/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

const jpegQuality = 90

// Config 会话配置
type Config struct {
	Headless        bool
	NoSandbox       bool
	BrowserBin      string        // 为空时由launcher自动查找或下载
	Headers         http.Header   // User-Agent 及额外请求头
	PageLoadTimeout time.Duration // 导航和加载超时
	ElementRetries  int           // 元素查找次数
	ElementBackoff  time.Duration // 元素查找间隔
	ClickSettle     time.Duration // 点击后等待
}

type frameContext struct {
	page   *rod.Page
	offset models.Point
}

// Session 单个浏览器会话
// 由 Open 创建, 调用方负责在所有路径上调用 Close
type Session struct {
	cfg      Config
	launcher *launcher.Launcher
	browser  *rod.Browser
	root     *rod.Page
	frames   []frameContext
	launched bool
	closed   bool
	log      zerolog.Logger
}

// Open 启动浏览器并创建空白页
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.ElementRetries < 1 {
		cfg.ElementRetries = 1
	}
	if cfg.PageLoadTimeout <= 0 {
		cfg.PageLoadTimeout = 60 * time.Second
	}

	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		Set("ignore-certificate-errors").
		Set("disable-blink-features", "AutomationControlled")
	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}

	s := &Session{
		cfg:      cfg,
		launcher: l,
		log:      utils.Component("browser"),
	}

	controlURL, err := l.Launch()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}
	s.launched = true

	s.browser = rod.New().ControlURL(controlURL)
	if err := s.browser.Connect(); err != nil {
		s.browser = nil
		s.Close()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}
	s.root = page

	if err := s.applyHeaders(); err != nil {
		s.Close()
		return nil, err
	}

	s.log.Debug().Str("control_url", controlURL).Bool("headless", cfg.Headless).Msg("浏览器已启动")
	return s, nil
}

func (s *Session) applyHeaders() error {
	if len(s.cfg.Headers) == 0 {
		return nil
	}

	if ua := s.cfg.Headers.Get("User-Agent"); ua != "" {
		if err := s.root.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			return fmt.Errorf("设置User-Agent失败: %w", err)
		}
	}

	var extra []string
	for name, values := range s.cfg.Headers {
		switch strings.ToLower(name) {
		case "user-agent", "accept-encoding":
			// 由浏览器自行管理
			continue
		}
		if len(values) > 0 {
			extra = append(extra, name, values[0])
		}
	}
	if len(extra) > 0 {
		if _, err := s.root.SetExtraHeaders(extra); err != nil {
			return fmt.Errorf("设置请求头失败: %w", err)
		}
	}
	return nil
}

// current 当前操作的页面(顶层页面或已进入的框架)
func (s *Session) current() *rod.Page {
	if n := len(s.frames); n > 0 {
		return s.frames[n-1].page
	}
	return s.root
}

func (s *Session) offset() models.Point {
	if n := len(s.frames); n > 0 {
		return s.frames[n-1].offset
	}
	return models.Point{}
}

// Navigate 打开URL并等待加载完成
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.frames = nil
	page := s.root.Context(ctx).Timeout(s.cfg.PageLoadTimeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("导航失败 [%s]: %w", utils.RedactURL(url), err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败 [%s]: %w", utils.RedactURL(url), err)
	}
	s.log.Debug().Str("url", utils.RedactURL(url)).Msg("页面加载完成")
	return nil
}

// Reload 刷新顶层页面
func (s *Session) Reload(ctx context.Context) error {
	s.frames = nil
	page := s.root.Context(ctx).Timeout(s.cfg.PageLoadTimeout)
	if err := page.Reload(); err != nil {
		return fmt.Errorf("刷新页面失败: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败: %w", err)
	}
	return nil
}

// lookup 单次查找元素, 不存在时返回 ErrElementNotFound
func (s *Session) lookup(ctx context.Context, locator string) (*rod.Element, error) {
	has, el, err := s.current().Context(ctx).HasX(locator)
	if err != nil {
		return nil, fmt.Errorf("查找元素失败 [%s]: %w", locator, err)
	}
	if !has {
		return nil, models.ErrElementNotFound
	}
	return el, nil
}

// FindElement 查找元素, 按配置次数和间隔重试
func (s *Session) FindElement(ctx context.Context, locator string) (*rod.Element, error) {
	el, err := withRetry(ctx, s.cfg.ElementRetries, s.cfg.ElementBackoff, func() (*rod.Element, error) {
		return s.lookup(ctx, locator)
	})
	if err != nil {
		if err == models.ErrElementNotFound {
			return nil, fmt.Errorf("%w: %s", models.ErrElementNotFound, locator)
		}
		return nil, err
	}
	return el, nil
}

// Exists 元素是否存在且可见, 不重试
func (s *Session) Exists(ctx context.Context, locator string) (bool, error) {
	el, err := s.lookup(ctx, locator)
	if err == models.ErrElementNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	visible, err := el.Context(ctx).Visible()
	if err != nil {
		return false, nil
	}
	return visible, nil
}

// Text 读取元素文本
func (s *Session) Text(ctx context.Context, locator string) (string, error) {
	el, err := s.FindElement(ctx, locator)
	if err != nil {
		return "", err
	}
	text, err := el.Context(ctx).Text()
	if err != nil {
		return "", fmt.Errorf("读取元素文本失败 [%s]: %w", locator, err)
	}
	return strings.TrimSpace(text), nil
}

// Click 查找并点击元素
func (s *Session) Click(ctx context.Context, locator string) error {
	el, err := s.FindElement(ctx, locator)
	if err != nil {
		return err
	}
	return s.ClickElement(ctx, el)
}

// ClickElement 通过脚本点击元素, 避免遮挡层拦截真实鼠标事件
func (s *Session) ClickElement(ctx context.Context, el *rod.Element) error {
	if _, err := el.Context(ctx).Eval(`() => this.click()`); err != nil {
		return fmt.Errorf("点击元素失败: %w", err)
	}
	return utils.Sleep(ctx, s.cfg.ClickSettle)
}

// EnterFrame 进入iframe, 后续查找都在该框架内进行
func (s *Session) EnterFrame(ctx context.Context, locator string) error {
	el, err := s.FindElement(ctx, locator)
	if err != nil {
		return err
	}

	rect, err := s.localRect(ctx, el)
	if err != nil {
		return fmt.Errorf("获取框架位置失败 [%s]: %w", locator, err)
	}
	if _, _, ok := rect.box(); !ok {
		return fmt.Errorf("%w: 框架不可见 %s", models.ErrElementNotFound, locator)
	}

	frame, err := el.Context(ctx).Frame()
	if err != nil {
		return fmt.Errorf("进入框架失败 [%s]: %w", locator, err)
	}

	parent, origin := s.offset(), rect.contentOrigin()
	s.frames = append(s.frames, frameContext{
		page:   frame,
		offset: models.Point{X: parent.X + origin.X, Y: parent.Y + origin.Y},
	})
	return nil
}

// ExitFrame 返回上一级框架, 已在顶层时无操作
func (s *Session) ExitFrame() {
	if n := len(s.frames); n > 0 {
		s.frames = s.frames[:n-1]
	}
}

// ElementRegion 返回元素在顶层页面中的绝对区域
func (s *Session) ElementRegion(ctx context.Context, locator string) (models.Bounds, error) {
	el, err := s.FindElement(ctx, locator)
	if err != nil {
		return models.Bounds{}, err
	}
	rect, err := s.localRect(ctx, el)
	if err != nil {
		return models.Bounds{}, fmt.Errorf("获取元素位置失败 [%s]: %w", locator, err)
	}
	location, size, ok := rect.box()
	if !ok {
		return models.Bounds{}, fmt.Errorf("%w: 元素不可见 %s", models.ErrElementNotFound, locator)
	}
	return AbsoluteBounds(s.offset(), location, size), nil
}

// localRect 读取元素在所属框架视口内的位置
// 框架内元素的坐标只相对该框架, 顶层坐标由 EnterFrame 累计的偏移换算
func (s *Session) localRect(ctx context.Context, el *rod.Element) (localRect, error) {
	res, err := el.Context(ctx).Eval(localRectScript)
	if err != nil {
		return localRect{}, err
	}
	return parseLocalRect(res.Value.Str())
}

// ScreenshotRegion 截取顶层页面视口中的指定区域, 返回JPEG
func (s *Session) ScreenshotRegion(ctx context.Context, bounds models.Bounds) ([]byte, error) {
	if bounds.Empty() {
		return nil, fmt.Errorf("截图区域为空: %+v", bounds)
	}
	quality := jpegQuality
	data, err := s.root.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: &quality,
		Clip:    clipOf(bounds),
	})
	if err != nil {
		return nil, fmt.Errorf("截图失败: %w", err)
	}
	return data, nil
}

// CurrentSource 当前页面的DOM
func (s *Session) CurrentSource(ctx context.Context) (string, error) {
	html, err := s.current().Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("读取页面源码失败: %w", err)
	}
	return html, nil
}

// CurrentURL 顶层页面当前地址
func (s *Session) CurrentURL() string {
	info, err := s.root.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close 关闭浏览器并清理进程, 可重复调用
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.frames = nil

	var closeErr error
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			closeErr = fmt.Errorf("关闭浏览器失败: %w", err)
		}
	}
	if s.launched {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}

	s.log.Debug().Msg("浏览器已关闭")
	return closeErr
}
