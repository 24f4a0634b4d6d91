// Package captcha 对接 2captcha 兼容的图片验证码识别服务
package captcha

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/RecoveryAshes/ExamCrawler/internal/utils"
	"github.com/rs/zerolog"
)

const (
	// DefaultSubmitURL 默认提交地址
	DefaultSubmitURL = "http://2captcha.com/in.php"
	// DefaultResultURL 默认结果查询地址
	DefaultResultURL = "http://2captcha.com/res.php"

	notReadyMarker = "CAPCHA_NOT_READY"
	okPrefix       = "OK|"
	maxBodySize    = 64 * 1024
)

// Config 识别服务配置
type Config struct {
	APIKey         string        `mapstructure:"api_key"`
	SubmitURL      string        `mapstructure:"submit_url"`
	ResultURL      string        `mapstructure:"result_url"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`   // 每次查询结果前的等待
	MaxPolls       int           `mapstructure:"max_polls"`       // 单个任务最多查询次数
	MaxAttempts    int           `mapstructure:"max_attempts"`    // 提交+查询的完整尝试次数
	Language       string        `mapstructure:"language"`        // 任务说明语言
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // 单次HTTP请求超时
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		SubmitURL:      DefaultSubmitURL,
		ResultURL:      DefaultResultURL,
		PollInterval:   5 * time.Second,
		MaxPolls:       60,
		MaxAttempts:    3,
		Language:       "en",
		RequestTimeout: 30 * time.Second,
	}
}

// Client 识别服务客户端, 不在调用之间保存状态
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 使用自定义HTTP客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient 创建客户端
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: 未配置验证码识别服务密钥 (captcha.api_key)", models.ErrInvalidConfig)
	}

	defaults := DefaultConfig()
	if cfg.SubmitURL == "" {
		cfg.SubmitURL = defaults.SubmitURL
	}
	if cfg.ResultURL == "" {
		cfg.ResultURL = defaults.ResultURL
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Language == "" {
		cfg.Language = defaults.Language
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.RequestTimeout},
		log:  utils.Component("captcha"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit 提交验证码图片, 返回任务ID
func (c *Client) Submit(ctx context.Context, image []byte, instructions string) (string, error) {
	form := url.Values{
		"key":              {c.cfg.APIKey},
		"method":           {"base64"},
		"recaptcha":        {"1"},
		"body":             {base64.StdEncoding.EncodeToString(image)},
		"lang":             {c.cfg.Language},
		"textinstructions": {instructions},
		"recaptcharows":    {"3"},
		"recaptchacols":    {"3"},
		"can_no_answer":    {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SubmitURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("创建提交请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	text, err := c.do(req)
	if err != nil {
		return "", &models.SolveRequestError{Stage: "submit", Cause: err}
	}

	if !strings.HasPrefix(text, okPrefix) || len(text) == len(okPrefix) {
		return "", &models.SolveRequestError{Stage: "submit", Response: text}
	}

	id := text[len(okPrefix):]
	c.log.Debug().Str("task_id", id).Int("image_bytes", len(image)).Msg("验证码已提交")
	return id, nil
}

// Solve 轮询任务结果
// 每次查询前等待 PollInterval, 服务返回未就绪时继续, 查询次数受 MaxPolls 限制
func (c *Client) Solve(ctx context.Context, id string) (models.CaptchaSolution, error) {
	query := url.Values{
		"key":    {c.cfg.APIKey},
		"action": {"get"},
		"id":     {id},
	}
	resultURL := c.cfg.ResultURL + "?" + query.Encode()

	for poll := 1; ; poll++ {
		if err := utils.Sleep(ctx, c.cfg.PollInterval); err != nil {
			return models.CaptchaSolution{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
		if err != nil {
			return models.CaptchaSolution{}, fmt.Errorf("创建查询请求失败: %w", err)
		}

		text, err := c.do(req)
		if err != nil {
			return models.CaptchaSolution{}, &models.SolveRequestError{Stage: "result", Cause: err}
		}

		if strings.Contains(text, notReadyMarker) {
			if c.cfg.MaxPolls > 0 && poll >= c.cfg.MaxPolls {
				return models.CaptchaSolution{}, &models.SolveRequestError{
					Stage:    "result",
					Response: fmt.Sprintf("%s (已查询%d次)", text, poll),
				}
			}
			c.log.Debug().Str("task_id", id).Int("poll", poll).Msg("识别结果未就绪")
			continue
		}

		solution, err := ParseClickAnswer(text)
		if err != nil {
			return models.CaptchaSolution{}, err
		}
		c.log.Debug().Str("task_id", id).Int("polls", poll).Ints("positions", solution.Positions).Msg("获得识别结果")
		return solution, nil
	}
}

// SolveWithRetry 提交并等待结果, 识别请求失败时重试, 最多 MaxAttempts 次
func (c *Client) SolveWithRetry(ctx context.Context, challenge models.CaptchaChallenge) (models.CaptchaSolution, error) {
	budget := models.NewRetryBudget(c.cfg.MaxAttempts)

	for {
		solution, err := c.solveOnce(ctx, challenge)
		if err == nil {
			return solution, nil
		}
		if ctx.Err() != nil {
			return models.CaptchaSolution{}, ctx.Err()
		}
		if !errors.Is(err, models.ErrSolveRequest) {
			return models.CaptchaSolution{}, err
		}

		c.log.Warn().
			Err(err).
			Int("attempt", budget.Used()+1).
			Int("max_attempts", budget.Limit()).
			Str("page", challenge.PageURL).
			Msg("⚠️ 验证码识别失败")

		if !budget.Spend() {
			return models.CaptchaSolution{}, fmt.Errorf("验证码识别失败,已尝试%d次: %w", budget.Used(), err)
		}
	}
}

func (c *Client) solveOnce(ctx context.Context, challenge models.CaptchaChallenge) (models.CaptchaSolution, error) {
	id, err := c.Submit(ctx, challenge.Image, challenge.Instructions)
	if err != nil {
		return models.CaptchaSolution{}, err
	}
	return c.Solve(ctx, id)
}

func (c *Client) do(req *http.Request) (string, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP状态码 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}
