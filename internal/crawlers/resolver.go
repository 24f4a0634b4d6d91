package crawlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/RecoveryAshes/ExamCrawler/internal/utils"
	"github.com/rs/zerolog"
)

// ChallengeSession 人机验证流程需要的浏览器操作
type ChallengeSession interface {
	Exists(ctx context.Context, locator string) (bool, error)
	Click(ctx context.Context, locator string) error
	Text(ctx context.Context, locator string) (string, error)
	EnterFrame(ctx context.Context, locator string) error
	ExitFrame()
	ElementRegion(ctx context.Context, locator string) (models.Bounds, error)
	ScreenshotRegion(ctx context.Context, bounds models.Bounds) ([]byte, error)
	Reload(ctx context.Context) error
	CurrentURL() string
}

// Solver 验证码识别服务
type Solver interface {
	SolveWithRetry(ctx context.Context, challenge models.CaptchaChallenge) (models.CaptchaSolution, error)
}

// ResolverConfig 人机验证流程配置
type ResolverConfig struct {
	RetryPerPage    int           // 验证框异常时的刷新次数上限
	MaxRounds       int           // 验证框反复出现时的最多轮数
	ChallengeSettle time.Duration // 提交后等待验证框刷新
}

// ResolveResult 一次关卡的处理结果
type ResolveResult struct {
	Gated     bool // 页面是否出现人机验证入口
	Rounds    int  // 成功提交验证的轮数
	Refreshes int  // 因验证框异常刷新页面的次数
}

// ChallengeResolver 处理"我不是机器人"入口及其图片验证
type ChallengeResolver struct {
	cfg    ResolverConfig
	solver Solver
	sleep  func(ctx context.Context, d time.Duration) error
	log    zerolog.Logger
}

// NewChallengeResolver 创建处理器
func NewChallengeResolver(cfg ResolverConfig, solver Solver) *ChallengeResolver {
	if cfg.RetryPerPage < 1 {
		cfg.RetryPerPage = 1
	}
	if cfg.MaxRounds < 1 {
		cfg.MaxRounds = 1
	}
	return &ChallengeResolver{
		cfg:    cfg,
		solver: solver,
		sleep:  utils.Sleep,
		log:    utils.Component("resolver"),
	}
}

// Resolve 清除当前页面上的人机验证
// 没有入口时直接返回; 验证框元素缺失时刷新页面重试, 达到上限返回 BypassError;
// 识别服务最终失败同样返回 BypassError
func (r *ChallengeResolver) Resolve(ctx context.Context, s ChallengeSession) (ResolveResult, error) {
	var result ResolveResult

	gated, err := s.Exists(ctx, LocatorRobotGate)
	if err != nil {
		return result, r.fail(ctx, s, result, err)
	}
	if !gated {
		return result, nil
	}
	result.Gated = true

	r.log.Info().Str("url", s.CurrentURL()).Msg("🤖 检测到人机验证,开始处理")
	if err := s.Click(ctx, LocatorRobotGate); err != nil {
		return result, r.fail(ctx, s, result, err)
	}

	retries := models.NewRetryBudget(r.cfg.RetryPerPage)
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		visible, err := s.Exists(ctx, LocatorCaptchaFrame)
		if err != nil {
			return result, r.fail(ctx, s, result, err)
		}
		if !visible {
			r.log.Info().
				Int("rounds", result.Rounds).
				Int("refreshes", result.Refreshes).
				Msg("✅ 人机验证已通过")
			return result, nil
		}

		if result.Rounds >= r.cfg.MaxRounds {
			return result, r.fail(ctx, s, result, fmt.Errorf("验证轮数超过上限 %d", r.cfg.MaxRounds))
		}
		err = r.attempt(ctx, s)
		if err == nil {
			result.Rounds++
			continue
		}
		if !errors.Is(err, models.ErrElementNotFound) {
			return result, r.fail(ctx, s, result, err)
		}

		// 验证框内容不完整: 刷新页面后重新进入
		retries.Spend()
		result.Refreshes++
		r.log.Warn().
			Err(err).
			Int("retry", retries.Used()).
			Int("max_retries", retries.Limit()).
			Msg("⚠️ 验证框元素缺失,刷新页面")

		if err := s.Reload(ctx); err != nil {
			return result, r.fail(ctx, s, result, err)
		}
		if retries.Exhausted() {
			return result, r.fail(ctx, s, result, err)
		}
		if err := r.reopenGate(ctx, s); err != nil {
			return result, r.fail(ctx, s, result, err)
		}
	}
}

// attempt 完成一轮图片验证
func (r *ChallengeResolver) attempt(ctx context.Context, s ChallengeSession) error {
	if err := s.EnterFrame(ctx, LocatorCaptchaFrame); err != nil {
		return err
	}
	defer s.ExitFrame()

	instructions, err := s.Text(ctx, LocatorCaptchaDescription)
	if err != nil {
		return err
	}
	bounds, err := s.ElementRegion(ctx, LocatorCaptchaGrid)
	if err != nil {
		return err
	}
	image, err := s.ScreenshotRegion(ctx, bounds)
	if err != nil {
		return err
	}

	solution, err := r.solver.SolveWithRetry(ctx, models.CaptchaChallenge{
		Image:        image,
		Instructions: instructions,
		PageURL:      s.CurrentURL(),
		FrameLocator: LocatorCaptchaFrame,
	})
	if err != nil {
		return err
	}

	if solution.NoAnswer {
		r.log.Debug().Str("task", instructions).Msg("识别服务未找到匹配图片,跳过本轮")
	}
	for _, n := range solution.Positions {
		if err := s.Click(ctx, TileLocator(n)); err != nil {
			return err
		}
	}
	if err := s.Click(ctx, LocatorCaptchaVerify); err != nil {
		return err
	}

	return r.sleep(ctx, r.cfg.ChallengeSettle)
}

// reopenGate 刷新后入口可能重新出现, 再次点击
func (r *ChallengeResolver) reopenGate(ctx context.Context, s ChallengeSession) error {
	gated, err := s.Exists(ctx, LocatorRobotGate)
	if err != nil || !gated {
		return err
	}
	return s.Click(ctx, LocatorRobotGate)
}

func (r *ChallengeResolver) fail(ctx context.Context, s ChallengeSession, result ResolveResult, cause error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &models.BypassError{
		URL:     s.CurrentURL(),
		Retries: result.Refreshes,
		Cause:   cause,
	}
}
