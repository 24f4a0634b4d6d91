package browser

import (
	"context"
	"errors"
	"time"

	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/RecoveryAshes/ExamCrawler/internal/utils"
)

// withRetry 在 fn 返回 ErrElementNotFound 时以固定间隔重试, 共调用 attempts 次
// 其他错误立即返回
func withRetry[T any](ctx context.Context, attempts int, backoff time.Duration, fn func() (T, error)) (T, error) {
	budget := models.NewRetryBudget(attempts)
	for {
		v, err := fn()
		if err == nil || !errors.Is(err, models.ErrElementNotFound) {
			return v, err
		}
		if !budget.Spend() {
			return v, err
		}
		if err := utils.Sleep(ctx, backoff); err != nil {
			var zero T
			return zero, err
		}
	}
}
