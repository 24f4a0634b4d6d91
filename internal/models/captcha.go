package models

// CaptchaChallenge 一次待识别的图片验证
type CaptchaChallenge struct {
	Image        []byte // JPEG
	Instructions string
	PageURL      string
	FrameLocator string
}

// CaptchaSolution 识别结果
// Positions 为 3x3 网格中从1开始的格子序号, 按点击顺序排列
type CaptchaSolution struct {
	Positions []int
	NoAnswer  bool
}

// Point 页面坐标
type Point struct {
	X float64
	Y float64
}

// Size 元素尺寸
type Size struct {
	Width  float64
	Height float64
}

// Bounds 元素在顶层页面中的绝对区域
type Bounds struct {
	Top    int
	Left   int
	Bottom int
	Right  int
}

// Width 区域宽度
func (b Bounds) Width() int { return b.Right - b.Left }

// Height 区域高度
func (b Bounds) Height() int { return b.Bottom - b.Top }

// Empty 区域是否为空
func (b Bounds) Empty() bool { return b.Width() <= 0 || b.Height() <= 0 }

// RetryBudget 单个操作的重试计数
type RetryBudget struct {
	limit int
	used  int
}

// NewRetryBudget 创建重试计数, limit 小于1时按1处理
func NewRetryBudget(limit int) *RetryBudget {
	if limit < 1 {
		limit = 1
	}
	return &RetryBudget{limit: limit}
}

// Spend 消耗一次重试, 返回是否仍有剩余
func (b *RetryBudget) Spend() bool {
	b.used++
	return b.used < b.limit
}

// Used 已消耗次数
func (b *RetryBudget) Used() int { return b.used }

// Limit 上限
func (b *RetryBudget) Limit() int { return b.limit }

// Exhausted 是否已耗尽
func (b *RetryBudget) Exhausted() bool { return b.used >= b.limit }
