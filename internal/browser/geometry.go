package browser

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/go-rod/rod/lib/proto"
)

// AbsoluteBounds 将元素在所属框架内的位置换算为顶层页面坐标
// frameOffset 为框架左上角在顶层页面中的位置
func AbsoluteBounds(frameOffset, location models.Point, size models.Size) models.Bounds {
	top := int(math.Round(frameOffset.Y + location.Y))
	left := int(math.Round(frameOffset.X + location.X))
	return models.Bounds{
		Top:    top,
		Left:   left,
		Bottom: top + int(math.Round(size.Height)),
		Right:  left + int(math.Round(size.Width)),
	}
}

// localRectScript 读取元素相对所属框架视口的边框盒和边框宽度
const localRectScript = `() => {
	const r = this.getBoundingClientRect();
	return JSON.stringify({x: r.x, y: r.y, width: r.width, height: r.height, clientLeft: this.clientLeft, clientTop: this.clientTop});
}`

// localRect 元素在所属框架内的位置
type localRect struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	ClientLeft float64 `json:"clientLeft"`
	ClientTop  float64 `json:"clientTop"`
}

func parseLocalRect(raw string) (localRect, error) {
	var r localRect
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return localRect{}, fmt.Errorf("解析元素位置失败: %w", err)
	}
	return r, nil
}

// box 外接矩形, 宽高为0时元素不可见
func (r localRect) box() (models.Point, models.Size, bool) {
	if r.Width <= 0 || r.Height <= 0 {
		return models.Point{}, models.Size{}, false
	}
	return models.Point{X: r.X, Y: r.Y}, models.Size{Width: r.Width, Height: r.Height}, true
}

// contentOrigin iframe内容区左上角, 即边框盒加上边框宽度
func (r localRect) contentOrigin() models.Point {
	return models.Point{X: r.X + r.ClientLeft, Y: r.Y + r.ClientTop}
}

// clipOf 将区域转换为截图裁剪参数
func clipOf(b models.Bounds) *proto.PageViewport {
	return &proto.PageViewport{
		X:      float64(b.Left),
		Y:      float64(b.Top),
		Width:  float64(b.Width()),
		Height: float64(b.Height()),
		Scale:  1,
	}
}
