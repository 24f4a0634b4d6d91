package captcha

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/RecoveryAshes/ExamCrawler/internal/models"
)

const (
	clickMarker = "click:"
	gridCells   = 9
)

var positionPattern = regexp.MustCompile(`\d+`)

// ParseClickAnswer 解析 "OK|click:2,5,9" 形式的识别结果
// 只解析 click: 之后的整数, 序号必须在 1..9 内; 没有 click: 标记视为服务认为无匹配图片
func ParseClickAnswer(text string) (models.CaptchaSolution, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, okPrefix) {
		return models.CaptchaSolution{}, &models.SolveRequestError{Stage: "result", Response: text}
	}

	payload := text[len(okPrefix):]
	idx := strings.Index(payload, clickMarker)
	if idx < 0 {
		return models.CaptchaSolution{NoAnswer: true}, nil
	}

	matches := positionPattern.FindAllString(payload[idx+len(clickMarker):], -1)
	if len(matches) == 0 {
		return models.CaptchaSolution{NoAnswer: true}, nil
	}

	positions := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m)
		if err != nil || n < 1 || n > gridCells {
			return models.CaptchaSolution{}, &models.SolveRequestError{Stage: "result", Response: text}
		}
		positions = append(positions, n)
	}

	return models.CaptchaSolution{Positions: positions}, nil
}
