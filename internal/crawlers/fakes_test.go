package crawlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/ExamCrawler/internal/models"
)

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

// fakeSession 记录所有浏览器操作
type fakeSession struct {
	gate        bool  // 入口是否可见
	frameChecks int   // 验证框可见的剩余检查次数, -1 表示一直可见
	disclaimer  bool  // 最后一页提示框
	enterErr    error // EnterFrame 返回的错误
	textErr     error // 进入框架后 Text 返回的错误
	regionErr   error // 进入框架后 ElementRegion 返回的错误
	source      string
	url         string

	clicks    []string
	navigated []string
	enters    int
	exits     int
	reloads   int
	closed    int
}

func (s *fakeSession) Exists(ctx context.Context, locator string) (bool, error) {
	switch locator {
	case LocatorRobotGate:
		return s.gate, nil
	case LocatorCaptchaFrame:
		if s.frameChecks < 0 {
			return true, nil
		}
		if s.frameChecks > 0 {
			s.frameChecks--
			return true, nil
		}
		return false, nil
	case LocatorLastPageDisclaimer:
		return s.disclaimer, nil
	}
	return false, nil
}

func (s *fakeSession) Click(ctx context.Context, locator string) error {
	s.clicks = append(s.clicks, locator)
	return nil
}

func (s *fakeSession) Text(ctx context.Context, locator string) (string, error) {
	if s.textErr != nil {
		return "", s.textErr
	}
	return "Please click each image containing a bus", nil
}

func (s *fakeSession) EnterFrame(ctx context.Context, locator string) error {
	s.enters++
	return s.enterErr
}

func (s *fakeSession) ExitFrame() { s.exits++ }

func (s *fakeSession) ElementRegion(ctx context.Context, locator string) (models.Bounds, error) {
	if s.regionErr != nil {
		return models.Bounds{}, s.regionErr
	}
	return models.Bounds{Top: 10, Left: 10, Bottom: 310, Right: 310}, nil
}

func (s *fakeSession) ScreenshotRegion(ctx context.Context, bounds models.Bounds) ([]byte, error) {
	return []byte("jpeg"), nil
}

func (s *fakeSession) Reload(ctx context.Context) error {
	s.reloads++
	return nil
}

func (s *fakeSession) CurrentURL() string { return s.url }

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.navigated = append(s.navigated, url)
	if s.url == "" {
		s.url = url
	}
	return nil
}

func (s *fakeSession) CurrentSource(ctx context.Context) (string, error) {
	return s.source, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

func (s *fakeSession) clicked(locator string) int {
	n := 0
	for _, c := range s.clicks {
		if c == locator {
			n++
		}
	}
	return n
}

// fakeSolver 返回固定结果
type fakeSolver struct {
	solution models.CaptchaSolution
	err      error
	calls    int
	last     models.CaptchaChallenge
}

func (s *fakeSolver) SolveWithRetry(ctx context.Context, challenge models.CaptchaChallenge) (models.CaptchaSolution, error) {
	s.calls++
	s.last = challenge
	return s.solution, s.err
}

// fakeFetcher 按FetchURL返回预置页面
type fakeFetcher struct {
	pages map[string]*models.FetchedPage
	err   error
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, req models.PageRequest) (*models.FetchedPage, error) {
	f.calls = append(f.calls, req.FetchURL)
	if f.err != nil {
		return nil, f.err
	}
	page, ok := f.pages[req.FetchURL]
	if !ok {
		return &models.FetchedPage{Request: req, StatusCode: http.StatusNotFound, Body: []byte("<html></html>")}, nil
	}
	page.Request = req
	return page, nil
}

// directRouter 直连路由
type directRouter struct{}

func (directRouter) Resolve(ctx context.Context, target string, pageNumber int) (models.PageRequest, error) {
	return models.PageRequest{TargetURL: target, FetchURL: target, Route: models.RouteDirect, PageNumber: pageNumber}, nil
}

// memorySink 收集记录
type memorySink struct {
	records []*models.Question
}

func (s *memorySink) Write(q *models.Question) error {
	s.records = append(s.records, q)
	return nil
}

// examPage 生成题目列表页, nextHref 为空时没有下一页
func examPage(questions int, nextHref string, gated bool) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if gated {
		b.WriteString(`<form><button class="g-recaptcha btn">I'm not a robot</button></form>`)
	}
	b.WriteString(`<div class="questions-container">`)
	for i := 1; i <= questions; i++ {
		fmt.Fprintf(&b, `<div class="card exam-question-card">
<div class="card-header text-white bg-primary">Question #%d <span class="question-title-topic">Topic 1</span></div>
<div class="card-body question-body">
<p class="card-text">Which service stores objects?</p>
<div class="question-choices-container"><ul>
<li class="multi-choice-item"><span class="multi-choice-letter">A.</span> Queue</li>
<li class="multi-choice-item"><span class="multi-choice-letter">B.</span> Bucket</li>
</ul></div>
<p class="question-answer bg-light"><span class="correct-answer-box"><span class="correct-answer">B</span></span><span class="answer-description">Buckets hold objects.</span></p>
<a class="question-discussion-button"><span class="badge">%d</span></a>
</div>
</div>`, i, i*3)
	}
	b.WriteString(`</div>`)
	if nextHref != "" {
		fmt.Fprintf(&b, `<a class="btn btn-success pull-right" href="%s">Next Questions</a>`, nextHref)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func okPage(body string) *models.FetchedPage {
	return &models.FetchedPage{StatusCode: http.StatusOK, Body: []byte(body)}
}
