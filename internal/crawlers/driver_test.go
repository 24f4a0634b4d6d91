package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/RecoveryAshes/ExamCrawler/internal/models"
)

const examBase = "https://exam.example.com/exam"

func newTestDriver(fetcher Fetcher, session *fakeSession, solver Solver, sink RecordSink, opts ...DriverOption) *CrawlDriver {
	resolver := newTestResolver(2, 5, solver)
	open := func(ctx context.Context) (BrowserSession, error) {
		if session == nil {
			return nil, errors.New("没有可用的浏览器")
		}
		return session, nil
	}
	return NewCrawlDriver(directRouter{}, fetcher, resolver, open, sink, opts...)
}

func TestCrawlDriver(t *testing.T) {
	t.Run("没有下一页时只处理一页", func(t *testing.T) {
		fetcher := &fakeFetcher{pages: map[string]*models.FetchedPage{
			examBase + "/1": okPage(examPage(4, "", false)),
		}}
		sink := &memorySink{}
		state := models.NewCrawlState(examBase+"/1", 0)

		reason, err := newTestDriver(fetcher, nil, &fakeSolver{}, sink).Crawl(context.Background(), state)
		if err != nil {
			t.Fatalf("不应返回错误: %v", err)
		}
		if reason != models.StopLastPage {
			t.Errorf("停止原因 = %s", reason)
		}
		if state.PagesVisited != 1 || len(sink.records) != 4 {
			t.Errorf("pages=%d records=%d", state.PagesVisited, len(sink.records))
		}
	})

	t.Run("沿下一页链接遍历到最后一页", func(t *testing.T) {
		fetcher := &fakeFetcher{pages: map[string]*models.FetchedPage{
			examBase + "/1": okPage(examPage(2, "/exam/2", false)),
			examBase + "/2": okPage(examPage(2, "3", false)),
			examBase + "/3": okPage(examPage(1, "", false)),
		}}
		sink := &memorySink{}
		var outcomes []models.PageOutcome
		hook := func(state *models.CrawlState, outcome models.PageOutcome) {
			outcomes = append(outcomes, outcome)
		}
		state := models.NewCrawlState(examBase+"/1", 0)

		reason, err := newTestDriver(fetcher, nil, &fakeSolver{}, sink, WithPageHook(hook)).Crawl(context.Background(), state)
		if err != nil || reason != models.StopLastPage {
			t.Fatalf("reason=%s err=%v", reason, err)
		}
		if state.PagesVisited != 3 || len(sink.records) != 5 {
			t.Errorf("pages=%d records=%d", state.PagesVisited, len(sink.records))
		}
		if len(outcomes) != 3 {
			t.Fatalf("回调次数 = %d", len(outcomes))
		}
		if outcomes[0].NextURL != examBase+"/2" || outcomes[1].NextURL != examBase+"/3" {
			t.Errorf("下一页地址不符: %+v", outcomes)
		}
		if outcomes[2].Kind != models.OutcomeDone {
			t.Errorf("最后一页结果 = %s", outcomes[2].Kind)
		}
	})

	t.Run("达到页数上限后停止", func(t *testing.T) {
		pages := map[string]*models.FetchedPage{}
		for i := 1; i <= 10; i++ {
			pages[fmt.Sprintf("%s/%d", examBase, i)] = okPage(examPage(1, fmt.Sprintf("/exam/%d", i+1), false))
		}
		fetcher := &fakeFetcher{pages: pages}
		state := models.NewCrawlState(examBase+"/1", 3)

		reason, err := newTestDriver(fetcher, nil, &fakeSolver{}, &memorySink{}).Crawl(context.Background(), state)
		if err != nil || reason != models.StopPageLimit {
			t.Fatalf("reason=%s err=%v", reason, err)
		}
		if state.PagesVisited != 3 || len(fetcher.calls) != 3 {
			t.Errorf("pages=%d fetches=%d", state.PagesVisited, len(fetcher.calls))
		}
	})

	t.Run("人机验证通过后从浏览器DOM提取", func(t *testing.T) {
		fetcher := &fakeFetcher{pages: map[string]*models.FetchedPage{
			examBase + "/1": {StatusCode: http.StatusForbidden, Body: []byte(examPage(0, "", true))},
		}}
		session := &fakeSession{
			gate:        true,
			frameChecks: 1,
			disclaimer:  true,
			source:      examPage(3, "", false),
		}
		solver := &fakeSolver{solution: models.CaptchaSolution{Positions: []int{4}}}
		sink := &memorySink{}
		state := models.NewCrawlState(examBase+"/1", 0)

		reason, err := newTestDriver(fetcher, session, solver, sink).Crawl(context.Background(), state)
		if err != nil || reason != models.StopLastPage {
			t.Fatalf("reason=%s err=%v", reason, err)
		}
		if len(sink.records) != 3 {
			t.Errorf("records = %d", len(sink.records))
		}
		if session.closed != 1 {
			t.Errorf("会话关闭次数 = %d", session.closed)
		}
		if len(session.navigated) != 1 || session.navigated[0] != examBase+"/1" {
			t.Errorf("导航记录 = %v", session.navigated)
		}
		if session.clicked(LocatorLastPageDisclaimer) != 1 {
			t.Errorf("应关闭最后一页提示框, clicks=%v", session.clicks)
		}
	})

	t.Run("人机验证失败时停止当前种子", func(t *testing.T) {
		fetcher := &fakeFetcher{pages: map[string]*models.FetchedPage{
			examBase + "/1": okPage(examPage(0, "", true)),
		}}
		session := &fakeSession{gate: true, frameChecks: -1, enterErr: models.ErrElementNotFound}
		sink := &memorySink{}
		state := models.NewCrawlState(examBase+"/1", 0)

		reason, err := newTestDriver(fetcher, session, &fakeSolver{}, sink).Crawl(context.Background(), state)
		if reason != models.StopCaptchaBlocked {
			t.Errorf("停止原因 = %s", reason)
		}
		if !errors.Is(err, models.ErrUnableToBypassCaptcha) {
			t.Errorf("期望 ErrUnableToBypassCaptcha, 实际 %v", err)
		}
		if session.closed != 1 {
			t.Errorf("失败时也应关闭会话, closed=%d", session.closed)
		}
		if session.reloads != 2 {
			t.Errorf("刷新次数 = %d", session.reloads)
		}
		if state.PagesVisited != 0 || len(sink.records) != 0 {
			t.Errorf("pages=%d records=%d", state.PagesVisited, len(sink.records))
		}
	})

	t.Run("浏览器启动失败", func(t *testing.T) {
		fetcher := &fakeFetcher{pages: map[string]*models.FetchedPage{
			examBase + "/1": okPage(examPage(0, "", true)),
		}}
		reason, err := newTestDriver(fetcher, nil, &fakeSolver{}, &memorySink{}).Crawl(context.Background(), models.NewCrawlState(examBase+"/1", 0))
		if err == nil || reason != models.StopError {
			t.Errorf("reason=%s err=%v", reason, err)
		}
	})

	t.Run("获取失败", func(t *testing.T) {
		fetcher := &fakeFetcher{err: errors.New("connection refused")}
		reason, err := newTestDriver(fetcher, nil, &fakeSolver{}, &memorySink{}).Crawl(context.Background(), models.NewCrawlState(examBase+"/1", 0))
		if reason != models.StopFetchFailed || !errors.Is(err, ErrFetchFailed) {
			t.Errorf("reason=%s err=%v", reason, err)
		}
	})

	t.Run("非验证页的错误状态码", func(t *testing.T) {
		fetcher := &fakeFetcher{pages: map[string]*models.FetchedPage{
			examBase + "/1": {StatusCode: http.StatusInternalServerError, Body: []byte("<html>oops</html>")},
		}}
		reason, err := newTestDriver(fetcher, nil, &fakeSolver{}, &memorySink{}).Crawl(context.Background(), models.NewCrawlState(examBase+"/1", 0))
		if reason != models.StopFetchFailed || !errors.Is(err, ErrFetchFailed) {
			t.Errorf("reason=%s err=%v", reason, err)
		}
	})

	t.Run("context取消", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		fetcher := &fakeFetcher{}
		reason, err := newTestDriver(fetcher, nil, &fakeSolver{}, &memorySink{}).Crawl(ctx, models.NewCrawlState(examBase+"/1", 0))
		if reason != models.StopCancelled || !errors.Is(err, context.Canceled) {
			t.Errorf("reason=%s err=%v", reason, err)
		}
		if len(fetcher.calls) != 0 {
			t.Errorf("取消后不应发出请求, calls=%v", fetcher.calls)
		}
	})

	t.Run("启动浏览器前等待资源", func(t *testing.T) {
		fetcher := &fakeFetcher{pages: map[string]*models.FetchedPage{
			examBase + "/1": okPage(examPage(0, "", true)),
		}}
		session := &fakeSession{gate: true, frameChecks: 0, source: examPage(1, "", false)}
		gate := &countingGate{}

		reason, err := newTestDriver(fetcher, session, &fakeSolver{}, &memorySink{}, WithCapacityGate(gate)).
			Crawl(context.Background(), models.NewCrawlState(examBase+"/1", 0))
		if err != nil || reason != models.StopLastPage {
			t.Fatalf("reason=%s err=%v", reason, err)
		}
		if gate.calls != 1 {
			t.Errorf("资源检查次数 = %d", gate.calls)
		}
	})
}

type countingGate struct {
	calls int
}

func (g *countingGate) WaitForCapacity(ctx context.Context) error {
	g.calls++
	return nil
}

func TestClassifyStop(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		err  error
		want models.StopReason
	}{
		{"人机验证失败", &models.BypassError{URL: examBase}, models.StopCaptchaBlocked},
		{"获取失败", fmt.Errorf("%w: timeout", ErrFetchFailed), models.StopFetchFailed},
		{"取消", fmt.Errorf("wrapped: %w", context.Canceled), models.StopCancelled},
		{"其他错误", errors.New("boom"), models.StopError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyStop(ctx, tt.err); got != tt.want {
				t.Errorf("classifyStop() = %s, 期望 %s", got, tt.want)
			}
		})
	}
}
