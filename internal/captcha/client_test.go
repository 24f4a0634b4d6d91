package captcha

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RecoveryAshes/ExamCrawler/internal/models"
)

// fakeService 模拟识别服务
type fakeService struct {
	submits  int32
	polls    int32
	notReady int32  // 每个任务返回未就绪的次数
	submitOK bool   // 提交是否成功
	answer   string // 最终结果
	lastForm map[string]string
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.submits, 1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.lastForm = map[string]string{}
		for k := range r.PostForm {
			f.lastForm[k] = r.PostForm.Get(k)
		}
		if !f.submitOK {
			fmt.Fprint(w, "ERROR_ZERO_BALANCE")
			return
		}
		fmt.Fprint(w, "OK|4242")
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.polls, 1)
		if r.URL.Query().Get("id") != "4242" || r.URL.Query().Get("action") != "get" {
			fmt.Fprint(w, "ERROR_WRONG_CAPTCHA_ID")
			return
		}
		if n <= f.notReady {
			fmt.Fprint(w, "CAPCHA_NOT_READY")
			return
		}
		fmt.Fprint(w, f.answer)
	})
	return mux
}

func newTestClient(t *testing.T, svc *fakeService, mutate func(*Config)) *Client {
	t.Helper()
	server := httptest.NewServer(svc.handler())
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.SubmitURL = server.URL + "/in.php"
	cfg.ResultURL = server.URL + "/res.php"
	cfg.PollInterval = time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	if !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("缺少密钥应返回ErrInvalidConfig, 实际 %v", err)
	}
}

func TestSubmit_SendsGridFields(t *testing.T) {
	svc := &fakeService{submitOK: true}
	client := newTestClient(t, svc, nil)

	image := []byte{0xff, 0xd8, 0xff}
	id, err := client.Submit(context.Background(), image, "Select all images with a bus")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if id != "4242" {
		t.Errorf("任务ID = %q, want 4242", id)
	}

	want := map[string]string{
		"key":              "test-key",
		"method":           "base64",
		"recaptcha":        "1",
		"body":             base64.StdEncoding.EncodeToString(image),
		"lang":             "en",
		"textinstructions": "Select all images with a bus",
		"recaptcharows":    "3",
		"recaptchacols":    "3",
		"can_no_answer":    "1",
	}
	for k, v := range want {
		if svc.lastForm[k] != v {
			t.Errorf("表单字段 %s = %q, want %q", k, svc.lastForm[k], v)
		}
	}
}

func TestSubmit_RejectedResponse(t *testing.T) {
	client := newTestClient(t, &fakeService{submitOK: false}, nil)

	_, err := client.Submit(context.Background(), []byte("img"), "task")
	if !errors.Is(err, models.ErrSolveRequest) {
		t.Fatalf("非OK响应应返回ErrSolveRequest, 实际 %v", err)
	}
	var reqErr *models.SolveRequestError
	if !errors.As(err, &reqErr) || reqErr.Response != "ERROR_ZERO_BALANCE" || reqErr.Stage != "submit" {
		t.Errorf("错误详情不匹配: %+v", reqErr)
	}
}

func TestSolve_PollsUntilReady(t *testing.T) {
	for _, k := range []int32{0, 1, 4} {
		t.Run(fmt.Sprintf("未就绪%d次", k), func(t *testing.T) {
			svc := &fakeService{submitOK: true, notReady: k, answer: "OK|click:2,5,9"}
			client := newTestClient(t, svc, nil)

			solution, err := client.Solve(context.Background(), "4242")
			if err != nil {
				t.Fatalf("Solve() error = %v", err)
			}
			if got := atomic.LoadInt32(&svc.polls); got != k+1 {
				t.Errorf("查询次数 = %d, want %d", got, k+1)
			}
			if !reflect.DeepEqual(solution.Positions, []int{2, 5, 9}) {
				t.Errorf("Positions = %v, want [2 5 9]", solution.Positions)
			}
		})
	}
}

func TestSolve_MaxPolls(t *testing.T) {
	svc := &fakeService{submitOK: true, notReady: 100, answer: "OK|click:1"}
	client := newTestClient(t, svc, func(c *Config) { c.MaxPolls = 3 })

	_, err := client.Solve(context.Background(), "4242")
	if !errors.Is(err, models.ErrSolveRequest) {
		t.Fatalf("超过查询上限应返回ErrSolveRequest, 实际 %v", err)
	}
	if got := atomic.LoadInt32(&svc.polls); got != 3 {
		t.Errorf("查询次数 = %d, want 3", got)
	}
}

func TestSolve_ContextCancelled(t *testing.T) {
	svc := &fakeService{submitOK: true, notReady: 1000}
	client := newTestClient(t, svc, func(c *Config) {
		c.PollInterval = time.Hour
		c.MaxPolls = 0
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Solve(ctx, "4242")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("应返回context错误, 实际 %v", err)
	}
}

func TestSolveWithRetry_ExactAttempts(t *testing.T) {
	for _, attempts := range []int{1, 3} {
		t.Run(fmt.Sprintf("上限%d次", attempts), func(t *testing.T) {
			svc := &fakeService{submitOK: false}
			client := newTestClient(t, svc, func(c *Config) { c.MaxAttempts = attempts })

			_, err := client.SolveWithRetry(context.Background(), models.CaptchaChallenge{Image: []byte("img")})
			if !errors.Is(err, models.ErrSolveRequest) {
				t.Fatalf("应返回ErrSolveRequest, 实际 %v", err)
			}
			if got := atomic.LoadInt32(&svc.submits); got != int32(attempts) {
				t.Errorf("提交次数 = %d, want %d", got, attempts)
			}
		})
	}
}

func TestSolveWithRetry_RecoversAfterBadAnswer(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK|4242")
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, "ERROR_CAPTCHA_UNSOLVABLE")
			return
		}
		fmt.Fprint(w, "OK|click:3/7")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewClient(Config{
		APIKey:       "k",
		SubmitURL:    server.URL + "/in.php",
		ResultURL:    server.URL + "/res.php",
		PollInterval: time.Millisecond,
		MaxAttempts:  3,
	})
	if err != nil {
		t.Fatal(err)
	}

	solution, err := client.SolveWithRetry(context.Background(), models.CaptchaChallenge{Image: []byte("img")})
	if err != nil {
		t.Fatalf("SolveWithRetry() error = %v", err)
	}
	if !reflect.DeepEqual(solution.Positions, []int{3, 7}) {
		t.Errorf("Positions = %v, want [3 7]", solution.Positions)
	}
}
