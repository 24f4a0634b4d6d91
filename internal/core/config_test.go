package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/adrg/xdg"
)

// chdir 切换工作目录, 测试结束后恢复
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("加载默认配置失败: %v", err)
	}

	if cfg.Crawl.RetryPerPage != 5 {
		t.Errorf("retry_per_page = %d, 期望 5", cfg.Crawl.RetryPerPage)
	}
	if cfg.Crawl.FetchRoute != models.RouteDirect {
		t.Errorf("fetch_route = %s", cfg.Crawl.FetchRoute)
	}
	if cfg.Crawl.ChallengeSettle != 5*time.Second {
		t.Errorf("challenge_settle = %s", cfg.Crawl.ChallengeSettle)
	}
	if !cfg.Crawl.Headless || !cfg.Crawl.ContinueOnError {
		t.Error("headless 和 continue_on_error 默认应为 true")
	}
	if cfg.Captcha.MaxAttempts != 3 || cfg.Captcha.SubmitURL == "" {
		t.Errorf("验证码默认值不符: %+v", cfg.Captcha)
	}
	if cfg.Output.BaseDir != "output" || cfg.Output.Format != "json" {
		t.Errorf("输出默认值不符: %+v", cfg.Output)
	}
	if cfg.Headers == nil {
		t.Error("Headers 不应为 nil")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("默认配置应通过验证: %v", err)
	}
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
crawl:
  seeds:
    - https://exam.example.com/exam/1
  page_limit: 7
  retry_per_page: 3
  fetch_route: cached
  challenge_settle: 2s
captcha:
  api_key: file-key
  max_attempts: 4
proxy:
  api_key: proxy-key
output:
  base_dir: data
  format: yaml
headers:
  X-Custom: hello
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if len(cfg.Crawl.Seeds) != 1 || cfg.Crawl.PageLimit != 7 || cfg.Crawl.RetryPerPage != 3 {
		t.Errorf("crawl 段不符: %+v", cfg.Crawl)
	}
	if cfg.Crawl.FetchRoute != models.RouteCached {
		t.Errorf("fetch_route = %s", cfg.Crawl.FetchRoute)
	}
	if cfg.Crawl.ChallengeSettle != 2*time.Second {
		t.Errorf("challenge_settle = %s", cfg.Crawl.ChallengeSettle)
	}
	if cfg.Crawl.ClickSettle != time.Second {
		t.Errorf("未配置的项应保留默认值, click_settle = %s", cfg.Crawl.ClickSettle)
	}
	if cfg.Captcha.APIKey != "file-key" || cfg.Captcha.MaxAttempts != 4 {
		t.Errorf("captcha 段不符: %+v", cfg.Captcha)
	}
	if cfg.Proxy.APIKey != "proxy-key" || cfg.Proxy.Endpoint == "" {
		t.Errorf("proxy 段不符: %+v", cfg.Proxy)
	}
	if cfg.Output.Format != "yaml" {
		t.Errorf("output.format = %s", cfg.Output.Format)
	}
	if cfg.Headers["x-custom"] != "hello" {
		t.Errorf("headers = %v", cfg.Headers)
	}
}

func TestLoadConfig_UserConfigDir(t *testing.T) {
	chdir(t, t.TempDir())
	home := t.TempDir()
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_CONFIG_HOME", home)
	xdg.Reload()

	if got := UserConfigDir(); got != filepath.Join(home, AppName) {
		t.Fatalf("UserConfigDir() = %s", got)
	}
	if err := os.MkdirAll(UserConfigDir(), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(UserConfigDir(), "config.yaml"), "crawl:\n  page_limit: 9\n")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Crawl.PageLimit != 9 {
		t.Errorf("应读取用户配置目录中的配置, page_limit = %d", cfg.Crawl.PageLimit)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "proxy:\n  api_key: file-key\n")
	t.Setenv("EXAMCRAWLER_PROXY_API_KEY", "env-key")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Proxy.APIKey != "env-key" {
		t.Errorf("环境变量应覆盖配置文件, 实际 %s", cfg.Proxy.APIKey)
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	writeFile(t, filepath.Join(dir, ".env"), "EXAMCRAWLER_CAPTCHA_API_KEY=dotenv-key\n")
	t.Cleanup(func() { os.Unsetenv("EXAMCRAWLER_CAPTCHA_API_KEY") })

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Captcha.APIKey != "dotenv-key" {
		t.Errorf("应从.env读取密钥, 实际 %q", cfg.Captcha.APIKey)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "crawl: [unclosed\n")

	_, err := LoadConfig(path)
	if !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("期望 ErrInvalidConfig, 实际 %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"重试次数为0", func(c *Config) { c.Crawl.RetryPerPage = 0 }},
		{"未知路由", func(c *Config) { c.Crawl.FetchRoute = "tor" }},
		{"未知输出格式", func(c *Config) { c.Output.Format = "csv" }},
		{"识别尝试次数为0", func(c *Config) { c.Captcha.MaxAttempts = 0 }},
		{"输出目录为空", func(c *Config) { c.Output.BaseDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t.TempDir())
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, models.ErrInvalidConfig) {
				t.Errorf("期望 ErrInvalidConfig, 实际 %v", err)
			}
		})
	}
}

func TestConfig_MergeCLIFlags(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Crawl.PageLimit = 10

	pages, route, retries := 3, "proxied", 7
	headless := false
	cfg.MergeCLIFlags(CLIOverrides{
		Seeds:          []string{"https://exam.example.com/exam/9"},
		PageLimit:      &pages,
		Route:          &route,
		CaptchaRetries: &retries,
		Headless:       &headless,
	})

	if cfg.Crawl.PageLimit != 3 || cfg.Crawl.FetchRoute != models.RouteProxied {
		t.Errorf("合并结果不符: %+v", cfg.Crawl)
	}
	if cfg.Captcha.MaxAttempts != 7 || cfg.Crawl.Headless {
		t.Errorf("合并结果不符: attempts=%d headless=%v", cfg.Captcha.MaxAttempts, cfg.Crawl.Headless)
	}
	if cfg.Crawl.RetryPerPage != 2 {
		t.Error("未指定的参数不应改变")
	}
}

func TestConfig_ResolveSeeds(t *testing.T) {
	dir := t.TempDir()
	seedFile := filepath.Join(dir, "seeds.txt")
	writeFile(t, seedFile, "# 题库\nhttps://exam.example.com/exam/1\nhttps://exam.example.com/exam/2\n")

	cfg := testConfig(dir)
	cfg.Crawl.Seeds = []string{"https://exam.example.com/exam/1"}
	cfg.Crawl.SeedFile = seedFile

	seeds, err := cfg.ResolveSeeds()
	if err != nil {
		t.Fatal(err)
	}
	if len(seeds) != 2 || seeds[1] != "https://exam.example.com/exam/2" {
		t.Errorf("seeds = %v", seeds)
	}

	cfg.Crawl.Seeds = nil
	cfg.Crawl.SeedFile = ""
	if _, err := cfg.ResolveSeeds(); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("没有种子时期望 ErrInvalidConfig, 实际 %v", err)
	}

	cfg.Crawl.Seeds = []string{"ftp://exam.example.com"}
	if _, err := cfg.ResolveSeeds(); err == nil {
		t.Error("无效种子应返回错误")
	}
}

func TestConfig_LogConfig(t *testing.T) {
	t.Run("未配置时使用默认值", func(t *testing.T) {
		lc := testConfig(t.TempDir()).LogConfig()
		if lc.Level != "info" || lc.LogDir != "logs" || lc.MaxSize != 10 {
			t.Errorf("默认日志配置不符: %+v", lc)
		}
	})

	t.Run("使用配置值", func(t *testing.T) {
		cfg := testConfig(t.TempDir())
		cfg.Logging = LoggingConfig{
			Level:    "debug",
			LogDir:   "var/log",
			Rotation: RotationConfig{MaxSize: 50, MaxBackups: 1, MaxAge: 7},
		}
		lc := cfg.LogConfig()
		if lc.Level != "debug" || lc.LogDir != "var/log" || lc.MaxSize != 50 || lc.Compress {
			t.Errorf("日志配置不符: %+v", lc)
		}
	})
}
