package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/ExamCrawler/internal/captcha"
	"github.com/RecoveryAshes/ExamCrawler/internal/crawlers"
	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/RecoveryAshes/ExamCrawler/internal/output"
	"github.com/RecoveryAshes/ExamCrawler/internal/utils"
	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀, 例如 EXAMCRAWLER_CAPTCHA_API_KEY
const EnvPrefix = "EXAMCRAWLER"

// Config 应用程序配置
type Config struct {
	Crawl    models.CrawlConfig      `mapstructure:"crawl"`
	Captcha  captcha.Config          `mapstructure:"captcha"`
	Proxy    crawlers.ProxyConfig    `mapstructure:"proxy"`
	Resource crawlers.ResourceConfig `mapstructure:"resource"`
	Browser  BrowserConfig           `mapstructure:"browser"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	Output   OutputConfig            `mapstructure:"output"`
	Headers  map[string]string       `mapstructure:"headers"`
}

// BrowserConfig 浏览器启动配置
type BrowserConfig struct {
	NoSandbox bool   `mapstructure:"no_sandbox"`
	Bin       string `mapstructure:"bin"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	Format  string `mapstructure:"format"` // json|yaml
}

// AppName 用于用户配置目录
const AppName = "examcrawler"

// UserConfigDir 用户级配置目录 ($XDG_CONFIG_HOME/examcrawler)
func UserConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// LoadConfig 加载配置文件
// 优先级: 默认值 < 配置文件 < 环境变量(含.env)
func LoadConfig(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath(UserConfigDir())
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".examcrawler"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: fmt.Errorf("读取配置文件失败: %w", err)}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置文件失败: %w", err)}
	}
	if config.Headers == nil {
		config.Headers = make(map[string]string)
	}

	return &config, nil
}

// loadDotEnv 读取.env中的密钥, 文件不存在时忽略, 已有的环境变量不会被覆盖
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("加载 %s 失败: %w", path, err)
	}
	return nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 爬取配置默认值
	v.SetDefault("crawl.seeds", []string{})
	v.SetDefault("crawl.seed_file", "")
	v.SetDefault("crawl.page_limit", 0)
	v.SetDefault("crawl.retry_per_page", 5)
	v.SetDefault("crawl.fetch_route", string(models.RouteDirect))
	v.SetDefault("crawl.headless", true)
	v.SetDefault("crawl.element_backoff", time.Second)
	v.SetDefault("crawl.click_settle", time.Second)
	v.SetDefault("crawl.challenge_settle", 5*time.Second)
	v.SetDefault("crawl.max_challenge_rounds", 10)
	v.SetDefault("crawl.page_load_timeout", 60*time.Second)
	v.SetDefault("crawl.request_timeout", 30*time.Second)
	v.SetDefault("crawl.seed_delay", time.Second)
	v.SetDefault("crawl.continue_on_error", true)
	v.SetDefault("crawl.resume", false)

	// 验证码识别服务默认值
	captchaDefaults := captcha.DefaultConfig()
	v.SetDefault("captcha.api_key", "")
	v.SetDefault("captcha.submit_url", captchaDefaults.SubmitURL)
	v.SetDefault("captcha.result_url", captchaDefaults.ResultURL)
	v.SetDefault("captcha.poll_interval", captchaDefaults.PollInterval)
	v.SetDefault("captcha.max_polls", captchaDefaults.MaxPolls)
	v.SetDefault("captcha.max_attempts", captchaDefaults.MaxAttempts)
	v.SetDefault("captcha.language", captchaDefaults.Language)
	v.SetDefault("captcha.request_timeout", captchaDefaults.RequestTimeout)

	// 抓取代理默认值
	v.SetDefault("proxy.api_key", "")
	v.SetDefault("proxy.endpoint", crawlers.DefaultProxyEndpoint)
	v.SetDefault("proxy.cache_prefix", crawlers.DefaultCachePrefix)

	// 资源检查默认值
	v.SetDefault("resource.min_available_memory_mb", 500)
	v.SetDefault("resource.cpu_load_threshold", 90.0)
	v.SetDefault("resource.max_checks", 5)
	v.SetDefault("resource.check_interval", 2*time.Second)

	// 浏览器默认值
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.bin", "")

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 输出配置默认值
	v.SetDefault("output.base_dir", "output")
	v.SetDefault("output.format", string(output.FormatJSON))
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.Crawl.Validate(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
	}
	if _, err := output.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
	}
	if c.Captcha.MaxAttempts < 1 {
		return fmt.Errorf("%w: captcha.max_attempts 必须大于0", models.ErrInvalidConfig)
	}
	if c.Captcha.MaxPolls < 1 {
		return fmt.Errorf("%w: captcha.max_polls 必须大于0", models.ErrInvalidConfig)
	}
	if c.Output.BaseDir == "" {
		return fmt.Errorf("%w: output.base_dir 不能为空", models.ErrInvalidConfig)
	}
	return nil
}

// LogConfig 转换为日志系统配置
func (c *Config) LogConfig() utils.LogConfig {
	lc := utils.DefaultLogConfig()
	if c.Logging.Level != "" {
		lc.Level = c.Logging.Level
	}
	if c.Logging.LogDir != "" {
		lc.LogDir = c.Logging.LogDir
	}
	if r := c.Logging.Rotation; r.MaxSize > 0 {
		lc.MaxSize = r.MaxSize
		lc.MaxBackups = r.MaxBackups
		lc.MaxAge = r.MaxAge
		lc.Compress = r.Compress
	}
	return lc
}

// CLIOverrides 命令行显式指定的参数, nil 表示未指定
type CLIOverrides struct {
	Seeds           []string
	SeedFile        *string
	PageLimit       *int
	RetryPerPage    *int
	CaptchaRetries  *int
	Route           *string
	Headless        *bool
	Resume          *bool
	OutputDir       *string
	Format          *string
	ContinueOnError *bool
	SeedDelay       *time.Duration
}

// MergeCLIFlags 合并命令行参数到配置, 命令行优先于配置文件
func (c *Config) MergeCLIFlags(o CLIOverrides) {
	if len(o.Seeds) > 0 {
		c.Crawl.Seeds = o.Seeds
	}
	if o.SeedFile != nil {
		c.Crawl.SeedFile = *o.SeedFile
	}
	if o.PageLimit != nil {
		c.Crawl.PageLimit = *o.PageLimit
	}
	if o.RetryPerPage != nil {
		c.Crawl.RetryPerPage = *o.RetryPerPage
	}
	if o.CaptchaRetries != nil {
		c.Captcha.MaxAttempts = *o.CaptchaRetries
	}
	if o.Route != nil {
		c.Crawl.FetchRoute = models.RouteStrategy(*o.Route)
	}
	if o.Headless != nil {
		c.Crawl.Headless = *o.Headless
	}
	if o.Resume != nil {
		c.Crawl.Resume = *o.Resume
	}
	if o.OutputDir != nil {
		c.Output.BaseDir = *o.OutputDir
	}
	if o.Format != nil {
		c.Output.Format = *o.Format
	}
	if o.ContinueOnError != nil {
		c.Crawl.ContinueOnError = *o.ContinueOnError
	}
	if o.SeedDelay != nil {
		c.Crawl.SeedDelay = *o.SeedDelay
	}
}

// ResolveSeeds 合并配置/命令行种子与种子文件, 去重并验证
func (c *Config) ResolveSeeds() ([]string, error) {
	seeds := append([]string{}, c.Crawl.Seeds...)
	if c.Crawl.SeedFile != "" {
		fromFile, err := utils.ReadURLsFromFile(c.Crawl.SeedFile)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, fromFile...)
	}

	seeds = utils.UniqueURLs(seeds)
	for _, seed := range seeds {
		if err := models.ValidateURL(seed); err != nil {
			return nil, fmt.Errorf("无效的种子地址 %s: %w", seed, err)
		}
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: 没有种子地址 (使用 --url 或 --url-file)", models.ErrInvalidConfig)
	}
	return seeds, nil
}
