package crawlers

import (
	"context"
	"fmt"
	"net/url"

	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/RecoveryAshes/ExamCrawler/internal/utils"
	"github.com/rs/zerolog"
)

const (
	// DefaultProxyEndpoint 默认抓取代理地址
	DefaultProxyEndpoint = "http://api.scraperapi.com/"
	// DefaultCachePrefix 默认缓存镜像前缀
	DefaultCachePrefix = "http://webcache.googleusercontent.com/search?q=cache:"
)

// ProxyConfig 抓取代理与缓存镜像配置
type ProxyConfig struct {
	APIKey      string `mapstructure:"api_key"`
	Endpoint    string `mapstructure:"endpoint"`
	CachePrefix string `mapstructure:"cache_prefix"`
}

// Prober 检查地址可用性
type Prober interface {
	Probe(ctx context.Context, url string) (int, error)
}

// Router 为每个页面选择获取路径
type Router struct {
	strategy models.RouteStrategy
	proxy    ProxyConfig
	prober   Prober
	log      zerolog.Logger
}

// NewRouter 创建路由器, cached 和 proxied 策略要求配置代理密钥
func NewRouter(strategy models.RouteStrategy, proxy ProxyConfig, prober Prober) (*Router, error) {
	if strategy == "" {
		strategy = models.RouteDirect
	}
	if proxy.Endpoint == "" {
		proxy.Endpoint = DefaultProxyEndpoint
	}
	if proxy.CachePrefix == "" {
		proxy.CachePrefix = DefaultCachePrefix
	}

	switch strategy {
	case models.RouteDirect:
	case models.RouteCached, models.RouteProxied:
		if proxy.APIKey == "" {
			return nil, fmt.Errorf("%w: 路由策略 %s 需要配置 proxy.api_key", models.ErrInvalidConfig, strategy)
		}
		if _, err := url.Parse(proxy.Endpoint); err != nil {
			return nil, fmt.Errorf("%w: 代理地址无效: %v", models.ErrInvalidConfig, err)
		}
		if strategy == models.RouteCached && prober == nil {
			return nil, fmt.Errorf("%w: cached 策略缺少可用性探测器", models.ErrInvalidConfig)
		}
	default:
		return nil, fmt.Errorf("%w: 未知的路由策略 %s", models.ErrInvalidConfig, strategy)
	}

	return &Router{
		strategy: strategy,
		proxy:    proxy,
		prober:   prober,
		log:      utils.Component("router"),
	}, nil
}

// Strategy 当前策略
func (r *Router) Strategy() models.RouteStrategy {
	return r.strategy
}

// Resolve 生成页面请求
// cached 策略先探测缓存镜像, 可用时经代理获取镜像, 否则直连目标
func (r *Router) Resolve(ctx context.Context, target string, pageNumber int) (models.PageRequest, error) {
	req := models.PageRequest{
		TargetURL:  target,
		FetchURL:   target,
		Route:      models.RouteDirect,
		PageNumber: pageNumber,
	}

	switch r.strategy {
	case models.RouteProxied:
		req.FetchURL = r.proxyURL(target)
		req.Route = models.RouteProxied

	case models.RouteCached:
		cacheURL := r.cacheURL(target)
		status, err := r.prober.Probe(ctx, cacheURL)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.PageRequest{}, ctxErr
		}
		if err == nil && status >= 200 && status < 300 {
			req.FetchURL = r.proxyURL(cacheURL)
			req.Route = models.RouteCached
		} else {
			r.log.Debug().
				Str("url", target).
				Int("status", status).
				AnErr("probe_error", err).
				Msg("缓存镜像不可用,改为直连")
		}
	}

	return req, nil
}

// cacheURL 缓存镜像地址, 目标整体转义后作为镜像查询参数的值
func (r *Router) cacheURL(target string) string {
	return r.proxy.CachePrefix + url.QueryEscape(target)
}

func (r *Router) proxyURL(target string) string {
	u, err := url.Parse(r.proxy.Endpoint)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("api_key", r.proxy.APIKey)
	q.Set("url", target)
	u.RawQuery = q.Encode()
	return u.String()
}
