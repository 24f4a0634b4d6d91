package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/ExamCrawler/internal/models"
	"github.com/RecoveryAshes/ExamCrawler/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"
)

// PageFetcher 基于Colly的静态页面获取器
// 每次请求使用独立的Collector, 不做并发
type PageFetcher struct {
	timeout   time.Duration
	transport http.RoundTripper
	headers   models.HeaderProvider
	log       zerolog.Logger
}

// NewPageFetcher 创建页面获取器
func NewPageFetcher(timeout time.Duration, headers models.HeaderProvider) *PageFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PageFetcher{
		timeout: timeout,
		transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // 缓存镜像和代理服务的证书链不一定完整
			},
		},
		headers: headers,
		log:     utils.Component("fetcher"),
	}
}

func (f *PageFetcher) newCollector(ctx context.Context) (*colly.Collector, error) {
	c := colly.NewCollector(colly.AllowURLRevisit())
	c.ParseHTTPErrorResponse = true
	c.SetRequestTimeout(f.timeout)
	c.WithTransport(f.transport)

	var headers http.Header
	if f.headers != nil {
		h, err := f.headers.GetHeaders()
		if err != nil {
			return nil, fmt.Errorf("获取HTTP头部失败: %w", err)
		}
		headers = h
	}

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		for name, values := range headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})
	return c, nil
}

// Fetch 获取页面, 非2xx状态码同样返回响应体, 由调用方判断
func (f *PageFetcher) Fetch(ctx context.Context, req models.PageRequest) (*models.FetchedPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := f.newCollector(ctx)
	if err != nil {
		return nil, err
	}

	page := &models.FetchedPage{Request: req}
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		page.StatusCode = r.StatusCode
		body, err := decompressResponse(r.Headers.Get("Content-Encoding"), r.Body)
		if err != nil {
			f.log.Warn().Err(err).Str("url", utils.RedactURL(req.FetchURL)).Msg("解压响应失败,使用原始内容")
			body = r.Body
		}
		page.Body = body
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			page.StatusCode = r.StatusCode
		}
	})

	started := time.Now()
	if err := c.Visit(req.FetchURL); err != nil && fetchErr == nil {
		fetchErr = err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("请求失败 [%s]: %w", utils.RedactURL(req.FetchURL), fetchErr)
	}

	f.log.Debug().
		Str("url", utils.RedactURL(req.FetchURL)).
		Str("route", string(req.Route)).
		Int("status", page.StatusCode).
		Int("bytes", len(page.Body)).
		Dur("elapsed", time.Since(started)).
		Msg("页面获取完成")
	return page, nil
}

// Probe 以HEAD请求检查地址是否可用, 返回状态码
func (f *PageFetcher) Probe(ctx context.Context, url string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c, err := f.newCollector(ctx)
	if err != nil {
		return 0, err
	}

	status := 0
	var probeErr error
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		probeErr = err
	})

	if err := c.Head(url); err != nil && probeErr == nil {
		probeErr = err
	}
	if probeErr != nil {
		return status, probeErr
	}
	return status, nil
}

// decompressResponse 按Content-Encoding解压响应体
// Colly已处理过的gzip内容不会再次解压
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip":
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		return readAll(reader, "gzip")

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return readAll(reader, "deflate")

	case "br":
		return readAll(brotli.NewReader(bytes.NewReader(body)), "brotli")

	case "", "identity":
		return body, nil

	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}

func readAll(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s读取失败: %w", name, err)
	}
	return data, nil
}
