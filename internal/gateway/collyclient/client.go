// Package collyclient implements gateway.Client using gocolly.
package collyclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/gateway"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Client implements gateway.Client using a Colly collector cloned per request.
type Client struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Client whose cookies live in jar. Clones share the base collector's backend,
// so the jar and transport are common to every request.
func New(cfg Config, jar http.CookieJar, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	c.SetCookieJar(jar)
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c.SetRequestTimeout(timeout)

	return &Client{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Do executes a single request through a fresh collector clone.
func (c *Client) Do(ctx context.Context, req gateway.Request) (gateway.Response, error) {
	var (
		result   gateway.Response
		fetchErr error
	)
	start := time.Now()
	collector := c.buildCollector(req, &result, &fetchErr)

	body, headers := encodeRequest(req)
	if err := c.runCollector(ctx, collector, req, body, headers, &fetchErr); err != nil {
		return gateway.Response{}, err
	}
	c.logger.Debug("http exchange",
		zap.String("method", req.Method),
		zap.String("url", result.URL),
		zap.Int("status", result.StatusCode),
		zap.Int("bytes", len(result.Body)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (c *Client) buildCollector(req gateway.Request, result *gateway.Response, fetchErr *error) *colly.Collector {
	collector := c.baseCollector.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = 0

	c.configureCollectorHooks(collector, req, result, fetchErr)
	return collector
}

func (c *Client) configureCollectorHooks(
	hooks collectorHooks,
	req gateway.Request,
	result *gateway.Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(req.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		finalURL := req.URL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		var header http.Header
		if r.Headers != nil {
			header = r.Headers.Clone()
		}
		*result = gateway.Response{
			URL:        finalURL,
			StatusCode: r.StatusCode,
			Header:     header,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (c *Client) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	req gateway.Request,
	body io.Reader,
	headers http.Header,
	fetchErr *error,
) error {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	done := make(chan error, 1)
	go func() {
		done <- collector.Request(method, req.URL, body, nil, headers)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly %s %s canceled: %w", method, req.URL, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly %s %s failed: %w", method, req.URL, err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly %s %s response failed: %w", method, req.URL, *fetchErr)
		}
		return nil
	}
}

func encodeRequest(req gateway.Request) (io.Reader, http.Header) {
	headers := http.Header{}
	if req.Form == nil {
		return nil, headers
	}
	values := url.Values{}
	for k, v := range req.Form {
		values.Set(k, v)
	}
	if req.Headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return strings.NewReader(values.Encode()), headers
}

func copyHeaders(src http.Header, r *colly.Request) {
	if src == nil {
		return
	}
	for key, values := range src {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
