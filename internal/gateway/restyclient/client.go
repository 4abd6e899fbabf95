// Package restyclient implements gateway.Client on go-resty.
package restyclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/gateway"
)

// Config controls the underlying resty client.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
}

// Client implements gateway.Client.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// New builds a Client whose cookies live in jar.
func New(cfg Config, jar http.CookieJar, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	redirects := cfg.MaxRedirects
	if redirects <= 0 {
		redirects = 10
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetTimeout(timeout)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(redirects))
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{http: client, logger: logger}
}

// Do executes a single request.
func (c *Client) Do(ctx context.Context, req gateway.Request) (gateway.Response, error) {
	r := c.http.R().SetContext(ctx)
	if req.Headers != nil {
		r.SetHeaderMultiValues(req.Headers)
	}
	if req.Form != nil {
		r.SetFormData(req.Form)
	}

	start := time.Now()
	res, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return gateway.Response{}, fmt.Errorf("resty %s %s: %w", req.Method, req.URL, err)
	}

	finalURL := req.URL
	if raw := res.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL.String()
	}
	c.logger.Debug("http exchange",
		zap.String("method", req.Method),
		zap.String("url", finalURL),
		zap.Int("status", res.StatusCode()),
		zap.Int("bytes", len(res.Body())),
		zap.Duration("duration", time.Since(start)),
	)

	return gateway.Response{
		URL:        finalURL,
		StatusCode: res.StatusCode(),
		Header:     res.Header().Clone(),
		Body:       res.Body(),
	}, nil
}
