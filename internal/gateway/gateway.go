package gateway

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
)

// Limiter throttles outgoing requests.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Gateway requests portal pages with the header profile each one expects and turns error
// statuses and empty bodies into *Error values.
type Gateway struct {
	client  Client
	jar     *CookieJar
	limiter Limiter
	logger  *zap.Logger
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithLimiter makes every request wait on limiter first.
func WithLimiter(limiter Limiter) Option {
	return func(g *Gateway) {
		g.limiter = limiter
	}
}

// New builds a Gateway. jar must be the jar the client stores cookies in.
func New(client Client, jar *CookieJar, logger *zap.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{client: client, jar: jar, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CookieJar returns the jar shared with the client.
func (g *Gateway) CookieJar() *CookieJar {
	return g.jar
}

// IsCookieJarEmpty reports whether no session cookie is held.
func (g *Gateway) IsCookieJarEmpty() bool {
	return g.jar == nil || g.jar.IsEmpty()
}

// ClearCookieJar drops every cookie.
func (g *Gateway) ClearCookieJar() {
	if g.jar != nil {
		g.jar.Clear()
	}
}

// GetAuthLoginPage loads the authentication page.
func (g *Gateway) GetAuthLoginPage(ctx context.Context, loginURL, referer string) (string, error) {
	return g.page(ctx, "get login page", Request{
		Method:  http.MethodGet,
		URL:     loginURL,
		Headers: portal.BrowserHeaders(referer),
	})
}

// PostLoginData submits the login form.
func (g *Gateway) PostLoginData(ctx context.Context, loginURL string, form map[string]string) (string, error) {
	return g.page(ctx, "post login data", Request{
		Method:  http.MethodPost,
		URL:     loginURL,
		Headers: portal.BrowserHeaders(loginURL),
		Form:    form,
	})
}

// GetPortalMainPage loads the portal home page.
func (g *Gateway) GetPortalMainPage(ctx context.Context) (string, error) {
	return g.page(ctx, "get portal main page", Request{
		Method:  http.MethodGet,
		URL:     portal.URLPortalCfdi,
		Headers: portal.BrowserHeaders(portal.URLPortalLoginReferer),
	})
}

// PostPortalMainPage resubmits the portal home page form to finish the login redirect chain.
func (g *Gateway) PostPortalMainPage(ctx context.Context, form map[string]string) (string, error) {
	return g.page(ctx, "post portal main page", Request{
		Method:  http.MethodPost,
		URL:     portal.URLPortalCfdi,
		Headers: portal.BrowserHeaders(portal.URLPortalLoginReferer),
		Form:    form,
	})
}

// GetPortalPage loads a page inside the portal.
func (g *Gateway) GetPortalPage(ctx context.Context, pageURL string) (string, error) {
	return g.page(ctx, "get portal page", Request{
		Method:  http.MethodGet,
		URL:     pageURL,
		Headers: portal.BrowserHeaders(portal.URLPortalCfdi),
	})
}

// PostAjaxSearch sends a partial postback to a search page.
func (g *Gateway) PostAjaxSearch(ctx context.Context, pageURL string, form map[string]string) (string, error) {
	return g.page(ctx, "post ajax search", Request{
		Method:  http.MethodPost,
		URL:     pageURL,
		Headers: portal.AjaxHeaders(pageURL),
		Form:    form,
	})
}

// GetLogout requests a logout URL. Empty bodies are accepted.
func (g *Gateway) GetLogout(ctx context.Context, logoutURL, referer string) error {
	_, err := g.do(ctx, "get logout", Request{
		Method:  http.MethodGet,
		URL:     logoutURL,
		Headers: portal.BrowserHeaders(referer),
	}, true)
	return err
}

// Fetch downloads a linked resource. The response is returned as received; status and body
// validation belong to the caller.
func (g *Gateway) Fetch(ctx context.Context, resourceURL string) (Response, error) {
	req := Request{
		Method:  http.MethodGet,
		URL:     resourceURL,
		Headers: portal.BrowserHeaders(portal.URLPortalCfdi),
	}
	res, err := g.send(ctx, req)
	if err != nil {
		return Response{}, &Error{Kind: ErrTransport, When: "fetch resource", Method: req.Method, URL: req.URL, Err: err}
	}
	return res, nil
}

func (g *Gateway) page(ctx context.Context, when string, req Request) (string, error) {
	res, err := g.do(ctx, when, req, false)
	if err != nil {
		return "", err
	}
	return res.BodyString(), nil
}

func (g *Gateway) send(ctx context.Context, req Request) (Response, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, req.URL); err != nil {
			return Response{}, err
		}
	}
	return g.client.Do(ctx, req)
}

func (g *Gateway) do(ctx context.Context, when string, req Request, allowEmpty bool) (Response, error) {
	res, err := g.send(ctx, req)
	if err != nil {
		g.logger.Debug("gateway transport failure", zap.String("when", when), zap.String("url", req.URL), zap.Error(err))
		return Response{}, &Error{Kind: ErrTransport, When: when, Method: req.Method, URL: req.URL, Err: err}
	}
	if res.StatusCode >= http.StatusBadRequest {
		return res, &Error{Kind: ErrTransport, When: when, Method: req.Method, URL: req.URL, StatusCode: res.StatusCode}
	}
	if !allowEmpty && len(res.Body) == 0 {
		return res, &Error{Kind: ErrEmptyResponse, When: when, Method: req.Method, URL: req.URL, StatusCode: res.StatusCode}
	}
	return res, nil
}
