package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/captcha"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/gateway"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/htmlform"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/metrics"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
)

// CaptchaImageSelector locates the inline CAPTCHA picture on the login page.
const CaptchaImageSelector = "#divCaptcha > img"

var errNoCaptchaImage = errors.New("captcha image not found on login page")

// Manager drives the login state machine. It is not safe for concurrent use.
type Manager struct {
	data    Data
	gateway *gateway.Gateway
	logger  *zap.Logger
}

// NewManager builds a Manager.
func NewManager(data Data, gw *gateway.Gateway, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		data:    data,
		gateway: gw,
		logger:  logger.With(zap.String("rfc", data.RFC())),
	}
}

// Data returns the session data.
func (m *Manager) Data() Data {
	return m.data
}

// HasLogin reports whether the current cookies hold a live session. An empty cookie jar
// answers false without any request. A stale session is logged out.
func (m *Manager) HasLogin(ctx context.Context) (bool, error) {
	if m.gateway.IsCookieJarEmpty() {
		m.logger.Debug("no cookies, session is not alive")
		return false, nil
	}

	html, err := m.gateway.GetAuthLoginPage(ctx, portal.URLAuthLogin, portal.URLPortalCfdi)
	if err != nil {
		return false, m.connectionError("check login page", err)
	}
	if !strings.Contains(html, portal.MarkerAuthenticatedRedirect) {
		m.logger.Debug("login page does not redirect to the portal")
		m.Logout(ctx)
		return false, nil
	}

	html, err = m.gateway.GetPortalMainPage(ctx)
	if err != nil {
		return false, m.connectionError("check portal main page", err)
	}
	if strings.Contains(html, portal.MarkerSessionExpired) {
		m.logger.Debug("portal main page redirects to logout")
		m.Logout(ctx)
		return false, nil
	}
	return true, nil
}

// Login authenticates with RFC, CIEC and a solved CAPTCHA. Each login attempt may retry the
// CAPTCHA up to MaxTriesCaptcha times; a rejected login is retried with a fresh CAPTCHA up to
// MaxTriesLogin times.
func (m *Manager) Login(ctx context.Context) error {
	var lastBody string
	for attempt := 1; attempt <= m.data.MaxTriesLogin(); attempt++ {
		answer, err := m.captchaValue(ctx)
		if err != nil {
			metrics.ObserveLogin(outcomeOf(err))
			return err
		}

		m.logger.Debug("submitting login", zap.Int("attempt", attempt))
		body, err := m.gateway.PostLoginData(ctx, portal.URLAuthLogin, map[string]string{
			"Ecom_Password": m.data.CIEC(),
			"Ecom_User_ID":  m.data.RFC(),
			"option":        "credential",
			"submit":        "Enviar",
			"userCaptcha":   answer,
		})
		if err != nil {
			err = m.connectionError("post login data", err)
			metrics.ObserveLogin(outcomeOf(err))
			return err
		}
		if !strings.Contains(body, portal.MarkerCredentialEntry) {
			m.logger.Info("login accepted", zap.Int("attempt", attempt))
			metrics.ObserveLogin(metrics.OutcomeSuccess)
			return nil
		}
		lastBody = body
		m.logger.Warn("login rejected", zap.Int("attempt", attempt), zap.Int("max_attempts", m.data.MaxTriesLogin()))
	}

	metrics.ObserveLogin(outcomeLabel(ErrIncorrectCredentials))
	return &LoginError{
		Kind: ErrIncorrectCredentials,
		When: fmt.Sprintf("login rejected after %d attempts", m.data.MaxTriesLogin()),
		RFC:  m.data.RFC(),
		Body: lastBody,
	}
}

// captchaValue fetches a fresh CAPTCHA and resolves it, retrying resolver and image failures.
// A transport failure while loading the login page is returned at once.
func (m *Manager) captchaValue(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= m.data.MaxTriesCaptcha(); attempt++ {
		html, err := m.gateway.GetAuthLoginPage(ctx, portal.URLAuthLogin, portal.URLPortalCfdi)
		if err != nil {
			return "", m.connectionError("get captcha image", err)
		}
		answer, err := m.resolve(ctx, html)
		if err == nil {
			metrics.ObserveCaptcha(metrics.OutcomeSuccess)
			return answer, nil
		}
		if ctx.Err() != nil {
			return "", m.connectionError("resolve captcha", ctx.Err())
		}
		lastErr = err
		metrics.ObserveCaptcha(metrics.OutcomeError)
		m.logger.Warn("captcha not resolved",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.data.MaxTriesCaptcha()),
			zap.Error(err),
		)
	}
	return "", &LoginError{
		Kind: ErrCaptchaUnresolved,
		When: fmt.Sprintf("captcha unresolved after %d attempts", m.data.MaxTriesCaptcha()),
		RFC:  m.data.RFC(),
		Err:  lastErr,
	}
}

func (m *Manager) resolve(ctx context.Context, html string) (string, error) {
	doc, err := htmlform.Parse(html)
	if err != nil {
		return "", err
	}
	src, ok := doc.ImageSource(CaptchaImageSelector)
	if !ok {
		return "", errNoCaptchaImage
	}
	image, err := captcha.ImageFromDataURI(src)
	if err != nil {
		return "", err
	}
	answer, err := m.data.Resolver().Resolve(ctx, image)
	if err != nil {
		return "", fmt.Errorf("captcha resolver: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", errors.New("captcha resolver returned an empty answer")
	}
	return answer, nil
}

// RegisterOnPortalMainPage completes the post-login redirect chain and checks that the
// portal greets the expected RFC.
func (m *Manager) RegisterOnPortalMainPage(ctx context.Context) error {
	html, err := m.gateway.GetPortalMainPage(ctx)
	if err != nil {
		return m.connectionError("get portal main page", err)
	}

	fields, err := htmlform.Fields(html, "form")
	if err != nil {
		return m.connectionError("read portal main page form", err)
	}
	if len(fields) > 0 {
		html, err = m.gateway.PostPortalMainPage(ctx, fields)
		if err != nil {
			return m.connectionError("post portal main page", err)
		}
	}

	if !strings.Contains(html, portal.MarkerAuthenticatedRFC+m.data.RFC()) {
		metrics.ObserveLogin(outcomeLabel(ErrNotRegistered))
		return &LoginError{
			Kind: ErrNotRegistered,
			When: "register on portal main page",
			RFC:  m.data.RFC(),
			Body: html,
		}
	}
	return nil
}

// Logout ends the session on both servers and clears the cookie jar. Network failures are
// ignored.
func (m *Manager) Logout(ctx context.Context) {
	for _, logoutURL := range []string{portal.URLPortalCfdiLogout, portal.URLAuthLogout} {
		if err := m.gateway.GetLogout(ctx, logoutURL, portal.URLPortalCfdi); err != nil {
			m.logger.Debug("logout request failed", zap.String("url", logoutURL), zap.Error(err))
		}
	}
	m.gateway.ClearCookieJar()
}

func (m *Manager) connectionError(when string, err error) error {
	m.logger.Warn("session connection error", zap.String("when", when), zap.Error(err))
	return &LoginError{Kind: ErrConnection, When: when, RFC: m.data.RFC(), Err: err}
}

func outcomeOf(err error) string {
	var loginErr *LoginError
	if errors.As(err, &loginErr) {
		return outcomeLabel(loginErr.Kind)
	}
	return metrics.OutcomeError
}
