package restyclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/gateway"
)

func TestDoGetFollowsRedirectAndKeepsCookies(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		http.Redirect(w, r, "/landing", http.StatusFound)
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		if err != nil {
			http.Error(w, "no cookie", http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, "hello "+cookie.Value+" "+r.Header.Get("Referer"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	jar := gateway.NewCookieJar()
	client := New(Config{Timeout: time.Second}, jar, nil)

	res, err := client.Do(context.Background(), gateway.Request{
		Method:  http.MethodGet,
		URL:     srv.URL + "/start",
		Headers: http.Header{"Referer": {"https://referer.example/"}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, srv.URL+"/landing", res.URL)
	assert.Equal(t, "hello abc https://referer.example/", res.BodyString())
	assert.False(t, jar.IsEmpty())
}

func TestDoPostSendsForm(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("X-Method", r.Method)
		_, _ = io.WriteString(w, r.PostForm.Get("a")+"|"+r.PostForm.Get("b")+"|"+r.Header.Get("X-MicrosoftAjax"))
	}))
	t.Cleanup(srv.Close)

	client := New(Config{}, gateway.NewCookieJar(), nil)
	res, err := client.Do(context.Background(), gateway.Request{
		Method:  http.MethodPost,
		URL:     srv.URL,
		Headers: http.Header{"X-MicrosoftAjax": {"Delta=true"}},
		Form:    map[string]string{"a": "1", "b": "x|y"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1|x|y|Delta=true", res.BodyString())
	assert.Equal(t, http.MethodPost, res.Header.Get("X-Method"))
}

func TestDoReturnsErrorStatusWithoutFailing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client := New(Config{}, gateway.NewCookieJar(), nil)
	res, err := client.Do(context.Background(), gateway.Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestDoTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(Config{Timeout: time.Second}, gateway.NewCookieJar(), nil)
	_, err := client.Do(context.Background(), gateway.Request{Method: http.MethodGet, URL: url})
	require.Error(t, err)
}
