package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/net/publicsuffix"
)

// CookieJar is an http.CookieJar that can report emptiness, be cleared, and be persisted.
// The standard jar hides its contents, so every cookie set is also recorded here.
type CookieJar struct {
	mu      sync.Mutex
	jar     *cookiejar.Jar
	records map[string]cookieRecord
}

type cookieRecord struct {
	URL    string       `json:"url"`
	Cookie *http.Cookie `json:"cookie"`
}

// NewCookieJar returns an empty jar using the public suffix list.
func NewCookieJar() *CookieJar {
	return &CookieJar{jar: newStdJar(), records: make(map[string]cookieRecord)}
}

func newStdJar() *cookiejar.Jar {
	// cookiejar.New never returns a non-nil error.
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		panic(err)
	}
	return jar
}

// SetCookies implements http.CookieJar.
func (j *CookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar.SetCookies(u, cookies)
	for _, c := range cookies {
		domain := c.Domain
		if domain == "" {
			domain = u.Hostname()
		}
		key := domain + "|" + c.Path + "|" + c.Name
		copied := *c
		j.records[key] = cookieRecord{URL: u.String(), Cookie: &copied}
	}
}

// Cookies implements http.CookieJar.
func (j *CookieJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// IsEmpty reports whether the jar holds no live cookie.
func (j *CookieJar) IsEmpty() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	for _, rec := range j.records {
		if j.live(rec, now) {
			return false
		}
	}
	return true
}

func (j *CookieJar) live(rec cookieRecord, now time.Time) bool {
	if rec.Cookie.MaxAge < 0 || rec.Cookie.Value == "" {
		return false
	}
	if !rec.Cookie.Expires.IsZero() && rec.Cookie.Expires.Before(now) {
		return false
	}
	u, err := url.Parse(rec.URL)
	if err != nil {
		return false
	}
	for _, c := range j.jar.Cookies(u) {
		if c.Name == rec.Cookie.Name {
			return true
		}
	}
	return false
}

// Clear drops every cookie.
func (j *CookieJar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar = newStdJar()
	j.records = make(map[string]cookieRecord)
}

// Save writes the live cookies as JSON to path.
func (j *CookieJar) Save(fs afero.Fs, path string) error {
	j.mu.Lock()
	now := time.Now()
	live := make([]cookieRecord, 0, len(j.records))
	for _, rec := range j.records {
		if j.live(rec, now) {
			live = append(live, rec)
		}
	}
	j.mu.Unlock()

	raw, err := json.MarshalIndent(live, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create cookie dir: %w", err)
	}
	if err := afero.WriteFile(fs, path, raw, 0o600); err != nil {
		return fmt.Errorf("write cookies: %w", err)
	}
	return nil
}

// Load replaces the jar contents with the cookies saved at path. A missing file leaves the
// jar empty.
func (j *CookieJar) Load(fs afero.Fs, path string) error {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			j.Clear()
			return nil
		}
		return fmt.Errorf("read cookies: %w", err)
	}
	var records []cookieRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("decode cookies: %w", err)
	}
	j.Clear()
	for _, rec := range records {
		u, err := url.Parse(rec.URL)
		if err != nil || rec.Cookie == nil {
			continue
		}
		j.SetCookies(u, []*http.Cookie{rec.Cookie})
	}
	return nil
}
