// Package web resolves CAPTCHAs through a small HTTP page: pending challenges are listed,
// and a human posts the answer for each one.
//
// Routes:
//   - GET /               HTML page with every pending challenge and an answer form.
//   - GET /captchas       JSON list of pending challenges.
//   - GET /captchas/{id}/image   raw image bytes.
//   - POST /captchas/{id} answer, as form field "answer" or JSON {"answer": "..."}.
//   - GET /healthz, GET /metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/captcha"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/metrics"
)

// ErrTimeout is returned when nobody answers a challenge in time.
var ErrTimeout = errors.New("captcha answer timed out")

const defaultAnswerTimeout = 5 * time.Minute

type challenge struct {
	id      string
	image   captcha.Image
	created time.Time
	answer  chan string
}

// Resolver queues challenges until they are answered over HTTP.
type Resolver struct {
	mu      sync.Mutex
	pending map[string]*challenge
	timeout time.Duration
	now     func() time.Time
	router  chi.Router
	logger  *zap.Logger
}

// New builds a Resolver. A zero timeout waits five minutes per challenge.
func New(timeout time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultAnswerTimeout
	}
	r := &Resolver{
		pending: make(map[string]*challenge),
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}

	router := chi.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware(logger))
	router.Use(recoverMiddleware(logger))
	router.Use(metrics.Middleware)
	router.Get("/", r.index)
	router.Get("/healthz", healthz)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	router.Route("/captchas", func(cr chi.Router) {
		cr.Get("/", r.list)
		cr.Get("/{id}/image", r.image)
		cr.Post("/{id}", r.answer)
	})
	r.router = router
	return r
}

// Handler returns the router for use with http.Server.
func (r *Resolver) Handler() http.Handler {
	return r.router
}

// Resolve implements captcha.Resolver. It blocks until the challenge is answered, the
// timeout elapses, or ctx ends.
func (r *Resolver) Resolve(ctx context.Context, image captcha.Image) (string, error) {
	c := &challenge{
		id:      uuid.NewString(),
		image:   image,
		created: r.now(),
		answer:  make(chan string, 1),
	}
	r.mu.Lock()
	r.pending[c.id] = c
	r.mu.Unlock()
	defer r.remove(c.id)

	r.logger.Info("captcha pending", zap.String("id", c.id))

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case answer := <-c.answer:
		return answer, nil
	case <-timer.C:
		return "", fmt.Errorf("%w: %s", ErrTimeout, c.id)
	case <-ctx.Done():
		return "", fmt.Errorf("captcha %s canceled: %w", c.id, ctx.Err())
	}
}

// Pending returns the ids of unanswered challenges, oldest first.
func (r *Resolver) Pending() []string {
	items := r.snapshot()
	ids := make([]string, 0, len(items))
	for _, c := range items {
		ids = append(ids, c.id)
	}
	return ids
}

// ListenAndServe serves the resolver on addr until ctx ends.
func (r *Resolver) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("captcha server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("captcha server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("captcha server shutdown: %w", err)
	}
	return nil
}

func (r *Resolver) remove(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

func (r *Resolver) lookup(id string) (*challenge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.pending[id]
	return c, ok
}

func (r *Resolver) snapshot() []*challenge {
	r.mu.Lock()
	items := make([]*challenge, 0, len(r.pending))
	for _, c := range r.pending {
		items = append(items, c)
	}
	r.mu.Unlock()
	sort.Slice(items, func(i, j int) bool { return items[i].created.Before(items[j].created) })
	return items
}

type challengeDTO struct {
	ID        string    `json:"id"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
	ImageURL  string    `json:"image_url"`
}

func (r *Resolver) list(w http.ResponseWriter, _ *http.Request) {
	items := r.snapshot()
	out := make([]challengeDTO, 0, len(items))
	for _, c := range items {
		out = append(out, challengeDTO{
			ID:        c.id,
			MimeType:  c.image.MimeType(),
			CreatedAt: c.created,
			ImageURL:  "/captchas/" + c.id + "/image",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"captchas": out})
}

func (r *Resolver) image(w http.ResponseWriter, req *http.Request) {
	c, ok := r.lookup(chi.URLParam(req, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "captcha not found")
		return
	}
	w.Header().Set("Content-Type", c.image.MimeType())
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(c.image.Bytes()); err != nil {
		r.logger.Warn("write captcha image failed", zap.Error(err))
	}
}

func (r *Resolver) answer(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	answer, err := readAnswer(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, ok := r.lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "captcha not found")
		return
	}
	select {
	case c.answer <- answer:
	default:
		writeError(w, http.StatusConflict, "captcha already answered")
		return
	}
	if strings.Contains(req.Header.Get("Accept"), "text/html") {
		http.Redirect(w, req, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "answered"})
}

func readAnswer(req *http.Request) (string, error) {
	var answer string
	if strings.HasPrefix(req.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Answer string `json:"answer"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return "", errors.New("invalid JSON")
		}
		answer = body.Answer
	} else {
		if err := req.ParseForm(); err != nil {
			return "", errors.New("invalid form")
		}
		answer = req.PostForm.Get("answer")
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", errors.New("answer is required")
	}
	return answer, nil
}

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><meta http-equiv="refresh" content="5"><title>CAPTCHA</title></head>
<body>
{{if not .}}<p>No pending captchas.</p>{{end}}
{{range .}}
<form method="post" action="/captchas/{{.ID}}">
  <img src="{{.DataURI}}" alt="captcha {{.ID}}">
  <input name="answer" autocomplete="off" autofocus>
  <button type="submit">Send</button>
</form>
{{end}}
</body></html>`))

type indexItem struct {
	ID      string
	DataURI template.URL
}

func (r *Resolver) index(w http.ResponseWriter, _ *http.Request) {
	items := r.snapshot()
	view := make([]indexItem, 0, len(items))
	for _, c := range items {
		// The data URI is built from decoded bytes, never from request input.
		view = append(view, indexItem{ID: c.id, DataURI: template.URL(c.image.DataURI())})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, view); err != nil {
		r.logger.Warn("render captcha page failed", zap.Error(err))
	}
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
