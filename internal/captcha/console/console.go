// Package console resolves CAPTCHAs by asking a human at the terminal.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/captcha"
)

// ErrNoAnswer is returned when the input ends before an answer is typed.
var ErrNoAnswer = errors.New("no captcha answer provided")

// Resolver writes the image to a temporary file and reads the answer from in.
type Resolver struct {
	fs     afero.Fs
	dir    string
	in     *bufio.Reader
	out    io.Writer
	logger *zap.Logger
}

// New builds a console Resolver. An empty dir uses the system temp directory.
func New(fs afero.Fs, dir string, in io.Reader, out io.Writer, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{fs: fs, dir: dir, in: bufio.NewReader(in), out: out, logger: logger}
}

// Resolve implements captcha.Resolver.
func (r *Resolver) Resolve(ctx context.Context, image captcha.Image) (string, error) {
	file, err := afero.TempFile(r.fs, r.dir, "captcha-*"+image.Extension())
	if err != nil {
		return "", fmt.Errorf("create captcha file: %w", err)
	}
	path := file.Name()
	defer func() {
		if err := r.fs.Remove(path); err != nil {
			r.logger.Debug("remove captcha file", zap.String("path", path), zap.Error(err))
		}
	}()
	if _, err := file.Write(image.Bytes()); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("write captcha file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close captcha file: %w", err)
	}

	if _, err := fmt.Fprintf(r.out, "Open %s and type the captcha: ", path); err != nil {
		return "", fmt.Errorf("prompt: %w", err)
	}

	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := r.in.ReadString('\n')
		done <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("captcha prompt canceled: %w", ctx.Err())
	case res := <-done:
		answer := strings.TrimSpace(res.line)
		if answer != "" {
			return answer, nil
		}
		if res.err != nil && !errors.Is(res.err, io.EOF) {
			return "", fmt.Errorf("read captcha answer: %w", res.err)
		}
		return "", ErrNoAnswer
	}
}
