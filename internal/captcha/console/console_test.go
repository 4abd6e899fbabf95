package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/captcha"
)

var gifBytes = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

func TestResolveReadsAnswerAndCleansUp(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/tmp", 0o755))
	var out bytes.Buffer
	r := New(fs, "/tmp", strings.NewReader("  AbC12 \n"), &out, nil)

	img, err := captcha.NewImage(gifBytes, "")
	require.NoError(t, err)

	answer, err := r.Resolve(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "AbC12", answer)
	assert.Contains(t, out.String(), "type the captcha")

	entries, err := afero.ReadDir(fs, "/tmp")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestResolveWithoutAnswer(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	r := New(fs, "/tmp", strings.NewReader(""), &bytes.Buffer{}, nil)
	img, err := captcha.NewImage(gifBytes, "")
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), img)
	require.ErrorIs(t, err, ErrNoAnswer)
}
