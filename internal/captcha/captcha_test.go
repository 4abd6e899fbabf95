package captcha

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Smallest valid GIF.
var gifBytes = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\x00\x00\x00\xff\xff\xff!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

func TestImageFromDataURI(t *testing.T) {
	t.Parallel()

	uri := "data:image/gif;base64," + base64.StdEncoding.EncodeToString(gifBytes)
	img, err := ImageFromDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "image/gif", img.MimeType())
	assert.Equal(t, gifBytes, img.Bytes())
	assert.Equal(t, uri, img.DataURI())
	assert.Equal(t, ".gif", img.Extension())

	_, err = ImageFromDataURI("https://example.com/captcha.jpg")
	require.ErrorIs(t, err, ErrInvalidImage)
	_, err = ImageFromDataURI("data:image/gif;base64,@@@")
	require.ErrorIs(t, err, ErrInvalidImage)
}

func TestNewImageSniffsAndValidates(t *testing.T) {
	t.Parallel()

	img, err := ImageFromBase64(base64.StdEncoding.EncodeToString(gifBytes))
	require.NoError(t, err)
	assert.Equal(t, "image/gif", img.MimeType())

	_, err = NewImage(nil, "")
	require.ErrorIs(t, err, ErrInvalidImage)
	_, err = NewImage([]byte("plain text"), "")
	require.ErrorIs(t, err, ErrInvalidImage)
}

func TestResolverFunc(t *testing.T) {
	t.Parallel()

	var r Resolver = ResolverFunc(func(_ context.Context, img Image) (string, error) {
		return img.MimeType(), nil
	})
	img, err := NewImage(gifBytes, "")
	require.NoError(t, err)
	answer, err := r.Resolve(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "image/gif", answer)
}
