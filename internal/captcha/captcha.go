// Package captcha defines the CAPTCHA image value and the pluggable resolver contract.
package captcha

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrInvalidImage is returned when the image data cannot be decoded.
var ErrInvalidImage = errors.New("invalid captcha image")

// Image is a CAPTCHA challenge picture.
type Image struct {
	data     []byte
	mimeType string
}

// NewImage wraps raw image bytes. The MIME type is sniffed when empty.
func NewImage(data []byte, mimeType string) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty data", ErrInvalidImage)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return Image{}, fmt.Errorf("%w: mime type %q", ErrInvalidImage, mimeType)
	}
	return Image{data: append([]byte(nil), data...), mimeType: mimeType}, nil
}

// ImageFromBase64 decodes a base64 payload.
func ImageFromBase64(encoded string) (Image, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return NewImage(data, "")
}

// ImageFromDataURI decodes a data:image/...;base64,... URI, the way the login page embeds it.
func ImageFromDataURI(uri string) (Image, error) {
	uri = strings.TrimSpace(uri)
	header, payload, found := strings.Cut(uri, ",")
	if !found || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return Image{}, fmt.Errorf("%w: not a base64 data uri", ErrInvalidImage)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	mimeType := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	return NewImage(data, mimeType)
}

// Bytes returns a copy of the image data.
func (i Image) Bytes() []byte {
	return append([]byte(nil), i.data...)
}

// Base64 returns the image data base64 encoded.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.data)
}

// MimeType returns the image MIME type.
func (i Image) MimeType() string {
	return i.mimeType
}

// DataURI renders the image as an inline data URI.
func (i Image) DataURI() string {
	return "data:" + i.mimeType + ";base64," + i.Base64()
}

// Extension returns a file extension matching the MIME type.
func (i Image) Extension() string {
	switch i.mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

// Resolver turns a CAPTCHA image into its answer.
type Resolver interface {
	Resolve(ctx context.Context, image Image) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, image Image) (string, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, image Image) (string, error) {
	return f(ctx, image)
}
