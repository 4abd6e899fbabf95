package resource

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/gateway"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
)

// ErrDestinationMissing is returned by SaveTo when the folder does not exist and may not be created.
var ErrDestinationMissing = errors.New("destination folder does not exist")

// FolderHandler writes each downloaded resource into a folder using the type's file name.
// Write failures are reported as handler errors and only affect their own item.
type FolderHandler struct {
	fs           afero.Fs
	dir          string
	resourceType portal.ResourceType
	logger       *zap.Logger
}

// NewFolderHandler builds a FolderHandler over fs.
func NewFolderHandler(fs afero.Fs, dir string, resourceType portal.ResourceType, logger *zap.Logger) *FolderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FolderHandler{fs: fs, dir: dir, resourceType: resourceType, logger: logger}
}

// OnSuccess implements Handler.
func (h *FolderHandler) OnSuccess(_ context.Context, uuid string, content []byte, _ gateway.Response) error {
	destination := filepath.Join(h.dir, h.resourceType.FileName(uuid))
	if err := afero.WriteFile(h.fs, destination, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", destination, err)
	}
	return nil
}

// OnError implements Handler.
func (h *FolderHandler) OnError(_ context.Context, err *DownloadError) {
	h.logger.Debug("resource not saved", zap.String("uuid", err.UUID), zap.Error(err))
}

// PrepareFolder makes sure dir exists on fs, creating it when createDir is set.
func PrepareFolder(fs afero.Fs, dir string, createDir bool) error {
	exists, err := afero.DirExists(fs, dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if exists {
		return nil
	}
	if !createDir {
		return fmt.Errorf("%w: %s", ErrDestinationMissing, dir)
	}
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

// SaveTo downloads every resource into dir on fs, creating it when createDir is set.
func (d *Downloader) SaveTo(ctx context.Context, fs afero.Fs, dir string, createDir bool) ([]string, error) {
	if err := PrepareFolder(fs, dir, createDir); err != nil {
		return nil, err
	}
	return d.Download(ctx, NewFolderHandler(fs, dir, d.resourceType, d.logger))
}

// BlobStore persists documents. Implemented by the storage backends.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher announces stored documents.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// StoredDocument is the payload published for every stored resource.
type StoredDocument struct {
	UUID     string    `json:"uuid"`
	Resource string    `json:"resource"`
	URI      string    `json:"uri"`
	Bytes    int       `json:"bytes"`
	SHA256   string    `json:"sha256"`
	StoredAt time.Time `json:"stored_at"`
}

// BlobHandler uploads each resource to a BlobStore under prefix and, when a publisher is set,
// publishes a StoredDocument to topic.
type BlobHandler struct {
	store        BlobStore
	prefix       string
	resourceType portal.ResourceType
	publisher    Publisher
	topic        string
	logger       *zap.Logger
	now          func() time.Time
}

// BlobHandlerOption customizes a BlobHandler.
type BlobHandlerOption func(*BlobHandler)

// WithPublisher announces stored documents on topic.
func WithPublisher(publisher Publisher, topic string) BlobHandlerOption {
	return func(h *BlobHandler) {
		h.publisher = publisher
		h.topic = topic
	}
}

// WithClock overrides the timestamp source of published payloads.
func WithClock(now func() time.Time) BlobHandlerOption {
	return func(h *BlobHandler) {
		h.now = now
	}
}

// NewBlobHandler builds a BlobHandler.
func NewBlobHandler(store BlobStore, prefix string, resourceType portal.ResourceType, logger *zap.Logger, opts ...BlobHandlerOption) *BlobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &BlobHandler{
		store:        store,
		prefix:       prefix,
		resourceType: resourceType,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ObjectPath is the blob path of the resource of uuid.
func (h *BlobHandler) ObjectPath(uuid string) string {
	return path.Join(h.prefix, h.resourceType.String(), h.resourceType.FileName(uuid))
}

// OnSuccess implements Handler.
func (h *BlobHandler) OnSuccess(ctx context.Context, uuid string, content []byte, _ gateway.Response) error {
	uri, err := h.store.PutObject(ctx, h.ObjectPath(uuid), h.resourceType.ContentType(), bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("store %s: %w", uuid, err)
	}
	if h.publisher == nil {
		return nil
	}
	doc := StoredDocument{
		UUID:     uuid,
		Resource: h.resourceType.String(),
		URI:      uri,
		Bytes:    len(content),
		SHA256:   digest(content),
		StoredAt: h.now().UTC(),
	}
	if _, err := h.publisher.Publish(ctx, h.topic, doc); err != nil {
		return fmt.Errorf("publish %s: %w", uuid, err)
	}
	return nil
}

// OnError implements Handler.
func (h *BlobHandler) OnError(_ context.Context, err *DownloadError) {
	h.logger.Debug("resource not stored", zap.String("uuid", err.UUID), zap.Error(err))
}

func digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
