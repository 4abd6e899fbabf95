package store

import (
	"context"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/metadata"
	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
)

// MetadataRepository upserts metadata rows keyed by UUID.
type MetadataRepository interface {
	// SaveMetadata stores every row of list and returns how many were written.
	SaveMetadata(ctx context.Context, downloadType portal.DownloadType, list metadata.List) (int, error)
	Close()
}
