// Package metadata defines the document metadata extracted from the portal results table.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
)

// ErrEmptyUUID is returned when a Metadata is built without a UUID.
var ErrEmptyUUID = errors.New("metadata uuid is required")

// Metadata is one fiscal document row: a UUID plus open attributes such as column
// values and resource URLs.
type Metadata struct {
	uuid string
	data map[string]string
}

// New builds a Metadata. The "uuid" attribute always reflects the given uuid.
func New(uuid string, data map[string]string) (Metadata, error) {
	uuid = strings.TrimSpace(uuid)
	if uuid == "" {
		return Metadata{}, ErrEmptyUUID
	}
	copied := make(map[string]string, len(data)+1)
	for k, v := range data {
		copied[k] = v
	}
	copied["uuid"] = uuid
	return Metadata{uuid: uuid, data: copied}, nil
}

// UUID returns the document identifier.
func (m Metadata) UUID() string {
	return m.uuid
}

// Get returns the attribute value or an empty string when absent.
func (m Metadata) Get(key string) string {
	return m.data[key]
}

// Has reports whether the attribute is present.
func (m Metadata) Has(key string) bool {
	_, ok := m.data[key]
	return ok
}

// Data returns a copy of every attribute.
func (m Metadata) Data() map[string]string {
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

// ResourceURL returns the download URL for the resource type, empty if none.
func (m Metadata) ResourceURL(rt portal.ResourceType) string {
	return m.Get(rt.MetadataKey())
}

// HasResource reports whether the row links the given resource.
func (m Metadata) HasResource(rt portal.ResourceType) bool {
	return m.ResourceURL(rt) != ""
}

// MarshalJSON renders the attribute map.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.data)
}

// UnmarshalJSON reads an attribute map holding a "uuid" key.
func (m *Metadata) UnmarshalJSON(b []byte) error {
	var data map[string]string
	if err := json.Unmarshal(b, &data); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	parsed, err := New(data["uuid"], data)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
