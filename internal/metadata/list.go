package metadata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/cfdi-sat-scraper/internal/portal"
)

// ErrNotFound is returned by List.Get when the UUID is absent.
var ErrNotFound = errors.New("metadata not found")

// List is an immutable set of Metadata keyed by lowercase UUID. Every operation
// returns a new List; the receiver is never modified.
type List struct {
	keys  []string
	items map[string]Metadata
}

// NewList builds a List. Later entries overwrite earlier ones with the same UUID.
func NewList(items ...Metadata) List {
	l := List{items: make(map[string]Metadata, len(items))}
	for _, item := range items {
		l.put(item)
	}
	return l
}

func (l *List) put(item Metadata) {
	key := strings.ToLower(item.UUID())
	if _, exists := l.items[key]; !exists {
		l.keys = append(l.keys, key)
	}
	l.items[key] = item
}

func (l List) clone(capacity int) List {
	out := List{
		keys:  make([]string, 0, capacity),
		items: make(map[string]Metadata, capacity),
	}
	return out
}

// Merge returns the union of l and other. On UUID collisions the entry from other wins.
func (l List) Merge(other List) List {
	out := l.clone(l.Len() + other.Len())
	for _, key := range l.keys {
		out.put(l.items[key])
	}
	for _, key := range other.keys {
		out.put(other.items[key])
	}
	return out
}

// Len returns the number of entries.
func (l List) Len() int {
	return len(l.keys)
}

// Has reports whether the UUID is present, case-insensitively.
func (l List) Has(uuid string) bool {
	_, ok := l.items[strings.ToLower(uuid)]
	return ok
}

// Find returns the entry for uuid and whether it exists.
func (l List) Find(uuid string) (Metadata, bool) {
	item, ok := l.items[strings.ToLower(uuid)]
	return item, ok
}

// Get returns the entry for uuid or ErrNotFound.
func (l List) Get(uuid string) (Metadata, error) {
	item, ok := l.Find(uuid)
	if !ok {
		return Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, uuid)
	}
	return item, nil
}

// Items returns the entries in insertion order.
func (l List) Items() []Metadata {
	out := make([]Metadata, 0, len(l.keys))
	for _, key := range l.keys {
		out = append(out, l.items[key])
	}
	return out
}

// Uuids returns the UUIDs of the entries in insertion order.
func (l List) Uuids() []string {
	out := make([]string, 0, len(l.keys))
	for _, key := range l.keys {
		out = append(out, l.items[key].UUID())
	}
	return out
}

func (l List) filter(keep func(Metadata) bool) List {
	out := l.clone(l.Len())
	for _, key := range l.keys {
		if item := l.items[key]; keep(item) {
			out.put(item)
		}
	}
	return out
}

func uuidSet(uuids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(uuids))
	for _, uuid := range uuids {
		set[strings.ToLower(uuid)] = struct{}{}
	}
	return set
}

// FilterWithUuids keeps only the given UUIDs.
func (l List) FilterWithUuids(uuids []string) List {
	set := uuidSet(uuids)
	return l.filter(func(m Metadata) bool {
		_, ok := set[strings.ToLower(m.UUID())]
		return ok
	})
}

// FilterWithOutUuids drops the given UUIDs.
func (l List) FilterWithOutUuids(uuids []string) List {
	set := uuidSet(uuids)
	return l.filter(func(m Metadata) bool {
		_, ok := set[strings.ToLower(m.UUID())]
		return !ok
	})
}

// FilterWithResourceLink keeps only entries holding a URL for the resource type.
func (l List) FilterWithResourceLink(rt portal.ResourceType) List {
	return l.filter(func(m Metadata) bool {
		return m.HasResource(rt)
	})
}
