// Package store defines interfaces for persisting listed metadata. Implementations live in
// subpackages; this package must not import database drivers or concrete clients.
package store
