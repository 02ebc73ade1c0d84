// Package storage holds generated artifacts, today just completion
// certificates. Keys are caller-chosen and stable so artifacts can be
// served from cache instead of regenerated.
package storage

import "io"

type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	Exists(key string) (bool, error)
}
