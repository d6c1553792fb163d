// Package document stores generated governance documents: quarterly report
// markdown and portfolio version snapshots, addressed by user and path.
package document

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("document not found")

// Store defines operations for persisting governance documents.
type Store interface {
	Put(ctx context.Context, userID, path string, content []byte) error
	Get(ctx context.Context, userID, path string) ([]byte, error)
	List(ctx context.Context, userID string) ([]string, error)
}
