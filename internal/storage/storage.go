package storage

import (
	"context"
	"io"
)

// Storage persists downloaded audio. Put returns the location written.
type Storage interface {
	Check(ctx context.Context) error
	Put(ctx context.Context, name string, content io.Reader) (string, error)
}
