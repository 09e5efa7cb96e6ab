package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned when a key has no stored blob.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored blob.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// BlobStore is the contract shared by the local and S3 dataset backends.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Walk(ctx context.Context, fn func(ObjectInfo) error) error
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

// Read aborts the copy once the request context is cancelled, e.g. a client dropping an upload.
func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
