package storage

import (
	"context"
	"errors"
	"time"

	"localnotify/internal/localnotify"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store holds scheduled notifications. Put replaces any record with the same
// name and moves it to the end of the List order.
type Store interface {
	Put(ctx context.Context, rec localnotify.WireRecord) error
	Get(ctx context.Context, name string) (localnotify.WireRecord, bool, error)
	// List returns every record, least recently put first.
	List(ctx context.Context) ([]localnotify.WireRecord, error)
	Delete(ctx context.Context, name string) (bool, error)
	Clear(ctx context.Context) error
	Close() error
}
