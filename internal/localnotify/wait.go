package localnotify

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetWait when the host has no such notification
// or the lookup failed.
var ErrNotFound = errors.New("notification not found")

// ListWait is List for callers that want to block. The request itself cannot
// be canceled: if ctx ends first, the eventual reply is discarded.
func (c *Client) ListWait(ctx context.Context) ([]Record, error) {
	ch := make(chan []Record, 1)
	c.List(func(records []Record) { ch <- records })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case records := <-ch:
		return records, nil
	}
}

// GetWait is Get for callers that want to block.
func (c *Client) GetWait(ctx context.Context, name string) (*Record, error) {
	ch := make(chan *Record, 1)
	c.Get(name, func(rec *Record) { ch <- rec })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case rec := <-ch:
		if rec == nil {
			return nil, ErrNotFound
		}
		return rec, nil
	}
}
