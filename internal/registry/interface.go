// Package registry tracks room presence and fans envelopes out across
// server instances via Redis pub/sub.
package registry

import "context"

// Registry is the cross-instance presence and fanout layer. Join/Leave
// maintain the per-room participant set; Publish sends a raw envelope to
// every instance serving the room; Subscribe delivers envelopes published
// by any instance, including this one.
type Registry interface {
	Join(ctx context.Context, roomID, username string) error
	Leave(ctx context.Context, roomID, username string) error
	Participants(ctx context.Context, roomID string) ([]string, error)
	Publish(ctx context.Context, roomID string, data []byte) error
	Subscribe(ctx context.Context, roomID string, deliver func(data []byte)) (func(), error)
	Close() error
}
