// Package bus carries SSE messages between processes. API servers publish
// job events; every process forwards received messages into its local hub.
package bus

import (
	"context"

	"github.com/echoform/echoform-backend/internal/sse"
)

type Bus interface {
	Publish(ctx context.Context, msg sse.Message) error
	StartForwarder(ctx context.Context, onMsg func(m sse.Message)) error
	Close() error
}
