// Package shutdown ties command lifetimes to SIGINT and SIGTERM.
package shutdown

import (
	"context"
	"os/signal"
	"syscall"
)

func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
