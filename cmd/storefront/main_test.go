package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeServer struct {
	err error
}

func (s fakeServer) Shutdown(context.Context) error { return s.err }

type fakeNotifier struct {
	calls int
}

func (n *fakeNotifier) Shutdown() { n.calls++ }

func TestShutdown_DrainsNotifier(t *testing.T) {
	tests := []struct {
		name      string
		serverErr error
	}{
		{"clean", nil},
		{"server timeout", context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &fakeNotifier{}
			err := shutdown(fakeServer{err: tt.serverErr}, n, time.Second, zap.NewNop().Sugar())

			if tt.serverErr != nil {
				assert.True(t, errors.Is(err, tt.serverErr))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1, n.calls, "queued mails are drained even when the server fails to stop")
		})
	}
}
