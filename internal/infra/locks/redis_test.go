package locks

import (
	"context"
	"testing"
	"time"
)

func TestNewRedisLockerRejectsUnusableServer(t *testing.T) {
	cases := []struct {
		name string
		addr string
	}{
		{name: "empty addr", addr: ""},
		// Port 1 is reserved and refuses connections on loopback.
		{name: "unreachable", addr: "127.0.0.1:1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			locker, err := NewRedisLocker(ctx, tc.addr, "", 0)
			if err == nil {
				_ = locker.Close()
				t.Fatalf("expected error for addr %q", tc.addr)
			}
			if locker != nil {
				t.Fatalf("expected nil locker on error, got %+v", locker)
			}
		})
	}
}
