package client

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/binrpc/lib/compose"
	"github.com/ValentinKolb/binrpc/rpc/common"
	"github.com/ValentinKolb/binrpc/rpc/serializer"
	"github.com/ValentinKolb/binrpc/rpc/server"
	"github.com/ValentinKolb/binrpc/rpc/service"
	"github.com/ValentinKolb/binrpc/rpc/transport/tcp"
)

// silentServer accepts connections and never replies
func silentServer(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _ = io.Copy(io.Discard, conn)
			}()
		}
	}()
	return l.Addr().String()
}

// echoServer runs a server with echo and add procedures
func echoServer(t *testing.T) string {
	t.Helper()
	r := service.NewRegistry()
	_ = service.Register1(r, "echo", func(_ context.Context, s string) (string, error) { return s, nil })
	_ = service.Register2(r, "add", func(_ context.Context, a, b int64) (int64, error) { return a + b, nil })

	s := server.NewRPCServer(common.DefaultServerConfig(), r, tcp.NewServerConnector(tcp.DefaultOptions()))
	if err := s.Listen("127.0.0.1:0", 0); err != nil {
		t.Fatal(err)
	}
	go func() { _ = s.Serve(context.Background()) }()
	t.Cleanup(func() { _ = s.Shutdown(time.Second) })
	return s.Addr().String()
}

func newTestClient(endpoint string, timeout time.Duration) *RPCClient {
	cfg := common.DefaultClientConfig()
	cfg.Endpoint = endpoint
	cfg.Timeout = timeout
	return NewRPCClient(cfg, tcp.NewClientConnector(tcp.DefaultOptions()))
}

// TestTimeoutBound tests that a call against a silent server fails within
// the configured timeout and leaves the client usable
func TestTimeoutBound(t *testing.T) {
	const timeout = 150 * time.Millisecond
	c := newTestClient(silentServer(t), timeout)
	defer c.Close()

	start := time.Now()
	_, err := Invoke[string](context.Background(), c, "echo", "hi")
	elapsed := time.Since(start)

	if !errors.Is(err, common.ErrTimedOut) {
		t.Fatalf("Expected ErrTimedOut, got %v", err)
	}
	if elapsed < timeout || elapsed > timeout+500*time.Millisecond {
		t.Errorf("Timeout took %s, expected about %s", elapsed, timeout)
	}
	if c.State() != Failed {
		t.Errorf("Expected state Failed, got %s", c.State())
	}

	// a new connection is opened for the next call
	_, err = Invoke[string](context.Background(), c, "echo", "again")
	if !errors.Is(err, common.ErrTimedOut) {
		t.Errorf("Expected ErrTimedOut on the second call, got %v", err)
	}
	if n := c.Metrics().Get("binrpc.client.connects"); n == nil || n.(interface{ Count() int64 }).Count() != 2 {
		t.Errorf("Expected 2 connects, got %v", n)
	}
	if c.FailureCount() != 2 {
		t.Errorf("Expected 2 failures, got %d", c.FailureCount())
	}
}

// TestCallInProgress tests that only one call may be outstanding
func TestCallInProgress(t *testing.T) {
	c := newTestClient(silentServer(t), 5*time.Second)
	defer c.Close()
	ctx := context.Background()

	if err := c.EndCall(ctx); !errors.Is(err, common.ErrNoCall) {
		t.Errorf("Expected ErrNoCall, got %v", err)
	}

	arg := compose.Decomposer(compose.String, "x")
	if err := c.BeginCall(ctx, "echo", nil, arg); err != nil {
		t.Fatalf("BeginCall failed: %v", err)
	}
	if err := c.BeginCall(ctx, "echo", nil, arg); !errors.Is(err, common.ErrCallInProgress) {
		t.Errorf("Expected ErrCallInProgress, got %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		c.Cancel()
	}()
	start := time.Now()
	if err := c.EndCall(ctx); !errors.Is(err, common.ErrCanceled) {
		t.Errorf("Expected ErrCanceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Cancel took %s", time.Since(start))
	}

	// the slot is free again
	if err := c.BeginCall(ctx, "echo", nil, arg); err != nil {
		t.Errorf("BeginCall after cancel failed: %v", err)
	}
}

// TestContextCancel tests that EndCall honors its context
func TestContextCancel(t *testing.T) {
	c := newTestClient(silentServer(t), 5*time.Second)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := Invoke[string](ctx, c, "echo", "hi")
	if !errors.Is(err, common.ErrCanceled) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected ErrCanceled wrapping the context error, got %v", err)
	}
}

// TestConnectFailure tests calls against an endpoint nobody listens on
func TestConnectFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	c := newTestClient(addr, time.Second)
	defer c.Close()
	if _, err := Invoke[string](context.Background(), c, "echo", "hi"); err == nil {
		t.Fatal("Expected connect error")
	}
	if c.State() != Failed {
		t.Errorf("Expected state Failed, got %s", c.State())
	}
}

// TestRemoteProcedure tests the typed call helpers against a real server
func TestRemoteProcedure(t *testing.T) {
	c := newTestClient(echoServer(t), 2*time.Second)
	defer c.Close()
	ctx := context.Background()

	add, err := NewRemoteProcedure[int64](c, "add")
	if err != nil {
		t.Fatal(err)
	}
	for i := int64(0); i < 5; i++ {
		got, err := add.Call(ctx, i, 10)
		if err != nil || got != i+10 {
			t.Errorf("add(%d, 10) = %d, %v", i, got, err)
		}
	}

	// dictionary reset between calls
	c.ResetDictionary()
	got, err := Invoke[string](ctx, c, "echo", "after reset")
	if err != nil || got != "after reset" {
		t.Errorf("Expected echo after reset, got %q, %v", got, err)
	}

	if c.State() != Idle {
		t.Errorf("Expected Idle, got %s", c.State())
	}
	if c.CallCount() != 6 || c.FailureCount() != 0 {
		t.Errorf("Unexpected counters: calls %d failures %d", c.CallCount(), c.FailureCount())
	}

	if _, err := NewRemoteProcedure[chan int](c, "bad"); err == nil {
		t.Error("Expected error for a result type without converter")
	}
}

// garbageServer answers the first request of every connection with reply
func garbageServer(t *testing.T, reply []byte) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				if _, err := conn.Read(make([]byte, 1024)); err != nil {
					return
				}
				_, _ = conn.Write(reply)
				_, _ = io.Copy(io.Discard, conn)
			}()
		}
	}()
	return l.Addr().String()
}

// TestMalformedReply tests that a broken reply stream fails the call as a
// closed connection
func TestMalformedReply(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
	}{
		{"unknown frame byte", []byte{0x7A}},
		{"invalid tag", []byte{0xC1, 0x0F}},
		{"bytes after reply", []byte{0xC1, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(garbageServer(t, tt.reply), time.Second)
			defer c.Close()

			_, err := c.CallNode(context.Background(), "echo")
			if !errors.Is(err, common.ErrConnectionClosed) {
				t.Errorf("Expected ErrConnectionClosed, got %v", err)
			}
			if !errors.Is(err, serializer.ErrProtocol) {
				t.Errorf("Expected ErrProtocol as cause, got %v", err)
			}
			if c.State() != Failed {
				t.Errorf("Expected state Failed, got %s", c.State())
			}
		})
	}
}
