package interceptors

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"canny/backend/internal/logging"
	"canny/backend/internal/telemetry"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []*telemetry.Event
	done   chan struct{}
}

func (c *captureEmitter) Emit(ctx context.Context, e *telemetry.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	c.done <- struct{}{}
	return nil
}

func peerCtx() context.Context {
	return peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.1.2.3"), Port: 5555}})
}

func TestPeerIP(t *testing.T) {
	if got := PeerIP(peerCtx()); got != "10.1.2.3" {
		t.Errorf("PeerIP = %q, want 10.1.2.3", got)
	}
	if got := PeerIP(context.Background()); got != "unknown" {
		t.Errorf("PeerIP without peer = %q, want unknown", got)
	}
}

func TestTelemetryUnary_Emits(t *testing.T) {
	em := &captureEmitter{done: make(chan struct{}, 1)}
	icpt := TelemetryUnary(em, nil, nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err := icpt(peerCtx(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.Unavailable, "down")
	})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("err = %v, want Unavailable passed through", err)
	}

	select {
	case <-em.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	em.mu.Lock()
	ev := em.events[0]
	em.mu.Unlock()
	if ev.Type != telemetry.EventGRPCRequest || ev.Source != telemetry.SourceOps {
		t.Errorf("event = %+v", ev)
	}
	var meta grpcRequestMetadata
	if err := json.Unmarshal(ev.Metadata, &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.StatusCode != "Unavailable" || meta.ClientIP != "10.1.2.3" {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestTelemetryUnary_SkipAndNil(t *testing.T) {
	em := &captureEmitter{done: make(chan struct{}, 1)}
	info := &grpc.UnaryServerInfo{FullMethod: "/x/Y"}
	ok := func(ctx context.Context, req any) (any, error) { return "resp", nil }

	resp, err := TelemetryUnary(em, nil, map[string]bool{"/x/Y": true})(context.Background(), nil, info, ok)
	if err != nil || resp != "resp" {
		t.Fatalf("resp = %v, err = %v", resp, err)
	}
	if _, err := TelemetryUnary(nil, nil, nil)(context.Background(), nil, info, ok); err != nil {
		t.Fatalf("nil emitter: %v", err)
	}
	select {
	case <-em.done:
		t.Error("skipped method must not emit")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoggingUnary(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	icpt := LoggingUnary(log)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, _ = icpt(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) { return nil, nil })
	if buf.Len() != 0 {
		t.Errorf("OK call logged at warn: %s", buf.String())
	}

	_, _ = icpt(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.Internal, "boom")
	})
	if !strings.Contains(buf.String(), "code=Internal") {
		t.Errorf("failure not logged: %s", buf.String())
	}
}
