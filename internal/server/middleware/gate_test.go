package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"canny/backend/internal/identity/service"
	"canny/backend/internal/server/httpx"
	"canny/backend/internal/telemetry"
)

// stubVerifier returns a fixed result and records the tokens it was given.
type stubVerifier struct {
	res           *service.GateResult
	err           error
	access, renew string
}

func (s *stubVerifier) Verify(ctx context.Context, accessToken, refreshToken string) (*service.GateResult, error) {
	s.access, s.renew = accessToken, refreshToken
	return s.res, s.err
}

// identityEcho writes the identity it sees in context.
func identityEcho(w http.ResponseWriter, r *http.Request) {
	uid, _ := GetUserID(r.Context())
	did, _ := GetDeviceID(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]string{"user": uid, "device": did})
}

func gatedRequest(h http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/plaid/get-link-token", nil)
	req.Header.Set(httpx.HeaderAccessToken, "A")
	req.Header.Set(httpx.HeaderRefreshToken, "R")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGate_Allow(t *testing.T) {
	v := &stubVerifier{res: &service.GateResult{UserID: "u1", DeviceID: "D1"}}
	rec := gatedRequest(Gate(v, nil)(http.HandlerFunc(identityEcho)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if v.access != "A" || v.renew != "R" {
		t.Errorf("verifier got (%q, %q), want (A, R)", v.access, v.renew)
	}
	if got := rec.Header().Get(httpx.HeaderAccessToken); got != "" {
		t.Errorf("access-token header = %q, want none", got)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["user"] != "u1" || body["device"] != "D1" {
		t.Errorf("identity in context = %v", body)
	}
}

func TestGate_RefreshSetsHeader(t *testing.T) {
	v := &stubVerifier{res: &service.GateResult{UserID: "u1", DeviceID: "D1", NewAccessToken: "A2"}}
	rec := gatedRequest(Gate(v, nil)(http.HandlerFunc(identityEcho)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get(httpx.HeaderAccessToken); got != "A2" {
		t.Errorf("access-token header = %q, want A2", got)
	}
}

func TestGate_Errors(t *testing.T) {
	testCases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{service.ErrMissingCredentials, http.StatusUnauthorized, httpx.CodeMissingCredentials},
		{service.ErrInvalidCredentials, http.StatusUnauthorized, httpx.CodeInvalidCredentials},
		{service.ErrSessionExpired, http.StatusUnauthorized, httpx.CodeSessionExpired},
		{errors.New("find session: connection refused"), http.StatusInternalServerError, httpx.CodeUpstreamFailure},
	}
	for _, tc := range testCases {
		t.Run(tc.wantCode, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
			rec := gatedRequest(Gate(&stubVerifier{err: tc.err}, nil)(next))

			if called {
				t.Error("next handler must not run")
			}
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var body httpx.ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tc.wantCode)
			}
			if body.Message == "" || strings.Contains(body.Message, "connection refused") {
				t.Errorf("message = %q", body.Message)
			}
		})
	}
}

func TestGate_CountsDecisions(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("test")

	allow := Gate(&stubVerifier{res: &service.GateResult{UserID: "u1", DeviceID: "D1"}}, nil, WithMeter(meter))
	deny := Gate(&stubVerifier{err: service.ErrSessionExpired}, nil, WithMeter(meter))
	next := http.HandlerFunc(identityEcho)
	gatedRequest(allow(next))
	gatedRequest(allow(next))
	gatedRequest(deny(next))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "canny.gate.decisions" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("decisions data = %T, want Sum[int64]", m.Data)
			}
			for _, dp := range sum.DataPoints {
				outcome, _ := dp.Attributes.Value("outcome")
				got[outcome.AsString()] += dp.Value
			}
		}
	}
	if got[outcomeAllow] != 2 || got[outcomeSessionExpired] != 1 {
		t.Errorf("decisions = %v, want allow=2 session_expired=1", got)
	}
}

type captureEmitter struct {
	mu     sync.Mutex
	events []*telemetry.Event
	done   chan struct{}
}

func newCaptureEmitter() *captureEmitter {
	return &captureEmitter{done: make(chan struct{}, 8)}
}

func (c *captureEmitter) Emit(ctx context.Context, e *telemetry.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	c.done <- struct{}{}
	return nil
}

func (c *captureEmitter) wait(t *testing.T) *telemetry.Event {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func TestGate_RefreshEmitsEvent(t *testing.T) {
	em := newCaptureEmitter()
	v := &stubVerifier{res: &service.GateResult{UserID: "u1", DeviceID: "D1", NewAccessToken: "A2"}}
	gatedRequest(Gate(v, nil, WithEventEmitter(em))(http.HandlerFunc(identityEcho)))

	ev := em.wait(t)
	if ev.Type != telemetry.EventGateRefresh || ev.UserID != "u1" || ev.DeviceID != "D1" {
		t.Errorf("event = %+v", ev)
	}
}
