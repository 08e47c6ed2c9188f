package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := MessagesRelayed
	Init()
	if MessagesRelayed != first {
		t.Error("Init re-registered metrics")
	}
}

func TestHelpersRecord(t *testing.T) {
	Init()

	before := counterValue(t, MessagesRelayed)
	IncRelayed()
	if got := counterValue(t, MessagesRelayed); got != before+1 {
		t.Errorf("Expected relayed %v, got %v", before+1, got)
	}

	SetRooms(3)
	if got := counterValue(t, RoomsActive); got != 3 {
		t.Errorf("Expected rooms gauge 3, got %v", got)
	}

	rejected := MessagesRejected.WithLabelValues("chat_closed")
	before = counterValue(t, rejected)
	IncRejected("chat_closed")
	if got := counterValue(t, rejected); got != before+1 {
		t.Errorf("Expected rejected %v, got %v", before+1, got)
	}
}

func TestCorrelationMiddleware(t *testing.T) {
	var seen string
	h := CorrelationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelation(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get(CorrelationHeader) != "abc-123" {
		t.Errorf("Expected incoming id to be reused, got ctx=%q header=%q", seen, rec.Header().Get(CorrelationHeader))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "abc-123" {
		t.Errorf("Expected generated id, got %q", seen)
	}
}

func TestStartSpanWithoutProvider(t *testing.T) {
	ctx := WithCorrelation(context.Background(), "corr-1")
	_, span := StartSpan(ctx, "test", "noop")
	RecordError(span, nil)
	span.End()
}
