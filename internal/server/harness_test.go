package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/tourneychat/internal/archive"
	"github.com/Tyrowin/tourneychat/internal/chat"
	"github.com/Tyrowin/tourneychat/internal/clock"
	"github.com/Tyrowin/tourneychat/internal/config"
	"github.com/Tyrowin/tourneychat/internal/history"
	"github.com/Tyrowin/tourneychat/internal/identity"
	"github.com/Tyrowin/tourneychat/internal/registry"
	"github.com/Tyrowin/tourneychat/internal/store"
)

const (
	testOriginURL = "http://localhost:8080"
	testSecret    = "test-secret"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// harness runs a full gateway against in-memory collaborators.
type harness struct {
	t         *testing.T
	cfg       config.Config
	clock     *clock.FakeClock
	authority *registry.Memory
	log       *store.Memory
	manager   *chat.Manager
	tokens    *identity.JWTManager
	gw        *Gateway
	srv       *httptest.Server
}

func newHarness(t *testing.T, customize func(cfg *config.Config)) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.JWTSecret = testSecret
	cfg.AllowedOrigins = []string{testOriginURL}
	cfg.RateLimit.Burst = 100
	if customize != nil {
		customize(&cfg)
	}

	fc := clock.Fake(testNow)
	authority := registry.NewMemory()
	authority.PutTournament(registry.Tournament{
		ID:       "t1",
		Name:     "Spring Open",
		Status:   registry.StatusActive,
		StartsAt: testNow.Add(-time.Hour),
		EndsAt:   testNow.Add(time.Hour),
	})
	authority.Register("t1", "alice", "bob", "carol")

	log := store.NewMemory()
	manager := chat.NewManager(chat.Options{Clock: fc, Logger: zap.NewNop()})

	writer := archive.NewWriter(log, archive.Options{Logger: zap.NewNop()})
	ctx, cancel := context.WithCancel(context.Background())
	writer.Start(ctx)
	manager.AddSink(writer)

	gw := NewGateway(cfg, Deps{
		Manager:   manager,
		Authority: authority,
		Verifier:  identity.NewJWTManager(identity.JWTConfig{Secret: testSecret, Issuer: cfg.JWTIssuer}),
		History:   history.NewService(authority, log, history.Options{Clock: fc, Logger: zap.NewNop()}),
		Clock:     fc,
		Logger:    zap.NewNop(),
	})
	gw.StartHub()
	srv := httptest.NewServer(gw.Handler())

	t.Cleanup(func() {
		_ = gw.Hub().Shutdown(2 * time.Second)
		srv.Close()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer closeCancel()
		_ = writer.Close(closeCtx)
		cancel()
	})

	return &harness{
		t:         t,
		cfg:       cfg,
		clock:     fc,
		authority: authority,
		log:       log,
		manager:   manager,
		tokens:    identity.NewJWTManager(identity.JWTConfig{Secret: testSecret, Issuer: cfg.JWTIssuer}),
		gw:        gw,
		srv:       srv,
	}
}

func (h *harness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
}

func (h *harness) token(userID string) string {
	h.t.Helper()
	tok, err := h.tokens.Mint(userID, strings.ToUpper(userID[:1])+userID[1:], time.Hour)
	if err != nil {
		h.t.Fatalf("mint token: %v", err)
	}
	return tok
}

func (h *harness) dial(userID string) *wsClient {
	h.t.Helper()
	header := http.Header{}
	header.Set("Origin", testOriginURL)
	header.Set("Authorization", "Bearer "+h.token(userID))

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(h.wsURL(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		h.t.Fatalf("dial as %s: %v", userID, err)
	}
	h.t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: h.t, conn: conn}
}

// dialStatus attempts a handshake and returns the HTTP status of the response.
func (h *harness) dialStatus(header http.Header, rawQuery string) (int, http.Header) {
	h.t.Helper()
	url := h.wsURL()
	if rawQuery != "" {
		url += "?" + rawQuery
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		_ = conn.Close()
	}
	if resp == nil {
		h.t.Fatalf("no handshake response: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, resp.Header
}

func (h *harness) get(path, userID string) *http.Response {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+path, http.NoBody)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+h.token(userID))
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("GET %s: %v", path, err)
	}
	h.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// wsClient reads newline-batched event frames one envelope at a time.
type wsClient struct {
	t       *testing.T
	conn    *websocket.Conn
	pending []chat.Envelope
}

func (c *wsClient) emit(eventType string, payload any) {
	c.t.Helper()
	frame := map[string]any{"type": eventType}
	if payload != nil {
		frame["payload"] = payload
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		c.t.Fatalf("write %s: %v", eventType, err)
	}
}

func (c *wsClient) join(tournamentID string, members ...string) {
	c.t.Helper()
	c.emit(chat.EventJoinRoom, chat.JoinRequest{
		TournamentID: tournamentID,
		Members:      members,
		EndTime:      testNow.Add(24 * time.Hour),
	})
}

func (c *wsClient) send(tournamentID, text string) {
	c.t.Helper()
	c.emit(chat.EventSendMessage, chat.SendRequest{TournamentID: tournamentID, Text: text})
}

func (c *wsClient) next() chat.Envelope {
	c.t.Helper()
	for len(c.pending) == 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
			c.t.Fatalf("set read deadline: %v", err)
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("read event: %v", err)
		}
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var env chat.Envelope
			if err := json.Unmarshal(line, &env); err != nil {
				c.t.Fatalf("decode event %q: %v", line, err)
			}
			c.pending = append(c.pending, env)
		}
	}
	env := c.pending[0]
	c.pending = c.pending[1:]
	return env
}

// expect reads the next event, checks its type and decodes its payload into
// out when out is not nil.
func (c *wsClient) expect(eventType string, out any) {
	c.t.Helper()
	env := c.next()
	if env.Type != eventType {
		c.t.Fatalf("expected %s event, got %s: %s", eventType, env.Type, env.Payload)
	}
	if out != nil {
		if err := json.Unmarshal(env.Payload, out); err != nil {
			c.t.Fatalf("decode %s payload: %v", eventType, err)
		}
	}
}

func (c *wsClient) expectError(kind chat.Kind, requestType string) chat.ErrorPayload {
	c.t.Helper()
	var payload chat.ErrorPayload
	c.expect(chat.EventError, &payload)
	if payload.Kind != kind {
		c.t.Fatalf("expected error kind %s, got %s (%s)", kind, payload.Kind, payload.Message)
	}
	if payload.RequestType != requestType {
		c.t.Fatalf("expected request type %q, got %q", requestType, payload.RequestType)
	}
	return payload
}

// expectNone asserts nothing arrives within timeout. The connection cannot
// be read from afterwards.
func (c *wsClient) expectNone(timeout time.Duration) {
	c.t.Helper()
	if len(c.pending) > 0 {
		c.t.Fatalf("unexpected %s event pending", c.pending[0].Type)
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		c.t.Fatalf("set read deadline: %v", err)
	}
	if _, data, err := c.conn.ReadMessage(); err == nil {
		c.t.Fatalf("expected no event, got %s", data)
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
