package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/tourneychat/internal/chat"
	"github.com/Tyrowin/tourneychat/internal/clock"
	"github.com/Tyrowin/tourneychat/internal/config"
	"github.com/Tyrowin/tourneychat/internal/history"
	"github.com/Tyrowin/tourneychat/internal/identity"
	"github.com/Tyrowin/tourneychat/internal/logging"
	"github.com/Tyrowin/tourneychat/internal/registry"
	"github.com/Tyrowin/tourneychat/internal/telemetry"
)

const authorityTimeout = 5 * time.Second

// Deps are the collaborators a Gateway needs.
type Deps struct {
	Manager   *chat.Manager
	Authority registry.Authority
	Verifier  identity.Verifier
	History   *history.Service
	Clock     clock.Clock
	Logger    *zap.Logger
	// Ready reports whether backing stores are reachable. Nil means always
	// ready.
	Ready func(ctx context.Context) error
}

// Gateway authenticates connections and routes their events.
type Gateway struct {
	cfg       config.Config
	manager   *chat.Manager
	authority registry.Authority
	verifier  identity.Verifier
	history   *history.Service
	clock     clock.Clock
	logger    *zap.Logger
	ready     func(ctx context.Context) error
	origins   *originPolicy
	upgrader  websocket.Upgrader
	hub       *Hub
}

// NewGateway wires a Gateway and its Hub. The hub is not started.
func NewGateway(cfg config.Config, deps Deps) *Gateway {
	cfg.Sanitize()
	logger := deps.Logger
	if logger == nil {
		logger = logging.L()
	}
	c := deps.Clock
	if c == nil {
		c = clock.Real()
	}

	g := &Gateway{
		cfg:       cfg,
		manager:   deps.Manager,
		authority: deps.Authority,
		verifier:  deps.Verifier,
		history:   deps.History,
		clock:     c,
		logger:    logger.Named("gateway"),
		ready:     deps.Ready,
		origins:   newOriginPolicy(cfg.AllowedOrigins, logger),
		hub:       NewHub(deps.Manager, logger),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.origins.allows,
	}
	return g
}

// Hub returns the gateway's connection hub.
func (g *Gateway) Hub() *Hub { return g.hub }

// StartHub runs the hub loop in a separate goroutine.
func (g *Gateway) StartHub() {
	go g.hub.Run()
	g.logger.Info("hub started and ready to manage WebSocket connections")
}

// authenticate resolves the handshake credential into an identity.
func (g *Gateway) authenticate(r *http.Request) (chat.Identity, error) {
	return g.verifier.Verify(bearerToken(r))
}

// WebSocketHandler authenticates the handshake, upgrades the connection and
// hands the new Client to the hub. Disallowed origins get 403 and missing
// or invalid credentials get 401, both before the upgrade.
func (g *Gateway) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	if !g.origins.allows(r) {
		g.logger.Warn("blocked websocket connection from disallowed origin", zap.String("origin", r.Header.Get("Origin")))
		http.Error(w, "Forbidden origin", http.StatusForbidden)
		return
	}

	ident, err := g.authenticate(r)
	if err != nil {
		telemetry.IncRejected(string(chat.KindAuth))
		g.logger.Info("websocket authentication failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		writeError(w, err)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, g, ident, r.RemoteAddr)
	if !g.hub.join(client) {
		_ = conn.Close()
	}
}

// dispatch decodes one client frame and runs the matching operation.
// Failures are reported to the originating connection only.
func (g *Gateway) dispatch(c *Client, raw []byte) {
	var env chat.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		g.reportError(c, "", chat.ValidationError("malformed event"))
		return
	}

	var err error
	switch env.Type {
	case chat.EventJoinRoom:
		var req chat.JoinRequest
		if err = decodePayload(env.Payload, &req); err == nil {
			err = g.join(c, req)
		}
	case chat.EventLeaveRoom:
		var req chat.LeaveRequest
		if err = decodePayload(env.Payload, &req); err == nil {
			err = g.leave(c, req)
		}
	case chat.EventSendMessage:
		var req chat.SendRequest
		if err = decodePayload(env.Payload, &req); err == nil {
			_, err = g.manager.Send(c, strings.TrimSpace(req.TournamentID), req.Text)
		}
	default:
		err = chat.ValidationError("unknown event type " + env.Type)
	}

	if err != nil {
		g.reportError(c, env.Type, err)
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return chat.ValidationError("payload is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return chat.ValidationError("malformed payload")
	}
	return nil
}

// join cross-checks the client's claimed member list against the
// registration authority before handing it to the room manager: the end
// time comes from the authority and claimed members that are not active
// registrants are dropped.
func (g *Gateway) join(c *Client, req chat.JoinRequest) error {
	id := strings.TrimSpace(req.TournamentID)
	if id == "" {
		return chat.ValidationError("tournamentId is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), authorityTimeout)
	defer cancel()

	t, err := g.authority.Tournament(ctx, id)
	if err != nil {
		return err
	}
	if t.Status == registry.StatusCancelled {
		return chat.ChatClosedError("tournament was cancelled")
	}
	registrants, err := g.authority.Registrants(ctx, id)
	if err != nil {
		return err
	}

	if err := g.manager.Join(c, id, intersect(req.Members, registrants), t.EndsAt); err != nil {
		return err
	}
	c.addRoom(id)
	return nil
}

func (g *Gateway) leave(c *Client, req chat.LeaveRequest) error {
	id := strings.TrimSpace(req.TournamentID)
	if id == "" {
		return chat.ValidationError("tournamentId is required")
	}
	err := g.manager.Leave(c, id)
	c.removeRoom(id)
	return err
}

// reportError sends an error event to c.
func (g *Gateway) reportError(c *Client, requestType string, err error) {
	kind := chat.KindOf(err)
	telemetry.IncRejected(string(kind))
	if kind == chat.KindInternal {
		c.logger.Error("event failed", zap.String("event", requestType), zap.Error(err))
	} else {
		c.logger.Debug("event refused", zap.String("event", requestType), zap.String("kind", string(kind)), zap.Error(err))
	}

	frame, encErr := chat.Encode(chat.EventError, chat.ErrorPayload{
		Message:     publicMessage(err),
		Kind:        kind,
		RequestType: requestType,
	})
	if encErr != nil {
		c.logger.Error("encode error event", zap.Error(errors.Join(err, encErr)))
		return
	}
	c.Deliver(frame)
}

// intersect keeps the claimed ids that appear in allowed, in claimed order.
func intersect(claimed, allowed []string) []string {
	set := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(claimed))
	for _, id := range claimed {
		id = strings.TrimSpace(id)
		if _, ok := set[id]; ok {
			out = append(out, id)
			delete(set, id)
		}
	}
	return out
}
