package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/tourneychat/internal/chat"
	"github.com/Tyrowin/tourneychat/internal/store"
	"github.com/Tyrowin/tourneychat/internal/telemetry"
)

type historyResponse struct {
	Messages     []store.PersistedMessage `json:"messages"`
	TournamentID string                   `json:"tournamentId"`
	MessageCount int                      `json:"messageCount"`
}

// HistoryHandler serves GET /api/tournaments/{id}/chat/history.
func (g *Gateway) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		telemetry.ObserveHistory(strconv.Itoa(status), time.Since(start).Seconds())
	}()

	tournamentID := strings.TrimSpace(r.PathValue("id"))
	logger := telemetry.LoggerWithCorr(r.Context()).With(zap.String("tournament_id", tournamentID))

	caller, err := g.authenticate(r)
	if err != nil {
		status = writeError(w, err)
		return
	}

	msgs, err := g.history.GetHistory(r.Context(), tournamentID, caller)
	if err != nil {
		if chat.KindOf(err) == chat.KindInternal {
			logger.Error("history request failed", zap.Error(err))
		}
		status = writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []store.PersistedMessage{}
	}

	writeJSON(w, http.StatusOK, historyResponse{
		Messages:     msgs,
		TournamentID: tournamentID,
		MessageCount: len(msgs),
	})
}

// writeError writes err as a JSON error body and returns the status used.
func writeError(w http.ResponseWriter, err error) int {
	kind := chat.KindOf(err)
	status := statusForKind(kind)
	if kind == chat.KindAuth {
		w.Header().Set("WWW-Authenticate", `Bearer realm="tourneychat"`)
	}
	writeJSON(w, status, errorBody{Error: publicMessage(err), Kind: kind})
	return status
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
