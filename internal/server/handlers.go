package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/tourneychat/internal/logging"
)

// HealthHandler reports that the process is up.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "tourneychat server is running!")
}

// ReadyHandler reports whether the backing stores are reachable.
func (g *Gateway) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if g.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := g.ready(ctx); err != nil {
			g.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ready",
		"rooms":       g.manager.RoomCount(),
		"connections": g.hub.ClientCount(),
	})
}

// TestPageHandler serves a small HTML console for exercising the chat
// protocol from a browser.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		logging.L().Warn("write test page", zap.Error(err))
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>tourneychat console</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log { border: 1px solid #ccc; height: 320px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; font-family: monospace; }
        input[type="text"] { width: 260px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .row { margin: 6px 0; }
    </style>
</head>
<body>
    <h1>tourneychat console</h1>

    <div class="row">
        <input type="text" id="token" placeholder="Bearer token">
        <button onclick="connect()">Connect</button>
        <span id="status">Disconnected</span>
    </div>
    <div class="row">
        <input type="text" id="tournament" placeholder="Tournament id">
        <input type="text" id="members" placeholder="Members (comma separated)">
        <button onclick="join()">Join</button>
        <button onclick="leave()">Leave</button>
    </div>
    <div class="row">
        <input type="text" id="text" placeholder="Message">
        <button onclick="send()">Send</button>
    </div>

    <div id="log"></div>

    <script>
        let ws = null;
        const logDiv = document.getElementById('log');
        const statusSpan = document.getElementById('status');

        function log(line) {
            const el = document.createElement('div');
            el.textContent = line;
            logDiv.appendChild(el);
            logDiv.scrollTop = logDiv.scrollHeight;
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const token = encodeURIComponent(document.getElementById('token').value.trim());
            ws = new WebSocket(scheme + location.host + '/ws?token=' + token);
            ws.onopen = () => { statusSpan.textContent = 'Connected'; };
            ws.onclose = () => { statusSpan.textContent = 'Disconnected'; ws = null; };
            ws.onmessage = (event) => { event.data.split('\n').forEach(log); };
        }

        function emit(type, payload) {
            if (!ws || ws.readyState !== WebSocket.OPEN) { log('not connected'); return; }
            ws.send(JSON.stringify({ type: type, payload: payload }));
        }

        function tournamentId() { return document.getElementById('tournament').value.trim(); }

        function join() {
            const members = document.getElementById('members').value.split(',').map(s => s.trim()).filter(Boolean);
            emit('join-room', { tournamentId: tournamentId(), members: members, endTime: new Date(Date.now() + 3600000).toISOString() });
        }

        function leave() { emit('leave-room', { tournamentId: tournamentId() }); }

        function send() {
            const input = document.getElementById('text');
            emit('send-message', { tournamentId: tournamentId(), text: input.value });
            input.value = '';
        }
    </script>
</body>
</html>`
