package server

import (
	"fmt"
	"net/http"
)

// WebSocketHandler upgrades GET requests to WebSocket and hands the
// connection to the hub, which starts its pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "err", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg)
	if !s.hub.registerClient(client) {
		_ = conn.Close()
	}
}

// HealthHandler reports that the server is up.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "crowdzone server is running!")
}

// TestPageHandler serves a minimal browser console for exercising the
// protocol by hand.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		s.logger.Warn("error writing HTML response", "err", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>crowdzone console</title>
    <style>
        body { font-family: monospace; margin: 20px; }
        textarea { width: 600px; height: 80px; }
        #log { border: 1px solid #ccc; height: 360px; overflow-y: scroll; padding: 8px; white-space: pre-wrap; }
    </style>
</head>
<body>
    <h1>crowdzone console</h1>
    <button onclick="connect()">Connect</button>
    <button onclick="ws && ws.close()">Disconnect</button>
    <p>
        <button onclick="fill('login', {email: 'admin@event.com', password: 'admin'})">login</button>
        <button onclick="fill('location_update', {lat: 0, lon: 0})">location_update</button>
        <button onclick="fill('create_zone', {name: 'Gate', lat: 0, lon: 0, radius: 100, threshold: 1})">create_zone</button>
        <button onclick="fill('update_zone', {id: '', threshold: 2})">update_zone</button>
        <button onclick="fill('delete_zone', {id: ''})">delete_zone</button>
        <button onclick="fill('ping', {})">ping</button>
    </p>
    <textarea id="msg"></textarea><br>
    <button onclick="send()">Send</button>
    <div id="log"></div>
    <script>
        let ws = null;
        const log = (line) => {
            const el = document.getElementById('log');
            el.textContent += line + '\n';
            el.scrollTop = el.scrollHeight;
        };
        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = () => log('-- connected');
            ws.onmessage = (e) => log('<< ' + e.data);
            ws.onclose = () => { log('-- closed'); ws = null; };
        }
        function fill(type, payload) {
            document.getElementById('msg').value = JSON.stringify({type, payload});
        }
        function send() {
            const text = document.getElementById('msg').value;
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(text);
                log('>> ' + text);
            }
        }
    </script>
</body>
</html>`
