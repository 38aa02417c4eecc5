package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/crystal-mush/thingmud/pkg/events"
)

// WebServer serves WebSocket clients, metrics and a health check.
type WebServer struct {
	engine   *Engine
	httpSrv  *http.Server
	acmeSrv  *http.Server
	mux      *http.ServeMux
	upgrader websocket.Upgrader
	log      logrus.FieldLogger

	mu sync.Mutex
}

func NewWebServer(engine *Engine, addr string) *WebServer {
	ws := &WebServer{
		engine: engine,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: engine.Log.WithField("subsystem", "web"),
	}
	ws.mux.HandleFunc("/ws", ws.handleWebSocket)
	ws.mux.Handle("/metrics", engine.Metrics.Handler())
	ws.mux.HandleFunc("/health", ws.handleHealth)
	ws.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           ws.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ws
}

// Handler returns the route mux.
func (ws *WebServer) Handler() http.Handler { return ws.mux }

// Start listens on the configured address until Stop is called.
func (ws *WebServer) Start() error {
	ln, err := net.Listen("tcp", ws.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("web listen on %s: %w", ws.httpSrv.Addr, err)
	}
	return ws.Serve(ln)
}

// Serve answers on ln, using HTTPS when the config names a TLS source and
// plain HTTP otherwise or when TLS setup fails.
func (ws *WebServer) Serve(ln net.Listener) error {
	cfg := ws.engine.Config
	if cfg.tlsEnabled() {
		result, err := SetupTLS(cfg.TLSDomain, cfg.TLSCert, cfg.TLSKey, cfg.CertDir, ws.log)
		if err != nil {
			ws.log.WithError(err).Warn("TLS setup failed, falling back to HTTP")
		} else {
			ws.httpSrv.TLSConfig = result.Config
			if result.AutocertMgr != nil && cfg.ACMEAddr != "" {
				ws.startACME(cfg.ACMEAddr, result.AutocertMgr.HTTPHandler(nil))
			}
			ws.log.WithField("addr", ln.Addr().String()).Info("web server listening (HTTPS)")
			return serveResult(ws.httpSrv.ServeTLS(ln, "", ""))
		}
	}
	ws.log.WithField("addr", ln.Addr().String()).Info("web server listening (HTTP)")
	return serveResult(ws.httpSrv.Serve(ln))
}

// startACME answers Let's Encrypt HTTP challenges and redirects the rest
// to HTTPS.
func (ws *WebServer) startACME(addr string, h http.Handler) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	ws.mu.Lock()
	ws.acmeSrv = srv
	ws.mu.Unlock()
	go func() {
		ws.log.WithField("addr", addr).Info("ACME challenge listener")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.log.WithError(err).Error("ACME listener error")
		}
	}()
}

func serveResult(err error) error {
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the web server.
func (ws *WebServer) Stop(ctx context.Context) error {
	ws.mu.Lock()
	acme := ws.acmeSrv
	ws.mu.Unlock()
	if acme != nil {
		acme.Shutdown(ctx)
	}
	return ws.httpSrv.Shutdown(ctx)
}

// WSMessage is the JSON message format for WebSocket communication.
type WSMessage struct {
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Command string         `json:"command,omitempty"`
}

// wsConn holds the WebSocket connection and its write mutex.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (wc *wsConn) sendJSON(msg WSMessage) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	wc.conn.WriteJSON(msg)
}

func (wc *wsConn) send(ev events.Event) {
	wc.sendJSON(WSMessage{Type: ev.Type.String(), Text: ev.Text, Data: ev.Data})
}

// handleWebSocket upgrades the request and runs a session over it. Clients
// send {"type":"command","command":"look"}; the first command is taken as
// the player name.
func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	wc := &wsConn{conn: conn}
	sess := ws.engine.NewSession(TransportWebSocket, clientAddr(r), wc.send, func() { conn.Close() })
	go ws.readLoop(sess, wc)
}

func (ws *WebServer) readLoop(sess *Session, wc *wsConn) {
	log := ws.log.WithFields(logrus.Fields{"session": sess.ID, "addr": sess.Addr})
	defer func() {
		ws.engine.Logout(sess)
		sess.Close()
		log.Info("websocket closed")
	}()

	sess.Greet()
	idle := ws.engine.Config.idleTimeout()
	for {
		if idle > 0 {
			wc.conn.SetReadDeadline(time.Now().Add(idle))
		}
		_, data, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("read error")
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			wc.sendJSON(WSMessage{Type: "error", Text: "Invalid JSON message"})
			continue
		}
		switch msg.Type {
		case "command", "login":
			if !sess.HandleLine(msg.Command) {
				return
			}
		case "ping":
			wc.sendJSON(WSMessage{Type: "pong"})
		default:
			wc.sendJSON(WSMessage{Type: "error", Text: fmt.Sprintf("Unknown message type: %s", msg.Type)})
		}
	}
}

// clientAddr prefers proxy headers over the socket address.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return r.RemoteAddr
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts := ws.engine.SessionCounts()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": counts[TransportTCP] + counts[TransportWebSocket],
		"things":   ws.engine.Things.Len(),
		"queue":    ws.engine.Queue.Len(),
		"timers":   ws.engine.Timing.Pending(),
	})
}
