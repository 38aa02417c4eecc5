// Package server is the network shell around the simulation: it builds the
// Engine, accepts telnet and WebSocket clients and turns their lines into
// commands.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crystal-mush/thingmud/pkg/events"
)

// Server owns the listeners.
type Server struct {
	Engine *Engine

	mu        sync.Mutex
	listener  net.Listener
	webServer *WebServer
	conns     sync.WaitGroup
}

func NewServer(engine *Engine) *Server {
	return &Server{Engine: engine}
}

// Start starts the engine, the web listener if configured, and then serves
// telnet clients until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.Engine.Config
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.Engine.Start(ctx); err != nil {
		ln.Close()
		return err
	}

	s.mu.Lock()
	s.listener = ln
	if addr := s.Engine.Config.WebAddr; addr != "" {
		s.webServer = NewWebServer(s.Engine, addr)
		go func(ws *WebServer) {
			if err := ws.Start(); err != nil {
				s.Engine.Log.WithError(err).Error("web server error")
			}
		}(s.webServer)
	}
	s.mu.Unlock()

	s.Engine.Log.WithField("addr", ln.Addr().String()).Infof("%s listening", s.Engine.Config.Name)
	s.acceptLoop(ln)
	return nil
}

// Addr returns the telnet listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.Engine.Log.WithError(err).Warn("accept error")
			continue
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConnection(conn)
		}()
	}
}

// Stop closes the listeners, then shuts the engine down.
func (s *Server) Stop() {
	s.mu.Lock()
	ln, ws := s.listener, s.webServer
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	if ws != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ws.Stop(ctx)
	}
	s.Engine.Stop()
	s.conns.Wait()
}

// telnetWriter serializes writes to one connection.
type telnetWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *telnetWriter) send(ev events.Event) {
	msg := ev.Text
	if msg == "" {
		return
	}
	// Prompts stay on the input line.
	if ev.Type != events.EvPrompt && !strings.HasSuffix(msg, "\n") {
		msg += "\r\n"
	}
	msg = strings.ReplaceAll(strings.ReplaceAll(msg, "\r\n", "\n"), "\n", "\r\n")
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	w.conn.Write([]byte(msg))
}

func (s *Server) handleConnection(conn net.Conn) {
	w := &telnetWriter{conn: conn}
	sess := s.Engine.NewSession(TransportTCP, conn.RemoteAddr().String(), w.send, func() { conn.Close() })
	log := s.Engine.Log.WithFields(logrus.Fields{"session": sess.ID, "addr": sess.Addr})

	defer func() {
		s.Engine.Logout(sess)
		sess.Close()
		log.Info("connection closed")
	}()

	sess.Greet()

	idle := s.Engine.Config.idleTimeout()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 8192), 8192)
	for {
		if idle > 0 {
			conn.SetReadDeadline(time.Now().Add(idle))
		}
		if !scanner.Scan() {
			break
		}
		if !sess.HandleLine(stripTelnet(scanner.Text())) || sess.Closed() {
			return
		}
	}
	var ne net.Error
	if err := scanner.Err(); errors.As(err, &ne) && ne.Timeout() {
		sess.Receive(events.Event{Type: events.EvSystem, Text: "You have been idle too long. Goodbye."})
		log.Info("idle timeout")
	}
}

// stripTelnet removes IAC command sequences and carriage returns from a
// line of telnet input.
func stripTelnet(line string) string {
	const (
		iac = 255
		sb  = 250
		se  = 240
	)
	if !strings.ContainsAny(line, "\xff\r") {
		return line
	}
	b := []byte(line)
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		switch {
		case b[i] == '\r':
		case b[i] == iac && i+1 < len(b):
			switch b[i+1] {
			case iac:
				out = append(out, iac)
				i++
			case sb:
				i += 2
				for i < len(b) && !(b[i] == se && b[i-1] == iac) {
					i++
				}
			case 251, 252, 253, 254: // WILL, WONT, DO, DONT carry an option byte
				i += 2
			default:
				i++
			}
		case b[i] == iac:
		default:
			out = append(out, b[i])
		}
	}
	return string(out)
}
