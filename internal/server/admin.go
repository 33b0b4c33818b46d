// ABOUTME: Admin HTTP surface: health probes, client listing, metrics and a WebSocket stream
// ABOUTME: Runs on its own address next to the raw TCP listener
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/Resonate-Protocol/pcmcast/internal/distribute"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	shutdownTimeout = 5 * time.Second
	closeTimeout    = time.Second
)

type healthResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type clientsResponse struct {
	Name     string       `json:"name"`
	Mode     string       `json:"mode"`
	Format   string       `json:"format"`
	Chunks   int          `json:"chunks"`
	Position *int         `json:"position,omitempty"`
	Loops    uint64       `json:"loops"`
	Clients  []ClientInfo `json:"clients"`
}

// AdminHandler returns the admin mux
func (s *Server) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /clients", s.handleClients)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /stream", s.handleStream)

	if s.config.Debug {
		return logRequests(mux)
	}
	return mux
}

// ServeAdmin serves the admin surface on addr until ctx is cancelled
func (s *Server) ServeAdmin(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.serveAdmin(ctx, ln)
}

func (s *Server) serveAdmin(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.AdminHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Hijacked stream connections end with ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()
	log.Printf("Admin server listening on %s", ln.Addr())

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Admin server shutdown error: %v", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResult{Status: "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	checks := map[string]string{"listener": "ok", "policy": "ok"}
	ok := true
	if s.Addr() == nil {
		checks["listener"] = "fail: not bound"
		ok = false
	}
	if !s.policy.Status().Running {
		checks["policy"] = "fail: not running"
		ok = false
	}

	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, healthResult{Status: "fail", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, healthResult{Status: "ok", Checks: checks})
}

func (s *Server) handleClients(w http.ResponseWriter, _ *http.Request) {
	st := s.policy.Status()
	resp := clientsResponse{
		Name:    s.config.Name,
		Mode:    st.Mode,
		Format:  s.config.Format.String(),
		Chunks:  st.Length,
		Loops:   st.Loops,
		Clients: s.Clients(),
	}
	if st.Mode == distribute.ModeSync {
		pos := st.Position
		resp.Position = &pos
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStream delivers the policy as one binary WebSocket message per chunk
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// Reading is required to see close frames; payloads are ignored
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && s.config.Debug {
					log.Printf("[DEBUG] WebSocket read error: %v", err)
				}
				return
			}
		}
	}()

	client := newClient(uuid.NewString(), r.RemoteAddr, TransportWebSocket)
	err = s.serveClient(ctx, client, func(b []byte) error {
		return conn.WriteMessage(websocket.BinaryMessage, b)
	})
	if err == nil && ctx.Err() == nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of program")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
	}
}

// statusWriter captures the response code for request logging
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes the upgrade for /stream through to the real connection
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		log.Printf("[DEBUG] %s %s -> %d in %s", r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
