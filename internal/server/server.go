// ABOUTME: Connection manager for raw PCM streaming over TCP
// ABOUTME: Accepts clients, tracks them, and hands each one to the distribution policy
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Resonate-Protocol/pcmcast/internal/distribute"
	"github.com/Resonate-Protocol/pcmcast/internal/observe"
	"github.com/Resonate-Protocol/pcmcast/pkg/audio"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Transport names used in client stats and metric attributes
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Config holds server configuration
type Config struct {
	ListenAddr string
	Name       string
	Format     audio.Format
	// ProgramDuration is the running time of one pass over the playlist
	ProgramDuration time.Duration
	Metrics         *observe.Metrics
	Debug           bool
}

// Server accepts stream connections and runs the policy for each of them
type Server struct {
	config   Config
	policy   distribute.Policy
	upgrader websocket.Upgrader

	listener   net.Listener
	listenerMu sync.RWMutex

	clients   map[string]*Client
	clientsMu sync.RWMutex

	startTime time.Time
	wg        sync.WaitGroup
}

// New creates a server that delivers policy to every connection
func New(config Config, policy distribute.Policy) *Server {
	return &Server{
		config: config,
		policy: policy,
		upgrader: websocket.Upgrader{
			// Listeners on the local network rarely send an Origin we could check
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[string]*Client),
		startTime: time.Now(),
	}
}

// Listen binds the TCP listener
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.ListenAddr, err)
	}

	s.listenerMu.Lock()
	s.listener = ln
	s.listenerMu.Unlock()

	log.Printf("Listening for PCM clients on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, then closes the listener,
// waits for connection goroutines and returns nil.
func (s *Server) Serve(ctx context.Context) error {
	s.listenerMu.RLock()
	ln := s.listener
	s.listenerMu.RUnlock()
	if ln == nil {
		return errors.New("server: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer s.wg.Wait()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Printf("Listener stopped")
				return nil
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			log.Printf("Accept error: %v; retrying in %v", err, backoff)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0

		if s.config.Debug {
			log.Printf("[DEBUG] Accepted connection from %s", conn.RemoteAddr())
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection streams raw chunk bytes until the policy returns
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Unblocks a write stuck on a client that stopped reading
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	client := newClient(uuid.NewString(), conn.RemoteAddr().String(), TransportTCP)
	s.serveClient(ctx, client, func(b []byte) error {
		_, err := conn.Write(b)
		return err
	})
}

// serveClient registers client for the duration of one delivery
func (s *Server) serveClient(ctx context.Context, client *Client, send func([]byte) error) error {
	s.addClient(client)
	defer s.removeClient(client)

	metrics := s.config.Metrics
	metrics.ConnectionOpened(ctx, client.Transport)
	defer metrics.ConnectionClosed(context.WithoutCancel(ctx), client.Transport)

	log.Printf("Client connected: %s (%s, %s)", client.RemoteAddr, client.Transport, client.ID)

	w := &clientWriter{ctx: ctx, client: client, metrics: metrics, send: send}
	err := s.policy.Deliver(ctx, w)

	switch {
	case err == nil:
		log.Printf("Client finished: %s (%d bytes)", client.RemoteAddr, client.bytes.Load())
	case errors.Is(err, distribute.ErrLagged):
		log.Printf("Client dropped: %s: %v", client.RemoteAddr, err)
	default:
		log.Printf("Client disconnected: %s: %v", client.RemoteAddr, err)
	}
	return err
}

func (s *Server) addClient(c *Client) {
	s.clientsMu.Lock()
	s.clients[c.ID] = c
	s.clientsMu.Unlock()
}

func (s *Server) removeClient(c *Client) {
	s.clientsMu.Lock()
	delete(s.clients, c.ID)
	s.clientsMu.Unlock()
}

// Clients returns a snapshot of connected clients, oldest first
func (s *Server) Clients() []ClientInfo {
	s.clientsMu.RLock()
	infos := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		infos = append(infos, c.Info())
	}
	s.clientsMu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// Status is a point-in-time view of the whole server
type Status struct {
	Name            string
	Addr            string
	Format          audio.Format
	ProgramDuration time.Duration
	Uptime          time.Duration
	Policy          distribute.Status
	Clients         []ClientInfo
}

// Status reports server, policy and client state
func (s *Server) Status() Status {
	addr := ""
	if a := s.Addr(); a != nil {
		addr = a.String()
	}
	return Status{
		Name:            s.config.Name,
		Addr:            addr,
		Format:          s.config.Format,
		ProgramDuration: s.config.ProgramDuration,
		Uptime:          time.Since(s.startTime),
		Policy:          s.policy.Status(),
		Clients:         s.Clients(),
	}
}

// Ready reports whether the listener is bound and the policy can deliver
func (s *Server) Ready() bool {
	return s.Addr() != nil && s.policy.Status().Running
}
