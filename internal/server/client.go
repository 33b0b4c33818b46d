// ABOUTME: Per-connection client state and the chunk writer handed to the policy
// ABOUTME: Counts bytes, chunks and lag events as the transport writes them
package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/pcmcast/internal/observe"
	"github.com/Resonate-Protocol/pcmcast/pkg/audio"
)

// Client represents a connected listener
type Client struct {
	ID          string
	RemoteAddr  string
	Transport   string
	ConnectedAt time.Time

	bytes  atomic.Uint64
	chunks atomic.Uint64
	lags   atomic.Uint64
	missed atomic.Uint64
}

func newClient(id, remote, transport string) *Client {
	return &Client{
		ID:          id,
		RemoteAddr:  remote,
		Transport:   transport,
		ConnectedAt: time.Now(),
	}
}

// ClientInfo is a JSON-friendly snapshot of a client
type ClientInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	Transport   string    `json:"transport"`
	ConnectedAt time.Time `json:"connected_at"`
	Bytes       uint64    `json:"bytes"`
	Chunks      uint64    `json:"chunks"`
	Lags        uint64    `json:"lags"`
	Missed      uint64    `json:"missed_chunks"`
}

// Info returns the current counters
func (c *Client) Info() ClientInfo {
	return ClientInfo{
		ID:          c.ID,
		RemoteAddr:  c.RemoteAddr,
		Transport:   c.Transport,
		ConnectedAt: c.ConnectedAt,
		Bytes:       c.bytes.Load(),
		Chunks:      c.chunks.Load(),
		Lags:        c.lags.Load(),
		Missed:      c.missed.Load(),
	}
}

// clientWriter adapts a transport send function to distribute.ChunkWriter
type clientWriter struct {
	ctx     context.Context
	client  *Client
	metrics *observe.Metrics
	send    func([]byte) error
}

func (w *clientWriter) WriteChunk(chunk audio.Chunk) error {
	if err := w.send(chunk.Bytes()); err != nil {
		w.metrics.WriteFailed(w.ctx, w.client.Transport)
		return err
	}
	w.client.bytes.Add(uint64(chunk.Len()))
	w.client.chunks.Add(1)
	w.metrics.ChunkWritten(w.ctx, w.client.Transport, chunk.Len())
	return nil
}

// RecordLag is called by the broadcaster when this client fell behind
func (w *clientWriter) RecordLag(missed uint64) {
	w.client.lags.Add(1)
	w.client.missed.Add(missed)
}
