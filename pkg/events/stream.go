package events

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
)

// defaultHeartbeatInterval is how often a connected peer receives a
// heartbeat frame.
const defaultHeartbeatInterval = 30 * time.Second

// Event is the JSON payload of one server-sent frame.
type Event struct {
	Type      string   `json:"type"`
	Server    string   `json:"server,omitempty"`
	Version   string   `json:"version,omitempty"`
	Tools     []string `json:"tools,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// Options configures a Streamer. Zero values fall back to defaults.
type Options struct {
	ServerName string
	Version    string
	// Tools are the tool names advertised in the connect event.
	Tools []string
	// HeartbeatInterval overrides the 30s default, mainly for tests.
	HeartbeatInterval time.Duration
}

// Streamer writes the event stream for one or more connected peers. Each
// Serve call is an independent long-lived loop; the Streamer itself holds
// no per-connection state.
type Streamer struct {
	serverName string
	version    string
	tools      []string
	interval   time.Duration
}

// NewStreamer creates a Streamer with the given options.
func NewStreamer(opts Options) *Streamer {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	return &Streamer{
		serverName: opts.ServerName,
		version:    opts.Version,
		tools:      opts.Tools,
		interval:   opts.HeartbeatInterval,
	}
}

// Serve writes one connected event immediately, then a heartbeat every
// interval, until ctx is cancelled (returns nil) or a write fails (returns
// the write error, which normally means the peer disconnected). The
// heartbeat ticker is always stopped on return.
func (s *Streamer) Serve(ctx context.Context, w io.Writer) error {
	if err := s.send(w, Event{
		Type:      "mcp_connected",
		Server:    s.serverName,
		Version:   s.version,
		Tools:     s.tools,
		Timestamp: time.Now().Format(time.RFC3339),
	}); err != nil {
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.send(w, Event{
				Type:      "heartbeat",
				Timestamp: time.Now().Format(time.RFC3339),
			}); err != nil {
				return err
			}
		}
	}
}

func (s *Streamer) send(w io.Writer, event Event) error {
	if err := sse.Encode(w, sse.Event{Data: event}); err != nil {
		return err
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
