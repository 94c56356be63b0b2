package query

import (
	"fmt"
	"net"

	"github.com/hytaleone/hyquery/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SnapshotSource returns the current server state. Implementations must be safe
// for concurrent use and must not block.
type SnapshotSource interface {
	Snapshot() models.Snapshot
}

// SnapshotFunc adapts a function to SnapshotSource.
type SnapshotFunc func() models.Snapshot

// Snapshot implements SnapshotSource.
func (f SnapshotFunc) Snapshot() models.Snapshot { return f() }

// Limiter decides whether a sender may receive a response.
type Limiter interface {
	Allow(addr net.Addr) bool
}

// PacketWriter sends one datagram. net.PacketConn satisfies it.
type PacketWriter interface {
	WriteTo(p []byte, addr net.Addr) (int, error)
}

// Dispatcher answers query requests. It keeps no per-sender state and may be
// used from several goroutines at once.
type Dispatcher struct {
	source      SnapshotSource
	limiter     Limiter
	log         zerolog.Logger
	disableFull bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithoutFull answers full requests with the basic response.
func WithoutFull() Option {
	return func(d *Dispatcher) { d.disableFull = true }
}

// WithLimiter drops requests from senders the limiter rejects.
func WithLimiter(l Limiter) Option {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithLogger replaces the global logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// NewDispatcher creates a Dispatcher that builds responses from source.
func NewDispatcher(source SnapshotSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		source: source,
		log:    log.With().Str("component", "query").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle processes one inbound datagram. It returns false when b is not a
// query, in which case b is left untouched for the next stage. Query datagrams
// are always consumed, even when building or sending the response fails.
func (d *Dispatcher) Handle(w PacketWriter, b []byte, addr net.Addr) bool {
	req, ok := ParseRequest(b, addr)
	if !ok {
		return false
	}
	d.respond(w, req)
	return true
}

func (d *Dispatcher) respond(w PacketWriter, req Request) {
	t := req.Type
	if t == TypeFull && d.disableFull {
		t = TypeBasic
	}

	if d.limiter != nil && !d.limiter.Allow(req.Sender) {
		d.log.Trace().
			Stringer("addr", req.Sender).
			Stringer("type", t).
			Msg("Query dropped by rate limit")
		return
	}

	d.log.Debug().
		Stringer("addr", req.Sender).
		Uint8("raw_type", req.Raw).
		Stringer("type", t).
		Msg("Query request")

	if err := d.reply(w, t, req.Sender); err != nil {
		d.log.Warn().
			Err(err).
			Stringer("addr", req.Sender).
			Stringer("type", t).
			Msg("Failed to process query")
	}
}

// reply builds and sends a single response. Panics raised by the snapshot
// source are reported as errors so the socket reader keeps running.
func (d *Dispatcher) reply(w PacketWriter, t Type, addr net.Addr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while building response: %v", r)
		}
	}()

	resp, err := Build(t, d.source.Snapshot())
	if err != nil {
		return fmt.Errorf("build %s response: %w", t, err)
	}
	if _, err := w.WriteTo(resp, addr); err != nil {
		return fmt.Errorf("send %d byte response: %w", len(resp), err)
	}
	return nil
}
