// Package server runs the shared UDP socket: it answers query requests and
// relays all other datagrams between game clients and the backend server.
package server

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hytaleone/hyquery/internal/config"
	"github.com/hytaleone/hyquery/internal/query"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// New creates a Server answering queries from source. The socket is opened by Listen.
func New(srv config.Server, q config.Query, source query.SnapshotSource) (*Server, error) {
	s := &Server{
		address:     srv.Address,
		idleTimeout: srv.IdleTimeout,
		bufferSize:  srv.BufferSize,
		sessions:    make(map[uint64]*session),
		shutdown:    make(chan struct{}),
	}

	if srv.Backend != "" {
		backend, err := net.ResolveUDPAddr("udp", srv.Backend)
		if err != nil {
			return nil, fmt.Errorf("resolve backend %s: %w", srv.Backend, err)
		}
		s.backend = backend
	}

	var opts []query.Option
	if q.DisableFull {
		opts = append(opts, query.WithoutFull())
	}
	if q.RateLimit > 0 {
		s.limiter = newIPLimiter(rate.Limit(q.RateLimit), q.RateBurst, q.LimiterTTL)
		opts = append(opts, query.WithLimiter(s.limiter))
	}
	s.dispatcher = query.NewDispatcher(source, opts...)

	return s, nil
}

// Listen binds the UDP socket.
func (s *Server) Listen() error {
	conn, err := net.ListenPacket("udp", s.address)
	if err != nil {
		return err
	}
	s.conn = query.Wrap(conn, s.dispatcher)

	log.Info().
		Str("address", conn.LocalAddr().String()).
		Bool("relay", s.backend != nil).
		Msg("Query responder listening")

	return nil
}

// LocalAddr returns the bound address. Listen must have succeeded.
func (s *Server) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// PublicAddr resolves the bound non-loopback address advertised to the directory service.
func (s *Server) PublicAddr() (*net.UDPAddr, error) {
	if s.conn == nil {
		return nil, errors.New("server is not listening")
	}
	return NonLoopback(s.conn.LocalAddr())
}

// Start runs the read loop and the session garbage collector in the background.
func (s *Server) Start() {
	s.wg.Add(2)
	go s.serve()
	go s.gc()
}

// Close stops reading, closes every relay session and waits for all goroutines.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.shutdown)

	var err error
	if s.conn != nil {
		err = s.conn.Close()
	}

	s.mu.Lock()
	for key, sess := range s.sessions {
		_ = sess.upstream.Close()
		delete(s.sessions, key)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// serve reads non-query datagrams and relays them to the backend.
func (s *Server) serve() {
	defer s.wg.Done()

	buf := make([]byte, s.bufferSize)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.closed.Load() {
				return
			}
			log.Warn().Err(err).Msg("UDP read failed")
			continue
		}

		s.forward(buf[:n], addr)
	}
}

// gc periodically closes idle relay sessions and forgets idle rate limit entries.
func (s *Server) gc() {
	defer s.wg.Done()

	interval := s.idleTimeout / 2
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case now := <-ticker.C:
			s.expireSessions(now)
			if s.limiter != nil {
				s.limiter.gc(now)
			}
		}
	}
}
