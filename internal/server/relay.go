package server

import (
	"errors"
	"net"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

// forward sends a client datagram unchanged to the backend.
func (s *Server) forward(b []byte, client net.Addr) {
	if s.backend == nil {
		log.Trace().
			Stringer("addr", client).
			Int("size", len(b)).
			Msg("Dropped non-query datagram, no backend configured")
		return
	}

	sess, err := s.session(client)
	if err != nil {
		log.Warn().Err(err).Stringer("addr", client).Msg("Failed to open relay session")
		return
	}

	sess.touch()
	if _, err := sess.upstream.Write(b); err != nil {
		log.Debug().Err(err).Stringer("addr", client).Msg("Relay write to backend failed")
	}
}

// session returns the relay session of client, dialing the backend on first use.
func (s *Server) session(client net.Addr) (*session, error) {
	key := xxhash.Sum64String(client.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		return sess, nil
	}
	if s.closed.Load() {
		return nil, net.ErrClosed
	}

	upstream, err := net.DialUDP("udp", nil, s.backend)
	if err != nil {
		return nil, err
	}

	sess := &session{client: client, upstream: upstream}
	sess.touch()
	s.sessions[key] = sess

	s.wg.Add(1)
	go s.pipeBack(key, sess)

	log.Debug().
		Stringer("addr", client).
		Stringer("upstream", upstream.LocalAddr()).
		Msg("Relay session opened")

	return sess, nil
}

// pipeBack copies backend replies to the client until the upstream socket is closed.
func (s *Server) pipeBack(key uint64, sess *session) {
	defer s.wg.Done()

	buf := make([]byte, s.bufferSize)
	for {
		n, err := sess.upstream.Read(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Debug().Err(err).Stringer("addr", sess.client).Msg("Relay read from backend failed")
				s.dropSession(key, sess)
			}
			return
		}

		sess.touch()
		if _, err := s.conn.WriteTo(buf[:n], sess.client); err != nil {
			log.Debug().Err(err).Stringer("addr", sess.client).Msg("Relay write to client failed")
		}
	}
}

// expireSessions closes sessions silent for longer than the idle timeout.
func (s *Server) expireSessions(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, sess := range s.sessions {
		if now.Sub(time.Unix(0, sess.lastSeen.Load())) > s.idleTimeout {
			_ = sess.upstream.Close()
			delete(s.sessions, key)
			log.Debug().Stringer("addr", sess.client).Msg("Relay session expired")
		}
	}
}

func (s *Server) dropSession(key uint64, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.sessions[key]; ok && cur == sess {
		delete(s.sessions, key)
	}
	_ = sess.upstream.Close()
}

// sessionCount reports the number of open relay sessions.
func (s *Server) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (sess *session) touch() {
	sess.lastSeen.Store(time.Now().UnixNano())
}
