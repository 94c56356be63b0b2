package server

import (
	"net"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"
)

// ipLimiter applies a token bucket per source IP to query responses.
type ipLimiter struct {
	clients map[uint64]*client
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	mu      sync.Mutex
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(limit rate.Limit, burst int, ttl time.Duration) *ipLimiter {
	return &ipLimiter{
		clients: make(map[uint64]*client),
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
	}
}

// Allow implements query.Limiter. Ports are ignored so one host shares a bucket.
func (l *ipLimiter) Allow(addr net.Addr) bool {
	key := xxhash.Sum64String(hostOf(addr))

	l.mu.Lock()
	cli, found := l.clients[key]
	if !found {
		cli = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cli
	}
	cli.lastSeen = time.Now()
	limiter := cli.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// gc forgets hosts not seen within the ttl.
func (l *ipLimiter) gc(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > l.ttl {
			delete(l.clients, key)
		}
	}
}

func hostOf(addr net.Addr) string {
	if udp, ok := addr.(*net.UDPAddr); ok {
		return udp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
