package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hytaleone/hyquery/internal/query"
)

// Server holds the shared UDP socket, the query dispatcher and the relay
// state that forwards game traffic to the backend.
type Server struct {
	// conn is the listening socket wrapped by the query dispatcher. Reads from it
	// only return datagrams that are not query requests.
	conn *query.PacketConn

	// dispatcher answers query requests in front of the relay.
	dispatcher *query.Dispatcher

	// limiter throttles query responses per source IP. It is nil when no rate is configured.
	limiter *ipLimiter

	// backend receives all non-query traffic. When nil such traffic is dropped.
	backend *net.UDPAddr

	// sessions maps a hashed client address to its upstream connection.
	sessions map[uint64]*session

	// shutdown is closed by Close to stop the garbage collection loop.
	shutdown chan struct{}

	// address is the configured listen address.
	address string

	// mu guards sessions.
	mu sync.Mutex

	// wg tracks the serve loop, the gc loop and every session reader.
	wg sync.WaitGroup

	// idleTimeout is how long a relay session may stay silent before it is closed.
	idleTimeout time.Duration

	// bufferSize is the read buffer size for both directions.
	bufferSize int

	// closed is set once Close has started.
	closed atomic.Bool
}

// session is the relay state of a single game client.
type session struct {
	// client is the address replies from the backend are sent to.
	client net.Addr

	// upstream is a connected socket towards the backend, one per client so the
	// backend sees distinct peers.
	upstream *net.UDPConn

	// lastSeen is the unix nano time of the last datagram in either direction.
	lastSeen atomic.Int64
}
