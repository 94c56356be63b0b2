package query

import "net"

// PacketConn answers query requests read from the wrapped connection and
// returns every other datagram to the caller of ReadFrom unchanged.
type PacketConn struct {
	net.PacketConn

	dispatcher *Dispatcher
}

// Wrap installs d in front of conn. Responses are written through conn.
func Wrap(conn net.PacketConn, d *Dispatcher) *PacketConn {
	return &PacketConn{PacketConn: conn, dispatcher: d}
}

// ReadFrom blocks until a non-query datagram arrives or the read fails.
func (c *PacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	for {
		n, addr, err := c.PacketConn.ReadFrom(p)
		if err != nil || n == 0 {
			return n, addr, err
		}
		if c.dispatcher.Handle(c.PacketConn, p[:n], addr) {
			continue
		}
		return n, addr, nil
	}
}
