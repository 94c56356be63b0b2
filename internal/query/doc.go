// Package query implements the HYQUERY status protocol.
//
// Query requests share a UDP socket with the game transport. A request is an
// 8 byte magic followed by a type byte; everything else on the socket belongs
// to the transport and is passed through untouched. The package classifies
// datagrams, serialises the basic and full responses from a models.Snapshot,
// and exposes a net.PacketConn wrapper that answers queries in place while
// handing all other traffic to its reader.
package query
