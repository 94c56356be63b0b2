package query

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/hytaleone/hyquery/internal/models"
)

// Response is a decoded query response.
type Response struct {
	Snapshot models.Snapshot `json:"snapshot"`
	Type     Type            `json:"type"`
	// ListedPlayers is the count that prefixes the player list of a full response.
	ListedPlayers uint32 `json:"listedPlayers,omitempty"`
}

// ParseResponse decodes a response datagram produced by BuildBasic or BuildFull.
func ParseResponse(b []byte) (*Response, error) {
	if len(b) < len(responseMagic)+1 || !bytes.Equal(b[:len(responseMagic)], responseMagic[:]) {
		return nil, ErrBadMagic
	}
	r := &reader{buf: b[len(responseMagic):]}
	resp := &Response{Type: Type(r.byte())}
	s := &resp.Snapshot

	s.ServerName = r.string()
	s.MOTD = r.string()
	s.CurrentPlayers = r.uint32()
	s.MaxPlayers = r.uint32()
	s.HostPort = r.uint16()
	s.Version = r.string()
	s.ProtocolVersion = r.uint32()
	s.ProtocolHash = r.string()

	if resp.Type == TypeFull {
		resp.ListedPlayers = r.uint32()
		for i := uint32(0); i < resp.ListedPlayers && r.err == nil; i++ {
			p := models.Player{Username: r.string()}
			p.ID = r.uuid()
			s.Players = append(s.Players, p)
		}
		count := r.uint32()
		for i := uint32(0); i < count && r.err == nil; i++ {
			c := models.Component{Identifier: r.string(), Version: r.string()}
			c.Enabled = r.byte() != 0
			s.Components = append(s.Components, c)
		}
	}

	if r.err != nil {
		return nil, fmt.Errorf("decode %s response: %w", resp.Type, r.err)
	}
	return resp, nil
}

// reader consumes a response buffer, recording the first short read.
type reader struct {
	buf []byte
	err error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = ErrShortResponse
		r.buf = nil
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) byte() byte {
	if b := r.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) uint16() uint16 {
	if b := r.next(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) uint32() uint32 {
	if b := r.next(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) string() string {
	n := r.uint16()
	if b := r.next(int(n)); b != nil {
		return string(b)
	}
	return ""
}

func (r *reader) uuid() uuid.UUID {
	var id uuid.UUID
	if b := r.next(len(id)); b != nil {
		copy(id[:], b)
	}
	return id
}
