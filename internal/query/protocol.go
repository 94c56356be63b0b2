package query

import (
	"bytes"
	"errors"
	"net"
)

// Type is the request and response type byte.
type Type byte

const (
	// TypeBasic requests the server summary only.
	TypeBasic Type = 0x00
	// TypeFull requests the summary plus player and component lists.
	TypeFull Type = 0x01
)

// String returns the lowercase name of the type.
func (t Type) String() string {
	if t == TypeFull {
		return "full"
	}
	return "basic"
}

var (
	requestMagic  = [...]byte{'H', 'Y', 'Q', 'U', 'E', 'R', 'Y', 0x00}
	responseMagic = [...]byte{'H', 'Y', 'R', 'E', 'P', 'L', 'Y', 0x00}
)

// MinRequestSize is the magic plus the type byte.
const MinRequestSize = len(requestMagic) + 1

var (
	// ErrBadMagic is returned when a response does not start with the reply magic.
	ErrBadMagic = errors.New("query: bad response magic")
	// ErrShortResponse is returned when a response ends before all fields are read.
	ErrShortResponse = errors.New("query: short response")
	// ErrStringTooLong is returned when a string does not fit the 2 byte length prefix.
	ErrStringTooLong = errors.New("query: string exceeds 65535 bytes")
)

// Request is the view of one received query datagram. It is only valid for the
// duration of a single dispatch.
type Request struct {
	Sender net.Addr
	// Raw is the type byte as received.
	Raw byte
	// Type is Raw normalised: anything other than TypeFull is TypeBasic.
	Type   Type
	Length int
}

// Classify reports whether b is a query request and returns its raw type byte.
// It only looks at the first MinRequestSize bytes and never modifies b.
func Classify(b []byte) (byte, bool) {
	if len(b) < MinRequestSize {
		return 0, false
	}
	if !bytes.Equal(b[:len(requestMagic)], requestMagic[:]) {
		return 0, false
	}
	return b[len(requestMagic)], true
}

// ParseRequest classifies b and, if it is a query, returns the request sent by sender.
func ParseRequest(b []byte, sender net.Addr) (Request, bool) {
	raw, ok := Classify(b)
	if !ok {
		return Request{}, false
	}
	return Request{
		Sender: sender,
		Raw:    raw,
		Type:   normaliseType(raw),
		Length: len(b),
	}, true
}

// NewRequest encodes a request datagram of type t.
func NewRequest(t Type) []byte {
	b := make([]byte, 0, MinRequestSize)
	b = append(b, requestMagic[:]...)
	return append(b, byte(t))
}

func normaliseType(raw byte) Type {
	if Type(raw) == TypeFull {
		return TypeFull
	}
	return TypeBasic
}
