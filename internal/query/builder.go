package query

import (
	"encoding/binary"
	"math"

	"github.com/hytaleone/hyquery/internal/models"
)

// BuildBasic serialises the basic response for s.
// The result depends only on s: identical snapshots produce identical bytes.
func BuildBasic(s models.Snapshot) ([]byte, error) {
	w := newWriter(128)
	if err := w.header(TypeBasic, s, s.CurrentPlayers); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// BuildFull serialises the full response for s. Both player count fields are
// written as len(s.Players) regardless of s.CurrentPlayers.
func BuildFull(s models.Snapshot) ([]byte, error) {
	w := newWriter(128 + len(s.Players)*32 + len(s.Components)*48)

	players := uint32(len(s.Players))
	if err := w.header(TypeFull, s, players); err != nil {
		return nil, err
	}

	w.uint32(players)
	for _, p := range s.Players {
		if err := w.string(p.Username); err != nil {
			return nil, err
		}
		// Identifiers go out big-endian, unlike every other integer here.
		w.buf = append(w.buf, p.ID[:]...)
	}

	w.uint32(uint32(len(s.Components)))
	for _, c := range s.Components {
		if err := w.string(c.Identifier); err != nil {
			return nil, err
		}
		if err := w.string(c.Version); err != nil {
			return nil, err
		}
		w.bool(c.Enabled)
	}

	return w.buf, nil
}

// Build dispatches to BuildFull or BuildBasic.
func Build(t Type, s models.Snapshot) ([]byte, error) {
	if t == TypeFull {
		return BuildFull(s)
	}
	return BuildBasic(s)
}

type writer struct {
	buf []byte
}

func newWriter(size int) *writer {
	return &writer{buf: make([]byte, 0, size)}
}

// header writes the fields shared by both response types.
func (w *writer) header(t Type, s models.Snapshot, players uint32) error {
	w.buf = append(w.buf, responseMagic[:]...)
	w.buf = append(w.buf, byte(t))

	if err := w.string(s.ServerName); err != nil {
		return err
	}
	if err := w.string(s.MOTD); err != nil {
		return err
	}
	w.uint32(players)
	w.uint32(s.MaxPlayers)
	w.buf = binary.LittleEndian.AppendUint16(w.buf, s.HostPort)
	if err := w.string(s.Version); err != nil {
		return err
	}
	w.uint32(s.ProtocolVersion)
	return w.string(s.ProtocolHash)
}

func (w *writer) uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// string writes s as UTF-8 prefixed by its little-endian uint16 byte length.
func (w *writer) string(s string) error {
	if len(s) > math.MaxUint16 {
		return ErrStringTooLong
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}
