// Package teeworlds implements the client side of the Teeworlds/DDNet connless
// server-discovery protocol: master server lists and game server info queries.
//
// The package never opens sockets. Callers hand it a Conn that is already
// associated with a single peer and carries its own read/write timeouts.
package teeworlds

import (
	"bytes"
	"encoding/binary"
	"math/rand/v2"
)

// MaxPacketSize is the largest datagram a DDNet peer sends.
const MaxPacketSize = 1400

// headerSize is the connless prelude before the type tag in responses.
const headerSize = 10

// Request prefixes.
var (
	MasterMagic = []byte{0xff, 0xff}
	InfoMagic   = []byte("xe")
)

// PacketType is a 4-byte ASCII connless message tag.
type PacketType int

const (
	// GetCount asks a master for the number of registered servers.
	GetCount PacketType = iota
	// GetList asks a master for the server addresses.
	GetList
	// GetInfo asks a game server for its status.
	GetInfo
	// GetInfo64Legacy is the old 64-slot info request.
	GetInfo64Legacy

	// Count answers GetCount.
	Count
	// List answers GetList.
	List
	// Info is the vanilla info reply.
	Info
	// Info64Legacy is the old 64-slot info reply.
	Info64Legacy
	// InfoExtended is the DDNet extended info reply.
	InfoExtended
	// InfoExtendedMore carries roster entries that did not fit into InfoExtended.
	InfoExtendedMore
)

var packetTags = [...][4]byte{
	GetCount:         {'c', 'o', 'u', '2'},
	GetList:          {'r', 'e', 'q', '2'},
	GetInfo:          {'g', 'i', 'e', '3'},
	GetInfo64Legacy:  {'f', 's', 't', 'd'},
	Count:            {'s', 'i', 'z', '2'},
	List:             {'l', 'i', 's', '2'},
	Info:             {'i', 'n', 'f', '3'},
	Info64Legacy:     {'d', 't', 's', 'f'},
	InfoExtended:     {'i', 'e', 'x', 't'},
	InfoExtendedMore: {'i', 'e', 'x', '+'},
}

// Value returns the wire tag. The returned slice is a fresh copy.
func (p PacketType) Value() []byte {
	if p < 0 || int(p) >= len(packetTags) {
		return nil
	}
	tag := packetTags[p]
	return tag[:]
}

// Equal reports whether raw is exactly the tag of p.
func (p PacketType) Equal(raw []byte) bool {
	if p < 0 || int(p) >= len(packetTags) || len(raw) != 4 {
		return false
	}
	tag := packetTags[p]
	return bytes.Equal(tag[:], raw)
}

// String returns the tag as text.
func (p PacketType) String() string {
	if v := p.Value(); v != nil {
		return string(v)
	}
	return "unknown"
}

// PacketTypeAt classifies the 4-byte tag starting at offset.
// It returns false when buf is too short or the tag is unknown.
func PacketTypeAt(buf []byte, offset int) (PacketType, bool) {
	if offset < 0 || len(buf) < offset+4 {
		return 0, false
	}
	raw := buf[offset : offset+4]
	for p := range packetTags {
		if PacketType(p).Equal(raw) {
			return PacketType(p), true
		}
	}
	return 0, false
}

// Request is an outbound datagram together with the tokens embedded in it.
type Request struct {
	Buf        []byte
	ExtraToken uint16
	Token      uint8
	HasToken   bool
}

// PackedToken is the value a server echoes back: extra token in bits 8-23,
// token in bits 0-7.
func (r Request) PackedToken() int64 {
	return int64(r.ExtraToken)<<8 | int64(r.Token)
}

// CreatePacket builds a request laid out as
// [magic] [extra token u16 BE] [00 00] [ff ff ff ff] [tag] [token u8].
// Tokens are drawn from a generator seeded for this call only.
func CreatePacket(p PacketType, magic []byte, addToken bool) Request {
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))

	buf := make([]byte, 0, len(magic)+13)
	buf = append(buf, magic...)

	extra := uint16(rng.UintN(1 << 16))
	buf = binary.BigEndian.AppendUint16(buf, extra)
	buf = append(buf, 0x00, 0x00)             // reserved
	buf = append(buf, 0xff, 0xff, 0xff, 0xff) // padding
	buf = append(buf, p.Value()...)

	req := Request{ExtraToken: extra}
	if addToken {
		req.Token = uint8(rng.UintN(1 << 8))
		req.HasToken = true
		buf = append(buf, req.Token)
	}
	req.Buf = buf

	return req
}
