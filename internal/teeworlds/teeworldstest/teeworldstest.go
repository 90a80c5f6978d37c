// Package teeworldstest emulates the peer side of the connless protocol:
// encoders for master and game server replies and a scripted Conn.
package teeworldstest

import (
	"encoding/binary"
	"errors"
	"os"
	"strconv"

	"github.com/woozymasta/teestat/internal/teeworlds"
)

// HeaderSize is the connless prelude before the type tag in replies.
const HeaderSize = 10

// ListOffset is where count and list payloads start.
const ListOffset = HeaderSize + 4

var ipv4Marker = []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

// Header returns a reply prelude followed by the tag of p.
func Header(p teeworlds.PacketType) []byte {
	buf := make([]byte, 0, teeworlds.MaxPacketSize)
	for range HeaderSize {
		buf = append(buf, 0xff)
	}
	return append(buf, p.Value()...)
}

// AppendField appends s and its NUL terminator.
func AppendField(buf []byte, s string) []byte {
	buf = append(buf, s...)
	return append(buf, 0)
}

// AppendInt appends n as a decimal field.
func AppendInt(buf []byte, n int) []byte {
	return AppendField(buf, strconv.Itoa(n))
}

func appendPlayers(buf []byte, players []teeworlds.Player, extended bool) []byte {
	for _, p := range players {
		buf = AppendField(buf, p.Name)
		buf = AppendField(buf, p.Clan)
		buf = AppendInt(buf, p.Country)
		buf = AppendInt(buf, p.Score)
		if p.Spectator {
			buf = AppendInt(buf, 0)
		} else {
			buf = AppendInt(buf, 1)
		}
		if extended {
			buf = AppendField(buf, p.Reserved)
		}
	}
	return buf
}

// MarshalInfo encodes info as the main reply to req, including all of
// info.Players. The variant follows info.Extended.
func MarshalInfo(info *teeworlds.ServerInfo, req teeworlds.Request) []byte {
	tag := teeworlds.Info
	if info.Extended {
		tag = teeworlds.InfoExtended
	}

	buf := Header(tag)
	buf = AppendInt(buf, int(req.PackedToken()))
	buf = AppendField(buf, info.Version)
	buf = AppendField(buf, info.Name)
	buf = AppendField(buf, info.Map)
	if info.Extended {
		var crc, size int
		if info.MapCRC != nil {
			crc = *info.MapCRC
		}
		if info.MapSize != nil {
			size = *info.MapSize
		}
		buf = AppendInt(buf, crc)
		buf = AppendInt(buf, size)
	}
	buf = AppendField(buf, info.GameType)

	flags := 0
	if info.Password {
		flags |= 1
	}
	buf = AppendInt(buf, flags)
	buf = AppendInt(buf, info.PlayerCount)
	buf = AppendInt(buf, info.MaxPlayerCount)
	buf = AppendInt(buf, info.ClientCount)
	buf = AppendInt(buf, info.MaxClientCount)
	if info.Extended {
		buf = AppendField(buf, "")
	}

	return appendPlayers(buf, info.Players, info.Extended)
}

// MarshalInfoMore encodes an extended continuation with sequence number seq.
func MarshalInfoMore(req teeworlds.Request, seq int, players []teeworlds.Player) []byte {
	buf := Header(teeworlds.InfoExtendedMore)
	buf = AppendInt(buf, int(req.PackedToken()))
	buf = AppendInt(buf, seq)
	buf = AppendField(buf, "")
	return appendPlayers(buf, players, true)
}

// MarshalCount encodes a master count reply.
func MarshalCount(count uint16) []byte {
	return binary.BigEndian.AppendUint16(Header(teeworlds.Count), count)
}

// MarshalList encodes a master list reply. IPv4 addresses use the
// IPv4-mapped marker.
func MarshalList(servers []teeworlds.ServerAddress) []byte {
	buf := Header(teeworlds.List)
	for _, s := range servers {
		if s.IP.Is4() {
			ip4 := s.IP.As4()
			buf = append(buf, ipv4Marker...)
			buf = append(buf, ip4[:]...)
		} else {
			ip16 := s.IP.As16()
			buf = append(buf, ip16[:]...)
		}
		buf = binary.BigEndian.AppendUint16(buf, s.Port)
	}
	return buf
}

// RequestOf recovers the tokens of an info request written with InfoMagic.
func RequestOf(b []byte) teeworlds.Request {
	if len(b) != len(teeworlds.InfoMagic)+13 {
		panic(errors.New("unexpected info request size"))
	}
	return teeworlds.Request{
		Buf:        b,
		ExtraToken: uint16(b[2])<<8 | uint16(b[3]),
		Token:      b[len(b)-1],
		HasToken:   true,
	}
}

// Conn answers every write with datagrams produced by Reply.
// Reads past Queue fail with os.ErrDeadlineExceeded, like a timed out socket.
type Conn struct {
	Reply    func(req []byte) [][]byte
	ReadErr  error
	WriteErr error
	Writes   [][]byte
	Queue    [][]byte
}

func (c *Conn) Write(b []byte) (int, error) {
	if c.WriteErr != nil {
		return 0, c.WriteErr
	}
	req := append([]byte(nil), b...)
	c.Writes = append(c.Writes, req)
	if c.Reply != nil {
		c.Queue = append(c.Queue, c.Reply(req)...)
	}
	return len(b), nil
}

func (c *Conn) Read(b []byte) (int, error) {
	if len(c.Queue) == 0 {
		if c.ReadErr != nil {
			return 0, c.ReadErr
		}
		return 0, os.ErrDeadlineExceeded
	}
	d := c.Queue[0]
	c.Queue = c.Queue[1:]
	return copy(b, d), nil
}
