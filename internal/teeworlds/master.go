package teeworlds

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/rs/zerolog/log"
)

// Conn is a datagram channel bound to one peer. *net.UDPConn satisfies it.
// Read must return an error once its timeout expires.
type Conn interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
}

// ServerAddress is a game server endpoint announced by a master.
type ServerAddress struct {
	IP   netip.Addr `json:"ip"`
	Port uint16     `json:"port"`
}

// String returns host:port, bracketing IPv6.
func (a ServerAddress) String() string {
	return netip.AddrPortFrom(a.IP, a.Port).String()
}

const (
	listOffset = headerSize + 4
	listRecord = 18
)

var ipv4Marker = []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

// MasterList accumulates count and list replies from one master.
type MasterList struct {
	Servers []ServerAddress

	expected int
	hasCount bool
}

// Expected returns the count announced by the master, if one arrived.
func (m *MasterList) Expected() (int, bool) {
	return m.expected, m.hasCount
}

// Done reports whether the announced count has been collected.
func (m *MasterList) Done() bool {
	return m.hasCount && len(m.Servers) >= m.expected
}

// Feed folds one received datagram into the list.
// Datagrams with other tags are ignored.
func (m *MasterList) Feed(data []byte) error {
	switch {
	case len(data) < listOffset:
		return nil

	case Count.Equal(data[headerSize:listOffset]):
		if len(data) < listOffset+2 {
			return fmt.Errorf("%w: count field", ErrMissingField)
		}
		m.expected = int(binary.BigEndian.Uint16(data[listOffset:]))
		m.hasCount = true
		log.Debug().Int("count", m.expected).Msg("Master announced server count")

	case List.Equal(data[headerSize:listOffset]):
		for i := listOffset; i+listRecord <= len(data); i += listRecord {
			addr := decodeAddress(data[i : i+listRecord])
			if addr.Port == 0 || addr.IP.IsUnspecified() {
				break
			}

			log.Trace().Str("address", addr.String()).Msg("Adding server")
			m.Servers = append(m.Servers, addr)

			if m.Done() {
				log.Debug().Int("servers", len(m.Servers)).Msg("Added all servers")
				break
			}
		}
	}

	return nil
}

func decodeAddress(rec []byte) ServerAddress {
	var ip netip.Addr
	if bytes.Equal(rec[:12], ipv4Marker) {
		ip = netip.AddrFrom4([4]byte(rec[12:16]))
	} else {
		ip = netip.AddrFrom16([16]byte(rec[:16]))
	}

	return ServerAddress{
		IP:   ip,
		Port: binary.BigEndian.Uint16(rec[16:18]),
	}
}

// GetServerList asks the master behind conn for every registered server.
//
// Count, list and info requests are written back to back before reading.
// Reading stops at the first receive error (usually the timeout), an empty
// datagram, or once the announced count is reached. Malformed replies are
// returned as a joined error next to whatever addresses were collected;
// only a failed write yields a nil list.
func GetServerList(conn Conn) ([]ServerAddress, error) {
	requests := []Request{
		CreatePacket(GetCount, MasterMagic, false),
		CreatePacket(GetList, MasterMagic, false),
		CreatePacket(GetInfo, InfoMagic, true),
	}
	for _, req := range requests {
		sent, err := conn.Write(req.Buf)
		if err != nil {
			return nil, fmt.Errorf("%w: send: %w", ErrTransport, err)
		}
		log.Trace().Int("sent", sent).Msg("Master request sent")
	}

	var (
		list MasterList
		errs []error
		buf  = make([]byte, MaxPacketSize)
	)

	for !list.Done() {
		n, err := conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if !errors.As(err, &netErr) || !netErr.Timeout() {
				log.Debug().Err(err).Msg("Master receive failed")
			}
			break
		}
		if n == 0 {
			break
		}

		log.Trace().Int("size", n).Bytes("type", tagOf(buf[:n])).Msg("Master datagram received")
		if err := list.Feed(buf[:n]); err != nil {
			errs = append(errs, err)
		}
	}

	return list.Servers, errors.Join(errs...)
}

func tagOf(data []byte) []byte {
	if len(data) < headerSize+4 {
		return nil
	}
	return data[headerSize : headerSize+4]
}
