package game

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/teestat/internal/config"
	"github.com/woozymasta/teestat/internal/teeworlds"
	"github.com/woozymasta/teestat/internal/teeworlds/teeworldstest"
)

var testOptions = config.Query{Timeout: 300 * time.Millisecond, BufferSize: 1400}

// serve answers each datagram on a loopback socket with respond(request).
func serve(t *testing.T, respond func(req []byte) [][]byte) *net.UDPAddr {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, teeworlds.MaxPacketSize)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req := append([]byte(nil), buf[:n]...)
			for _, d := range respond(req) {
				_, _ = conn.WriteToUDP(d, from)
			}
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr)
}

func TestQueryServer(t *testing.T) {
	players := []teeworlds.Player{
		{Name: "a", Country: -1}, {Name: "b", Country: 276}, {Name: "c", Country: 40},
	}
	addr := serve(t, func(b []byte) [][]byte {
		req := teeworldstest.RequestOf(b)
		main := &teeworlds.ServerInfo{
			Version: "0.6.4, 18.0", Name: "loopback", Map: "Tutorial", GameType: "DDraceNetwork",
			PlayerCount: 3, MaxPlayerCount: 16, ClientCount: 3, MaxClientCount: 16,
			Extended: true, Players: players[:1],
		}
		return [][]byte{
			teeworldstest.MarshalInfo(main, req),
			teeworldstest.MarshalInfoMore(req, 1, players[1:]),
		}
	})

	info, err := QueryServer("127.0.0.1", addr.Port, testOptions)
	require.NoError(t, err)
	assert.Equal(t, "loopback", info.Name)
	require.Len(t, info.Players, 3)
	assert.Equal(t, "c", info.Players[2].Name)
}

func TestQueryServerTimeout(t *testing.T) {
	addr := serve(t, func([]byte) [][]byte { return nil })

	_, err := QueryServer("127.0.0.1", addr.Port, testOptions)
	assert.ErrorIs(t, err, teeworlds.ErrTransport)
}

func TestQueryMaster(t *testing.T) {
	servers := []teeworlds.ServerAddress{
		{IP: netip.MustParseAddr("10.0.0.1"), Port: 8303},
		{IP: netip.MustParseAddr("2001:db8::2"), Port: 8304},
	}
	addr := serve(t, func(b []byte) [][]byte {
		if len(b) >= 14 && teeworlds.GetList.Equal(b[10:14]) {
			return [][]byte{teeworldstest.MarshalCount(2), teeworldstest.MarshalList(servers)}
		}
		return nil
	})

	got, err := QueryMaster(addr.String(), testOptions)
	require.NoError(t, err)
	assert.Equal(t, servers, got)
}

func TestQueryMasterBadAddress(t *testing.T) {
	_, err := QueryMaster("no-port", testOptions)
	assert.Error(t, err)
}
