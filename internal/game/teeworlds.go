// Package game wires the Teeworlds protocol to real UDP sockets.
package game

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/woozymasta/teestat/internal/config"
	"github.com/woozymasta/teestat/internal/teeworlds"
)

// deadlineConn gives every Read and Write its own timeout.
type deadlineConn struct {
	conn    *net.UDPConn
	timeout time.Duration
	bufSize int
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	if c.bufSize > 0 && len(b) > c.bufSize {
		b = b[:c.bufSize]
	}
	return c.conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.conn.Write(b)
}

// dial resolves address and connects a UDP socket to it.
func dial(address string, options config.Query) (*deadlineConn, error) {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", address, err)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	return &deadlineConn{
		conn:    conn,
		timeout: options.Timeout,
		bufSize: int(options.BufferSize),
	}, nil
}

// QueryServer connects to a game server via UDP and requests its info.
// It returns the decoded status (name, map, roster) or an error if the server is unreachable.
func QueryServer(ip string, port int, options config.Query) (*teeworlds.ServerInfo, error) {
	conn, err := dial(net.JoinHostPort(ip, strconv.Itoa(port)), options)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.conn.Close() }()

	return teeworlds.GetServerInfo(conn)
}

// QueryMaster requests the server list from one master server.
// A partial list may come together with a decode error.
func QueryMaster(address string, options config.Query) ([]teeworlds.ServerAddress, error) {
	conn, err := dial(address, options)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.conn.Close() }()

	return teeworlds.GetServerList(conn)
}
