package teeworlds_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/teestat/internal/teeworlds"
	"github.com/woozymasta/teestat/internal/teeworlds/teeworldstest"
)

func makePlayers(from, to int) []teeworlds.Player {
	players := make([]teeworlds.Player, 0, to-from)
	for i := from; i < to; i++ {
		players = append(players, teeworlds.Player{
			Name:      fmt.Sprintf("tee%d", i),
			Clan:      "clan",
			Country:   i,
			Score:     -i,
			Spectator: i%7 == 0,
		})
	}
	return players
}

func TestParseInfoRoundTrip(t *testing.T) {
	req := teeworlds.CreatePacket(teeworlds.GetInfo, teeworlds.InfoMagic, true)
	want := &teeworlds.ServerInfo{
		Version:        "0.6.4",
		Name:           "Test",
		Map:            "dm1",
		GameType:       "DM",
		PlayerCount:    2,
		MaxPlayerCount: 4,
		ClientCount:    2,
		MaxClientCount: 4,
		Players: []teeworlds.Player{
			{Name: "nameless tee", Clan: "", Country: -1, Score: 5},
			{Name: "brainless tee", Clan: "[x]", Country: 276, Score: 0, Spectator: true},
		},
	}

	got, err := teeworlds.ParseInfo(teeworldstest.MarshalInfo(want, req), req)
	require.NoError(t, err)

	assert.Equal(t, "0.6.4", got.Version)
	assert.Equal(t, "Test", got.Name)
	assert.Equal(t, "dm1", got.Map)
	assert.Equal(t, "DM", got.GameType)
	assert.False(t, got.Password)
	assert.Equal(t, 2, got.PlayerCount)
	assert.Equal(t, 4, got.MaxPlayerCount)
	assert.Equal(t, 2, got.ClientCount)
	assert.Equal(t, 4, got.MaxClientCount)
	assert.False(t, got.Extended)
	assert.Nil(t, got.MapCRC)
	assert.Nil(t, got.MapSize)
	assert.Equal(t, int(req.PackedToken()), got.Token)
	assert.Equal(t, want.Players, got.Players)
	assert.True(t, got.Complete())
}

func TestParseInfoExtended(t *testing.T) {
	req := teeworlds.CreatePacket(teeworlds.GetInfo, teeworlds.InfoMagic, true)
	crc, size := -123456, 7890
	want := &teeworlds.ServerInfo{
		Version:        "0.6.4, 18.0",
		Name:           "DDNet GER",
		Map:            "Kobra 4",
		MapCRC:         &crc,
		MapSize:        &size,
		GameType:       "DDraceNetwork",
		Password:       true,
		PlayerCount:    3,
		MaxPlayerCount: 64,
		ClientCount:    3,
		MaxClientCount: 64,
		Extended:       true,
		Players:        makePlayers(0, 3),
	}
	want.Players[1].Reserved = "x"

	got, err := teeworlds.ParseInfo(teeworldstest.MarshalInfo(want, req), req)
	require.NoError(t, err)

	assert.True(t, got.Extended)
	assert.True(t, got.Password)
	require.NotNil(t, got.MapCRC)
	require.NotNil(t, got.MapSize)
	assert.Equal(t, crc, *got.MapCRC)
	assert.Equal(t, size, *got.MapSize)
	assert.Equal(t, "DDraceNetwork", got.GameType)
	assert.Equal(t, want.Players, got.Players)
}

func TestParseInfoTokenMismatch(t *testing.T) {
	req := teeworlds.Request{ExtraToken: 100, Token: 7, HasToken: true}
	other := teeworlds.Request{ExtraToken: 101, Token: 7, HasToken: true}
	info := &teeworlds.ServerInfo{Extended: true, Name: "x", ClientCount: 0}

	_, err := teeworlds.ParseInfo(teeworldstest.MarshalInfo(info, other), req)

	var tokenErr *teeworlds.TokenError
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, uint16(100), tokenErr.WantedExtraToken)
	assert.Equal(t, uint16(101), tokenErr.ReceivedExtraToken)
	assert.Equal(t, uint8(7), tokenErr.WantedToken)
	assert.Equal(t, uint8(7), tokenErr.ReceivedToken)
}

func TestParseInfoLegacyChecksTokenByteOnly(t *testing.T) {
	req := teeworlds.Request{ExtraToken: 100, Token: 7, HasToken: true}
	info := &teeworlds.ServerInfo{Name: "vanilla"}

	_, err := teeworlds.ParseInfo(teeworldstest.MarshalInfo(info, teeworlds.Request{ExtraToken: 5, Token: 7}), req)
	require.NoError(t, err)

	_, err = teeworlds.ParseInfo(teeworldstest.MarshalInfo(info, teeworlds.Request{ExtraToken: 100, Token: 8}), req)
	var tokenErr *teeworlds.TokenError
	assert.ErrorAs(t, err, &tokenErr)
}

func TestParseInfoHeaderErrors(t *testing.T) {
	req := teeworlds.CreatePacket(teeworlds.GetInfo, teeworlds.InfoMagic, true)
	full := teeworldstest.MarshalInfo(&teeworlds.ServerInfo{Name: "n", Map: "m", GameType: "g", ClientCount: 0}, req)

	_, err := teeworlds.ParseInfo(full[:8], req)
	assert.ErrorIs(t, err, teeworlds.ErrMissingField)

	// cut inside the count fields
	_, err = teeworlds.ParseInfo(full[:len(full)-4], req)
	assert.ErrorIs(t, err, teeworlds.ErrMissingField)

	bad := teeworldstest.Header(teeworlds.Info)
	bad = teeworldstest.AppendInt(bad, int(req.PackedToken()))
	bad = teeworldstest.AppendField(bad, "0.6.4")
	bad = teeworldstest.AppendField(bad, "name")
	bad = teeworldstest.AppendField(bad, "map")
	bad = teeworldstest.AppendField(bad, "DM")
	bad = teeworldstest.AppendField(bad, "zero")
	_, err = teeworlds.ParseInfo(bad, req)
	assert.ErrorIs(t, err, teeworlds.ErrParse)

	bad = teeworldstest.Header(teeworlds.Info)
	bad = teeworldstest.AppendInt(bad, int(req.PackedToken()))
	bad = append(bad, 0xc3, 0x28, 0)
	_, err = teeworlds.ParseInfo(bad, req)
	assert.ErrorIs(t, err, teeworlds.ErrDecode)
}

func TestParseInfoStopsAtMalformedPlayer(t *testing.T) {
	req := teeworlds.CreatePacket(teeworlds.GetInfo, teeworlds.InfoMagic, true)
	info := &teeworlds.ServerInfo{ClientCount: 3, Players: makePlayers(0, 1)}
	data := teeworldstest.MarshalInfo(info, req)
	data = teeworldstest.AppendField(data, "broken")
	data = teeworldstest.AppendField(data, "")
	data = teeworldstest.AppendField(data, "not-a-country")

	got, err := teeworlds.ParseInfo(data, req)
	require.NoError(t, err)
	assert.Len(t, got.Players, 1)
	assert.Equal(t, 3, got.ClientCount)
	assert.False(t, got.Complete())
}

func TestParseInfoNeverReadsPastClientCount(t *testing.T) {
	req := teeworlds.CreatePacket(teeworlds.GetInfo, teeworlds.InfoMagic, true)
	info := &teeworlds.ServerInfo{Extended: true, ClientCount: 2, Players: makePlayers(0, 5)}

	got, err := teeworlds.ParseInfo(teeworldstest.MarshalInfo(info, req), req)
	require.NoError(t, err)
	assert.Equal(t, makePlayers(0, 2), got.Players)
}

func TestParseMoreRejectsSpoofedAndRepeated(t *testing.T) {
	req := teeworlds.CreatePacket(teeworlds.GetInfo, teeworlds.InfoMagic, true)
	info, err := teeworlds.ParseInfo(teeworldstest.MarshalInfo(&teeworlds.ServerInfo{Extended: true, ClientCount: 6, Players: makePlayers(0, 2)}, req), req)
	require.NoError(t, err)

	spoofed := teeworlds.Request{ExtraToken: req.ExtraToken + 1, Token: req.Token}
	var tokenErr *teeworlds.TokenError
	require.ErrorAs(t, info.ParseMore(teeworldstest.MarshalInfoMore(spoofed, 1, makePlayers(100, 102)), req), &tokenErr)
	assert.Len(t, info.Players, 2)

	require.NoError(t, info.ParseMore(teeworldstest.MarshalInfoMore(req, 1, makePlayers(2, 4)), req))
	assert.Len(t, info.Players, 4)

	assert.ErrorIs(t, info.ParseMore(teeworldstest.MarshalInfoMore(req, 1, makePlayers(2, 4)), req), teeworlds.ErrDuplicatePacket)
	assert.ErrorIs(t, info.ParseMore(teeworldstest.MarshalInfoMore(req, 0, makePlayers(2, 4)), req), teeworlds.ErrDuplicatePacket)
	assert.Len(t, info.Players, 4)

	require.NoError(t, info.ParseMore(teeworldstest.MarshalInfoMore(req, 2, makePlayers(4, 9)), req))
	assert.Equal(t, makePlayers(0, 6), info.Players)
}

func TestParseMoreWrongTagIsAdvisory(t *testing.T) {
	req := teeworlds.CreatePacket(teeworlds.GetInfo, teeworlds.InfoMagic, true)
	info, err := teeworlds.ParseInfo(teeworldstest.MarshalInfo(&teeworlds.ServerInfo{Extended: true, ClientCount: 2}, req), req)
	require.NoError(t, err)

	data := teeworldstest.MarshalInfoMore(req, 1, makePlayers(0, 2))
	copy(data[teeworldstest.HeaderSize:], "iext")

	require.NoError(t, info.ParseMore(data, req))
	assert.Len(t, info.Players, 2)
}

func TestGetServerInfoFoldsContinuations(t *testing.T) {
	all := makePlayers(0, 63)
	conn := &teeworldstest.Conn{Reply: func(b []byte) [][]byte {
		req := teeworldstest.RequestOf(b)
		main := &teeworlds.ServerInfo{
			Version: "0.6.4, 18.0", Name: "big", Map: "Multeasymap", GameType: "DDraceNetwork",
			PlayerCount: 60, MaxPlayerCount: 64, ClientCount: 63, MaxClientCount: 64,
			Extended: true, Players: all[:20],
		}
		return [][]byte{
			teeworldstest.MarshalInfo(main, req),
			teeworldstest.MarshalInfoMore(req, 1, all[20:40]),
			teeworldstest.MarshalInfoMore(req, 2, all[40:63]),
		}
	}}

	info, err := teeworlds.GetServerInfo(conn)
	require.NoError(t, err)

	require.Len(t, conn.Writes, 1)
	assert.Equal(t, teeworlds.InfoMagic, conn.Writes[0][:2])
	assert.True(t, teeworlds.GetInfo.Equal(conn.Writes[0][10:14]))

	require.Len(t, info.Players, 63)
	for i, p := range info.Players {
		assert.Equal(t, fmt.Sprintf("tee%d", i), p.Name)
	}
}

func TestGetServerInfoSkipsSpoofedAndDuplicateContinuations(t *testing.T) {
	all := makePlayers(0, 30)
	conn := &teeworldstest.Conn{Reply: func(b []byte) [][]byte {
		req := teeworldstest.RequestOf(b)
		forged := teeworlds.Request{ExtraToken: req.ExtraToken ^ 0xffff, Token: req.Token}
		main := &teeworlds.ServerInfo{Extended: true, ClientCount: 30, Players: all[:10]}
		return [][]byte{
			teeworldstest.MarshalInfo(main, req),
			teeworldstest.MarshalInfoMore(forged, 1, makePlayers(500, 510)),
			teeworldstest.MarshalInfoMore(req, 1, all[10:20]),
			teeworldstest.MarshalInfoMore(req, 1, all[10:20]),
			teeworldstest.MarshalInfoMore(req, 2, all[20:30]),
		}
	}}

	info, err := teeworlds.GetServerInfo(conn)
	require.NoError(t, err)
	assert.Equal(t, all, info.Players)
}

func TestGetServerInfoRetryCeiling(t *testing.T) {
	conn := &teeworldstest.Conn{Reply: func(b []byte) [][]byte {
		req := teeworldstest.RequestOf(b)
		out := [][]byte{teeworldstest.MarshalInfo(&teeworlds.ServerInfo{Extended: true, ClientCount: 64, Players: makePlayers(0, 4)}, req)}
		for range teeworlds.MaxMorePackets + 3 {
			// every continuation repeats sequence 1
			out = append(out, teeworldstest.MarshalInfoMore(req, 1, makePlayers(4, 5)))
		}
		return out
	}}

	info, err := teeworlds.GetServerInfo(conn)
	require.NoError(t, err)
	assert.Len(t, info.Players, 5)
	assert.Equal(t, 64, info.ClientCount)
	assert.Len(t, conn.Queue, 3)
}

func TestGetServerInfoPartialOnTimeout(t *testing.T) {
	conn := &teeworldstest.Conn{Reply: func(b []byte) [][]byte {
		req := teeworldstest.RequestOf(b)
		return [][]byte{teeworldstest.MarshalInfo(&teeworlds.ServerInfo{Extended: true, ClientCount: 10, Players: makePlayers(0, 4)}, req)}
	}}

	info, err := teeworlds.GetServerInfo(conn)
	require.NoError(t, err)
	assert.Len(t, info.Players, 4)
	assert.False(t, info.Complete())
}

func TestGetServerInfoMainFailures(t *testing.T) {
	_, err := teeworlds.GetServerInfo(&teeworldstest.Conn{})
	assert.ErrorIs(t, err, teeworlds.ErrTransport)

	_, err = teeworlds.GetServerInfo(&teeworldstest.Conn{WriteErr: errors.New("down")})
	assert.ErrorIs(t, err, teeworlds.ErrTransport)

	conn := &teeworldstest.Conn{Reply: func(b []byte) [][]byte {
		req := teeworldstest.RequestOf(b)
		req.Token++
		return [][]byte{teeworldstest.MarshalInfo(&teeworlds.ServerInfo{Extended: true}, req)}
	}}
	_, err = teeworlds.GetServerInfo(conn)
	var tokenErr *teeworlds.TokenError
	assert.ErrorAs(t, err, &tokenErr)
}
