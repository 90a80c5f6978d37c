package teeworlds

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// MaxMorePackets bounds how many continuation datagrams are read per query.
const MaxMorePackets = 6

// Player is one roster entry.
type Player struct {
	Name      string `json:"name"`
	Clan      string `json:"clan"`
	Country   int    `json:"country"`
	Score     int    `json:"score"`
	Spectator bool   `json:"spectator"`
	Reserved  string `json:"reserved,omitempty"`
}

// ServerInfo is a decoded info response.
//
// ClientCount is what the server declared. Players may hold fewer entries
// when continuation datagrams were lost, spoofed or cut by MaxMorePackets.
type ServerInfo struct {
	Version        string   `json:"version"`
	Token          int      `json:"token"`
	Name           string   `json:"name"`
	Map            string   `json:"map"`
	MapCRC         *int     `json:"map_crc,omitempty"`
	MapSize        *int     `json:"map_size,omitempty"`
	GameType       string   `json:"game_type"`
	Password       bool     `json:"password"`
	PlayerCount    int      `json:"player_count"`
	MaxPlayerCount int      `json:"max_player_count"`
	ClientCount    int      `json:"client_count"`
	MaxClientCount int      `json:"max_client_count"`
	Extended       bool     `json:"extended"`
	Players        []Player `json:"players"`

	seen map[int]struct{}
}

// Complete reports whether the whole declared roster was decoded.
func (s *ServerInfo) Complete() bool {
	return len(s.Players) >= s.ClientCount
}

// splitToken unpacks the echoed token field.
func splitToken(packed int) (uint16, uint8) {
	return uint16((packed >> 8) & 0xffff), uint8(packed & 0xff)
}

// checkToken validates an echoed token. Vanilla servers only echo the
// 8-bit token, so the extra token is compared for the extended variant only.
func checkToken(req Request, packed int, extended bool) error {
	extra, token := splitToken(packed)
	log.Trace().
		Uint16("extra_token", extra).
		Uint8("token", token).
		Msg("Token received")

	if (extended && extra != req.ExtraToken) || token != req.Token {
		return &TokenError{
			WantedExtraToken:   req.ExtraToken,
			WantedToken:        req.Token,
			ReceivedExtraToken: extra,
			ReceivedToken:      token,
		}
	}
	return nil
}

// ParseInfo decodes the main info datagram answering req.
// Any header failure, including a token mismatch, is returned as an error.
// Player decoding stops quietly at the first incomplete entry.
func ParseInfo(data []byte, req Request) (*ServerInfo, error) {
	r := newReader(data)
	if err := r.advance(headerSize); err != nil {
		return nil, err
	}
	tag, err := r.tag()
	if err != nil {
		return nil, err
	}

	info := &ServerInfo{
		Extended: InfoExtended.Equal(tag),
		seen:     map[int]struct{}{0: {}},
	}
	log.Trace().Str("type", string(tag)).Bool("extended", info.Extended).Msg("Info datagram")

	if info.Token, err = r.int(); err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	if err := checkToken(req, info.Token, info.Extended); err != nil {
		return nil, err
	}

	if info.Version, err = r.str(); err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	if info.Name, err = r.str(); err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	if info.Map, err = r.str(); err != nil {
		return nil, fmt.Errorf("map: %w", err)
	}

	if info.Extended {
		crc, err := r.int()
		if err != nil {
			return nil, fmt.Errorf("map crc: %w", err)
		}
		size, err := r.int()
		if err != nil {
			return nil, fmt.Errorf("map size: %w", err)
		}
		info.MapCRC, info.MapSize = &crc, &size
	}

	if info.GameType, err = r.str(); err != nil {
		return nil, fmt.Errorf("game type: %w", err)
	}

	flags, err := r.int()
	if err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	info.Password = flags&1 == 1

	counts := []struct {
		name string
		dst  *int
	}{
		{"player count", &info.PlayerCount},
		{"max player count", &info.MaxPlayerCount},
		{"client count", &info.ClientCount},
		{"max client count", &info.MaxClientCount},
	}
	for _, c := range counts {
		if *c.dst, err = r.int(); err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
	}

	if info.Extended {
		if _, err := r.next(); err != nil {
			return nil, fmt.Errorf("reserved: %w", err)
		}
	}

	info.readPlayers(r)

	log.Debug().
		Str("name", info.Name).
		Int("clients", info.ClientCount).
		Int("players", len(info.Players)).
		Msg("Info parsed")

	return info, nil
}

// ParseMore folds a continuation datagram into s.
//
// The datagram is rejected without touching s when its token does not match
// req, when its sequence number was already folded in, or when its header is
// malformed. A tag other than "iex+" is only logged.
func (s *ServerInfo) ParseMore(data []byte, req Request) error {
	r := newReader(data)
	if err := r.advance(headerSize); err != nil {
		return err
	}
	tag, err := r.tag()
	if err != nil {
		return err
	}
	if !InfoExtendedMore.Equal(tag) {
		log.Warn().Str("type", string(tag)).Msg("Continuation packet type should be 'iex+'")
	}

	packed, err := r.int()
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	if err := checkToken(req, packed, true); err != nil {
		return err
	}

	seq, err := r.int()
	if err != nil {
		return fmt.Errorf("packet number: %w", err)
	}
	if s.seen == nil {
		s.seen = map[int]struct{}{0: {}}
	}
	if _, dup := s.seen[seq]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicatePacket, seq)
	}

	if _, err := r.next(); err != nil {
		return fmt.Errorf("reserved: %w", err)
	}

	s.seen[seq] = struct{}{}
	before := len(s.Players)
	s.readPlayers(r)

	log.Debug().
		Int("packet", seq).
		Int("added", len(s.Players)-before).
		Int("players", len(s.Players)).
		Msg("Continuation parsed")

	return nil
}

// readPlayers appends entries until the declared client count is reached
// or the datagram runs out.
func (s *ServerInfo) readPlayers(r *reader) {
	for len(s.Players) < s.ClientCount {
		p, err := readPlayer(r, s.Extended)
		if err != nil {
			if !errors.Is(err, ErrMissingField) || r.remaining() > 0 {
				log.Trace().Err(err).Msg("Player decoding stopped")
			}
			return
		}
		s.Players = append(s.Players, p)
	}
}

func readPlayer(r *reader, extended bool) (Player, error) {
	var (
		p   Player
		err error
	)

	if p.Name, err = r.str(); err != nil {
		return p, err
	}
	if p.Clan, err = r.str(); err != nil {
		return p, err
	}
	if p.Country, err = r.int(); err != nil {
		return p, err
	}
	if p.Score, err = r.int(); err != nil {
		return p, err
	}
	isPlayer, err := r.int()
	if err != nil {
		return p, err
	}
	p.Spectator = isPlayer == 0

	if extended {
		if p.Reserved, err = r.str(); err != nil {
			return p, err
		}
	}

	return p, nil
}

// GetServerInfo queries the game server behind conn.
//
// The request carries the InfoMagic prefix. Legacy "inf3" replies echo only
// the 8-bit token, so they are matched on that byte alone; "iext" replies and
// their continuations must match the extra token as well.
//
// A missing, malformed or wrongly tokened main datagram fails the query.
// Continuation datagrams are read while the roster is short, at most
// MaxMorePackets times; receive errors and bad continuations end or skip
// that phase and the partial roster is returned.
func GetServerInfo(conn Conn) (*ServerInfo, error) {
	req := CreatePacket(GetInfo, InfoMagic, true)
	log.Debug().
		Uint16("extra_token", req.ExtraToken).
		Uint8("token", req.Token).
		Msg("Generated tokens")

	sent, err := conn.Write(req.Buf)
	if err != nil {
		return nil, fmt.Errorf("%w: send: %w", ErrTransport, err)
	}
	if sent != len(req.Buf) {
		log.Warn().Int("sent", sent).Int("size", len(req.Buf)).Msg("Short write of info request")
	}

	buf := make([]byte, MaxPacketSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: receive: %w", ErrTransport, err)
	}
	log.Trace().Int("size", n).Msg("Main info datagram received")

	info, err := ParseInfo(buf[:n], req)
	if err != nil {
		return nil, err
	}

	for try := 0; try < MaxMorePackets && !info.Complete(); try++ {
		n, err := conn.Read(buf)
		if err != nil {
			log.Debug().Err(err).Int("try", try).Msg("No more continuation packets")
			break
		}
		if n == 0 {
			break
		}

		if err := info.ParseMore(buf[:n], req); err != nil {
			log.Warn().Err(err).Int("try", try).Msg("Continuation packet discarded")
		}
	}

	return info, nil
}
