// Package models defines the data structures used for API responses and database persistence.
package models

import (
	"time"

	"github.com/woozymasta/teestat/internal/teeworlds"
)

// Server represents a crawled game server stored in the database.
// Answered is set once an info query succeeded; the name alone does not tell,
// since servers may run with an empty sv_name.
type Server struct {
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	MapCRC      *int      `json:"map_crc,omitempty"`
	MapSize     *int      `json:"map_size,omitempty"`
	IP          string    `json:"ip"`
	Master      string    `json:"master"`
	CountryCode string    `json:"country_code"`
	Version     string    `json:"version"`
	ServerName  string    `json:"server_name"`
	MapName     string    `json:"map_name"`
	GameType    string    `json:"game_type"`
	Players     []Player  `json:"players,omitempty"`
	Port        int       `json:"port"`
	Count       int64     `json:"count"`
	NumPlayers  int       `json:"num_players"`
	MaxPlayers  int       `json:"max_players"`
	NumClients  int       `json:"num_clients"`
	MaxClients  int       `json:"max_clients"`
	Password    bool      `json:"password"`
	Extended    bool      `json:"extended"`
	Answered    bool      `json:"answered"`
}

// Online reports whether s carries info from an answered query.
func (s Server) Online() bool {
	return s.Answered
}

// Player is one roster entry of a stored server.
type Player struct {
	Name      string `json:"name"`
	Clan      string `json:"clan"`
	Country   int    `json:"country"`
	Score     int    `json:"score"`
	Spectator bool   `json:"spectator"`
}

// ApplyInfo copies an info query result into s.
func (s *Server) ApplyInfo(info *teeworlds.ServerInfo) {
	s.Answered = true
	s.Version = info.Version
	s.ServerName = info.Name
	s.MapName = info.Map
	s.GameType = info.GameType
	s.Password = info.Password
	s.Extended = info.Extended
	s.MapCRC = info.MapCRC
	s.MapSize = info.MapSize
	s.NumPlayers = info.PlayerCount
	s.MaxPlayers = info.MaxPlayerCount
	s.NumClients = info.ClientCount
	s.MaxClients = info.MaxClientCount

	s.Players = make([]Player, 0, len(info.Players))
	for _, p := range info.Players {
		s.Players = append(s.Players, Player{
			Name:      p.Name,
			Clan:      p.Clan,
			Country:   p.Country,
			Score:     p.Score,
			Spectator: p.Spectator,
		})
	}
}
