// Package fake provides utilities for generating random server data for testing and development purposes.
package fake

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/teestat/internal/models"
	"github.com/woozymasta/teestat/internal/storage"
)

var (
	masters   = []string{"master1.ddnet.org:8300", "master2.ddnet.org:8300", "master3.ddnet.org:8300", "master4.ddnet.org:8300"}
	maps      = []string{"Kobra 4", "Tutorial", "Sunny Side Up", "Multeasymap", "ctf5", "dm1", "Baby Aim 1.0"}
	gameTypes = []string{"DDraceNetwork", "DDraceNetwork", "DDraceNetwork", "CTF", "DM", "gores", "Block"}
	versions  = []string{"0.6.4, 18.0", "0.6.4, 18.1", "0.6.4, 17.4.2", "0.7.5"}
	regions   = []string{"GER", "RUS", "USA", "CHL", "CHN", "KOR", "BRA"}
	nicks     = []string{"nameless tee", "brainless tee", "Cor", "Pulsar", "Aoe", "murpi", "heinrich5991", "deen", "Ryozuki"}
	clans     = []string{"", "", "Chaos", "ZeroX", "DDNet", "Kintaro"}

	// Countries list
	countriesHigh = []string{"DE", "RU", "US", "CN", "BR", "FR", "PL", "UA"}
	countriesMid  = []string{"CL", "KR", "NL", "SE", "FI", "CA", "GB", "TR"}
	countriesLow  = []string{"ZA", "AR", "MX", "IN", "SG", "AU", "JP", "IR"}
)

// GenerateData populates the storage with a specified number of randomized server records.
// About a fifth of them never answered and carry no info.
func GenerateData(store *storage.Repository, count int) {
	for i := 0; i < count; i++ {
		// Random date-time in 30 days range
		daysAgo := rand.Intn(30)
		seenTime := time.Now().Add(-time.Duration(daysAgo) * 24 * time.Hour).
			Add(-time.Duration(rand.Intn(1440)) * time.Minute)

		srv := models.Server{
			IP:          fmt.Sprintf("%d.%d.%d.%d", rand.Intn(220)+1, rand.Intn(255), rand.Intn(255), rand.Intn(255)),
			Port:        8303 + rand.Intn(100),
			Master:      masters[rand.Intn(len(masters))],
			CountryCode: country(),
			FirstSeen:   seenTime.Add(-time.Hour * 24 * 7),
			LastSeen:    seenTime,
		}

		if rand.Float32() >= 0.2 {
			fill(&srv)
		}

		if err := store.UpsertServer(srv); err != nil {
			log.Warn().Err(err).Msg("Failed to generate fake server")
		}

		if rand.Float32() < 0.3 { // 30% chance seen again
			_ = store.UpsertServer(srv)
			_ = store.UpsertServer(srv)
		}
	}
}

func country() string {
	roll := rand.Float32()
	switch {
	case roll < 0.70:
		return countriesHigh[rand.Intn(len(countriesHigh))]
	case roll < 0.90:
		return countriesMid[rand.Intn(len(countriesMid))]
	default:
		return countriesLow[rand.Intn(len(countriesLow))]
	}
}

// fill sets the info fields and a roster as an answered probe would.
func fill(srv *models.Server) {
	kind := rand.Intn(len(maps))
	maxClients := 16
	if gameTypes[kind] == "DDraceNetwork" {
		maxClients = 64
	}

	srv.Answered = true
	srv.Version = versions[rand.Intn(len(versions))]
	srv.ServerName = fmt.Sprintf("DDNet %s - %s #%d", regions[rand.Intn(len(regions))], gameTypes[kind], rand.Intn(20))
	srv.MapName = maps[kind]
	srv.GameType = gameTypes[kind]
	srv.Password = rand.Float32() < 0.05
	srv.Extended = maxClients > 16
	srv.MaxClients = maxClients
	srv.MaxPlayers = maxClients

	if srv.Extended {
		crc := int(rand.Int31())
		size := 10000 + rand.Intn(500000)
		srv.MapCRC = &crc
		srv.MapSize = &size
	}

	clients := rand.Intn(maxClients / 2)
	srv.NumClients = clients
	srv.Players = make([]models.Player, 0, clients)
	for j := 0; j < clients; j++ {
		p := models.Player{
			Name:      fmt.Sprintf("%s%d", nicks[rand.Intn(len(nicks))], j),
			Clan:      clans[rand.Intn(len(clans))],
			Country:   rand.Intn(1000) - 1,
			Score:     rand.Intn(100),
			Spectator: rand.Float32() < 0.1,
		}
		if !p.Spectator {
			srv.NumPlayers++
		}
		srv.Players = append(srv.Players, p)
	}
}
