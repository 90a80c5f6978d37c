package maintenance

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/teestat/internal/config"
	"github.com/woozymasta/teestat/internal/models"
	"github.com/woozymasta/teestat/internal/storage"
	"github.com/woozymasta/teestat/internal/teeworlds"
)

func seed(t *testing.T) *storage.Repository {
	t.Helper()

	repo, err := storage.New(filepath.Join(t.TempDir(), "teestat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	now := time.Now()
	servers := []models.Server{
		{IP: "1.1.1.1", Port: 8303, Master: "a", ServerName: "up", Answered: true, FirstSeen: now, LastSeen: now},
		{IP: "2.2.2.2", Port: 8303, Master: "a", FirstSeen: now, LastSeen: now},
		{IP: "3.3.3.3", Port: 8303, Master: "b", FirstSeen: now, LastSeen: now},
		{IP: "4.4.4.4", Port: 8303, Master: "b", ServerName: "down", Answered: true, FirstSeen: now, LastSeen: now},
	}
	for _, s := range servers {
		require.NoError(t, repo.UpsertServer(s))
	}

	return repo
}

// answers replies for addresses in up and fails for the rest.
func answers(up ...string) querier {
	return func(ip string, _ int, _ config.Query) (*teeworlds.ServerInfo, error) {
		for _, u := range up {
			if u == ip {
				return &teeworlds.ServerInfo{Name: "alive " + ip, Map: "dm1"}, nil
			}
		}
		return nil, teeworlds.ErrTransport
	}
}

func ips(t *testing.T, repo *storage.Repository) []string {
	t.Helper()

	all, err := repo.GetServers()
	require.NoError(t, err)

	out := make([]string, 0, len(all))
	for _, s := range all {
		out = append(out, s.IP)
	}
	return out
}

func TestNoTask(t *testing.T) {
	repo := seed(t)
	assert.False(t, run(&config.Config{}, repo, answers()))
}

func TestPruneEmpty(t *testing.T) {
	repo := seed(t)

	cfg := &config.Config{Storage: config.Storage{PruneEmpty: "b"}}
	require.True(t, run(cfg, repo, answers()))
	assert.ElementsMatch(t, []string{"1.1.1.1", "2.2.2.2", "4.4.4.4"}, ips(t, repo))

	cfg.Storage.PruneEmpty = config.AnyMaster
	require.True(t, run(cfg, repo, answers()))
	assert.ElementsMatch(t, []string{"1.1.1.1", "4.4.4.4"}, ips(t, repo))
}

func TestCheckInactive(t *testing.T) {
	repo := seed(t)

	cfg := &config.Config{Storage: config.Storage{CheckInactive: config.AnyMaster}}
	require.True(t, run(cfg, repo, answers("2.2.2.2")))

	// online servers are not re-checked
	assert.ElementsMatch(t, []string{"1.1.1.1", "2.2.2.2", "4.4.4.4"}, ips(t, repo))

	got, err := repo.GetServer("2.2.2.2", 8303)
	require.NoError(t, err)
	assert.Equal(t, "alive 2.2.2.2", got.ServerName)
}

func TestCheckAllByMaster(t *testing.T) {
	repo := seed(t)

	cfg := &config.Config{Storage: config.Storage{CheckAll: "b"}}
	require.True(t, run(cfg, repo, answers("3.3.3.3")))
	assert.ElementsMatch(t, []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"}, ips(t, repo))
}

func TestPruneKeepsAnsweredWithoutName(t *testing.T) {
	repo := seed(t)

	// sv_name may be empty on a live server
	cfg := &config.Config{Storage: config.Storage{CheckInactive: "a"}}
	query := func(string, int, config.Query) (*teeworlds.ServerInfo, error) {
		return &teeworlds.ServerInfo{Map: "Kobra 4", ClientCount: 1, Players: []teeworlds.Player{{Name: "tee"}}}, nil
	}
	require.True(t, run(cfg, repo, query))

	cfg = &config.Config{Storage: config.Storage{PruneEmpty: config.AnyMaster}}
	require.True(t, run(cfg, repo, answers()))
	assert.ElementsMatch(t, []string{"1.1.1.1", "2.2.2.2", "4.4.4.4"}, ips(t, repo))

	got, err := repo.GetServer("2.2.2.2", 8303)
	require.NoError(t, err)
	assert.True(t, got.Answered)
	assert.Empty(t, got.ServerName)
	assert.Len(t, got.Players, 1)
}

func TestCheckNothingFound(t *testing.T) {
	repo := seed(t)

	called := false
	query := func(string, int, config.Query) (*teeworlds.ServerInfo, error) {
		called = true
		return nil, errors.New("unexpected")
	}

	cfg := &config.Config{Storage: config.Storage{CheckAll: "nowhere"}}
	assert.True(t, run(cfg, repo, query))
	assert.False(t, called)
}
