// Package storage handles database connections, schema migrations, and data operations using SQLite.
package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/woozymasta/teestat/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

const serverColumns = `
	ip, port, master, country_code, version,
	server_name, map_name, game_type, password, extended, map_crc, map_size,
	players, max_players, clients, max_clients,
	count, first_seen, last_seen, answered`

// New initializes a new SQLite connection, sets connection pool parameters, and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// UpsertServer inserts a server or updates the existing (ip, port) row.
// Info columns and the roster are only replaced when s answered,
// so a silent probe keeps the last known state.
func (r *Repository) UpsertServer(s models.Server) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
	INSERT INTO servers (`+serverColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
	ON CONFLICT(ip, port) DO UPDATE SET
		count = count + 1,
		last_seen = excluded.last_seen,
		master = CASE WHEN excluded.master != '' THEN excluded.master ELSE servers.master END,
		country_code = CASE WHEN excluded.country_code != '' THEN excluded.country_code ELSE servers.country_code END,

		-- Info fields only from an answered probe
		version      = CASE WHEN excluded.answered THEN excluded.version ELSE servers.version END,
		server_name  = CASE WHEN excluded.answered THEN excluded.server_name ELSE servers.server_name END,
		map_name     = CASE WHEN excluded.answered THEN excluded.map_name ELSE servers.map_name END,
		game_type    = CASE WHEN excluded.answered THEN excluded.game_type ELSE servers.game_type END,
		password     = CASE WHEN excluded.answered THEN excluded.password ELSE servers.password END,
		extended     = CASE WHEN excluded.answered THEN excluded.extended ELSE servers.extended END,
		map_crc      = CASE WHEN excluded.answered THEN excluded.map_crc ELSE servers.map_crc END,
		map_size     = CASE WHEN excluded.answered THEN excluded.map_size ELSE servers.map_size END,
		players      = CASE WHEN excluded.answered THEN excluded.players ELSE servers.players END,
		max_players  = CASE WHEN excluded.answered THEN excluded.max_players ELSE servers.max_players END,
		clients      = CASE WHEN excluded.answered THEN excluded.clients ELSE servers.clients END,
		max_clients  = CASE WHEN excluded.answered THEN excluded.max_clients ELSE servers.max_clients END,
		answered     = MAX(servers.answered, excluded.answered);
	`,
		s.IP, s.Port, s.Master, s.CountryCode, s.Version,
		s.ServerName, s.MapName, s.GameType, s.Password, s.Extended, nullInt(s.MapCRC), nullInt(s.MapSize),
		s.NumPlayers, s.MaxPlayers, s.NumClients, s.MaxClients,
		s.FirstSeen, s.LastSeen, s.Answered,
	)
	if err != nil {
		return err
	}

	if s.Online() {
		if _, err := tx.Exec(`DELETE FROM players WHERE ip = ? AND port = ?`, s.IP, s.Port); err != nil {
			return err
		}
		for i, p := range s.Players {
			if _, err := tx.Exec(`
				INSERT INTO players (ip, port, position, name, clan, country, score, spectator)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				s.IP, s.Port, i, p.Name, p.Clan, p.Country, p.Score, p.Spectator,
			); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// GetServers retrieves all servers without rosters, sorted by last seen descending.
func (r *Repository) GetServers() ([]models.Server, error) {
	return r.queryServers(`SELECT `+serverColumns+` FROM servers ORDER BY last_seen DESC`)
}

// GetServer retrieves a server with its roster. It returns nil if the server is unknown.
func (r *Repository) GetServer(ip string, port int) (*models.Server, error) {
	row := r.db.QueryRow(`SELECT `+serverColumns+` FROM servers WHERE ip = ? AND port = ?`, ip, port)

	s, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(`
		SELECT name, clan, country, score, spectator
		FROM players
		WHERE ip = ? AND port = ?
		ORDER BY position`, ip, port)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.Name, &p.Clan, &p.Country, &p.Score, &p.Spectator); err != nil {
			return nil, err
		}
		s.Players = append(s.Players, p)
	}

	return &s, rows.Err()
}

// DeleteServer removes a server and its roster.
func (r *Repository) DeleteServer(ip string, port int) error {
	if _, err := r.db.Exec(`DELETE FROM players WHERE ip = ? AND port = ?`, ip, port); err != nil {
		return err
	}
	_, err := r.db.Exec(`DELETE FROM servers WHERE ip = ? AND port = ?`, ip, port)
	return err
}

// DeleteEmptyServers removes servers that never answered an info query.
// If master is not empty, deletion is restricted to servers discovered through it.
func (r *Repository) DeleteEmptyServers(master string) (int64, error) {
	query := `DELETE FROM servers WHERE answered = 0`
	var args []any

	if master != "" {
		query += ` AND master = ?`
		args = append(args, master)
	}

	res, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetServersSubset retrieves servers for maintenance.
// If onlyEmpty is true, only servers that never answered are returned.
func (r *Repository) GetServersSubset(master string, onlyEmpty bool) ([]models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE 1=1`
	var args []any

	if master != "" {
		query += " AND master = ?"
		args = append(args, master)
	}

	if onlyEmpty {
		query += " AND answered = 0"
	}

	return r.queryServers(query, args...)
}

func (r *Repository) queryServers(query string, args ...any) ([]models.Server, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var servers []models.Server
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			continue
		}
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return servers, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanServer(row scanner) (models.Server, error) {
	var (
		s            models.Server
		crc, mapSize sql.NullInt64
	)

	err := row.Scan(
		&s.IP, &s.Port, &s.Master, &s.CountryCode, &s.Version,
		&s.ServerName, &s.MapName, &s.GameType, &s.Password, &s.Extended, &crc, &mapSize,
		&s.NumPlayers, &s.MaxPlayers, &s.NumClients, &s.MaxClients,
		&s.Count, &s.FirstSeen, &s.LastSeen, &s.Answered,
	)
	if err != nil {
		return s, err
	}

	s.MapCRC = intPtr(crc)
	s.MapSize = intPtr(mapSize)

	return s, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
