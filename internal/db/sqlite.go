package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"tftstats/internal/storage"
)

var sqliteSchema = []string{
	`PRAGMA foreign_keys = ON`,
	`PRAGMA journal_mode = WAL`,
	`CREATE TABLE IF NOT EXISTS matches (
		match_id      TEXT PRIMARY KEY,
		game_datetime TEXT NOT NULL,
		game_length   REAL NOT NULL,
		game_version  TEXT NOT NULL,
		set_number    INTEGER NOT NULL,
		queue_id      INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS player_records (
		match_id                TEXT NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
		placement               INTEGER NOT NULL,
		puuid                   TEXT NOT NULL DEFAULT '',
		player_name             TEXT NOT NULL DEFAULT '',
		level                   INTEGER NOT NULL,
		last_round              INTEGER NOT NULL,
		players_eliminated      INTEGER NOT NULL,
		gold_left               INTEGER NOT NULL,
		time_eliminated         REAL NOT NULL,
		total_damage_to_players INTEGER NOT NULL,
		units                   TEXT NOT NULL,
		traits                  TEXT NOT NULL,
		companion               TEXT NOT NULL,
		PRIMARY KEY (match_id, placement)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_set ON matches (set_number, game_datetime)`,
}

// SQLiteStore keeps records in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	// one writer; pragmas are per connection
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "create schema")
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRecords upserts all records in one transaction and returns how many
// were written.
func (s *SQLiteStore) SaveRecords(ctx context.Context, records []storage.PlayerRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	stmtMatch, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO matches (match_id, game_datetime, game_length, game_version, set_number, queue_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, errors.Wrap(err, "prepare match insert")
	}
	defer stmtMatch.Close()

	stmtRecord, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO player_records (
			match_id, placement, puuid, player_name, level, last_round, players_eliminated,
			gold_left, time_eliminated, total_damage_to_players, units, traits, companion
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, errors.Wrap(err, "prepare record insert")
	}
	defer stmtRecord.Close()

	for _, r := range records {
		if _, err := stmtMatch.ExecContext(ctx, r.MatchID, r.GameDatetime.String(), r.GameLength,
			r.GameVersion, r.SetNumber, r.QueueID); err != nil {
			return 0, errors.Wrapf(err, "insert match %s", r.MatchID)
		}
		board, err := encodeBoard(r)
		if err != nil {
			return 0, err
		}
		if _, err := stmtRecord.ExecContext(ctx, r.MatchID, r.Placement, r.PUUID, r.PlayerName, r.Level,
			r.LastRound, r.PlayersEliminated, r.GoldLeft, r.TimeEliminated, r.TotalDamageToPlayers,
			string(board.units), string(board.traits), string(board.companion)); err != nil {
			return 0, errors.Wrapf(err, "insert record %s/%d", r.MatchID, r.Placement)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit")
	}
	return len(records), nil
}

func (s *SQLiteStore) MatchExists(ctx context.Context, matchID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM matches WHERE match_id = ?)`, matchID).Scan(&exists)
	return exists, err
}

func (s *SQLiteStore) Counts(ctx context.Context) (matches, records int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM matches), (SELECT COUNT(*) FROM player_records)`).Scan(&matches, &records)
	return matches, records, err
}

// Records returns stored records, optionally limited to one set (0 = all),
// ordered by match start then placement.
func (s *SQLiteStore) Records(ctx context.Context, setNumber int) ([]storage.PlayerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.match_id, m.game_datetime, m.game_length, m.game_version, m.set_number, m.queue_id,
		       p.placement, p.puuid, p.player_name, p.level, p.last_round, p.players_eliminated,
		       p.gold_left, p.time_eliminated, p.total_damage_to_players,
		       p.units, p.traits, p.companion
		FROM player_records p
		JOIN matches m ON m.match_id = p.match_id
		WHERE ? = 0 OR m.set_number = ?
		ORDER BY m.game_datetime, m.match_id, p.placement
	`, setNumber, setNumber)
	if err != nil {
		return nil, errors.Wrap(err, "query records")
	}
	defer rows.Close()

	var records []storage.PlayerRecord
	for rows.Next() {
		var (
			r                        storage.PlayerRecord
			played                   string
			units, traits, companion string
		)
		if err := rows.Scan(&r.MatchID, &played, &r.GameLength, &r.GameVersion, &r.SetNumber, &r.QueueID,
			&r.Placement, &r.PUUID, &r.PlayerName, &r.Level, &r.LastRound, &r.PlayersEliminated,
			&r.GoldLeft, &r.TimeEliminated, &r.TotalDamageToPlayers,
			&units, &traits, &companion); err != nil {
			return nil, errors.Wrap(err, "scan record")
		}
		t, err := time.Parse(time.RFC3339Nano, played)
		if err != nil {
			return nil, errors.Wrapf(err, "parse game_datetime of %s", r.MatchID)
		}
		r.GameDatetime = storage.GameTime{Time: t.UTC()}
		if err := decodeBoard(&r, boardColumns{units: []byte(units), traits: []byte(traits), companion: []byte(companion)}); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, errors.Wrap(rows.Err(), "iterate records")
}
