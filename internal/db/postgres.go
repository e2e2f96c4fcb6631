package db

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tftstats/internal/storage"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS matches (
		match_id      TEXT PRIMARY KEY,
		game_datetime TIMESTAMPTZ NOT NULL,
		game_length   DOUBLE PRECISION NOT NULL,
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
		time_eliminated         DOUBLE PRECISION NOT NULL,
		total_damage_to_players INTEGER NOT NULL,
		units                   JSONB NOT NULL,
		traits                  JSONB NOT NULL,
		companion               JSONB NOT NULL,
		PRIMARY KEY (match_id, placement)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_set ON matches (set_number, game_datetime)`,
}

// PostgresStore keeps records in Postgres through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings and creates the schema.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "create schema")
		}
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveRecords upserts records one match per transaction and returns how
// many records were written.
func (s *PostgresStore) SaveRecords(ctx context.Context, records []storage.PlayerRecord) (int, error) {
	saved := 0
	for _, group := range groupByMatch(records) {
		if err := s.saveMatch(ctx, group); err != nil {
			return saved, err
		}
		saved += len(group)
	}
	return saved, nil
}

func (s *PostgresStore) saveMatch(ctx context.Context, group []storage.PlayerRecord) error {
	first := group[0]
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO matches (match_id, game_datetime, game_length, game_version, set_number, queue_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (match_id) DO NOTHING
	`, first.MatchID, first.GameDatetime.Time, first.GameLength, first.GameVersion, first.SetNumber, first.QueueID)

	for _, r := range group {
		board, err := encodeBoard(r)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO player_records (
				match_id, placement, puuid, player_name, level, last_round, players_eliminated,
				gold_left, time_eliminated, total_damage_to_players, units, traits, companion
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (match_id, placement) DO UPDATE SET
				puuid = EXCLUDED.puuid,
				player_name = EXCLUDED.player_name,
				level = EXCLUDED.level,
				last_round = EXCLUDED.last_round,
				players_eliminated = EXCLUDED.players_eliminated,
				gold_left = EXCLUDED.gold_left,
				time_eliminated = EXCLUDED.time_eliminated,
				total_damage_to_players = EXCLUDED.total_damage_to_players,
				units = EXCLUDED.units,
				traits = EXCLUDED.traits,
				companion = EXCLUDED.companion
		`, r.MatchID, r.Placement, r.PUUID, r.PlayerName, r.Level, r.LastRound, r.PlayersEliminated,
			r.GoldLeft, r.TimeEliminated, r.TotalDamageToPlayers,
			string(board.units), string(board.traits), string(board.companion))
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	return errors.Wrapf(err, "save match %s", first.MatchID)
}

// MatchExists checks if a match already exists in the database
func (s *PostgresStore) MatchExists(ctx context.Context, matchID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM matches WHERE match_id = $1)
	`, matchID).Scan(&exists)
	return exists, err
}

// Counts returns the number of stored matches and player records.
func (s *PostgresStore) Counts(ctx context.Context) (matches, records int, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM matches), (SELECT COUNT(*) FROM player_records)
	`).Scan(&matches, &records)
	return matches, records, err
}

// Records returns stored records, optionally limited to one set (0 = all),
// ordered by match start then placement.
func (s *PostgresStore) Records(ctx context.Context, setNumber int) ([]storage.PlayerRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.match_id, m.game_datetime, m.game_length, m.game_version, m.set_number, m.queue_id,
		       p.placement, p.puuid, p.player_name, p.level, p.last_round, p.players_eliminated,
		       p.gold_left, p.time_eliminated, p.total_damage_to_players,
		       p.units::text, p.traits::text, p.companion::text
		FROM player_records p
		JOIN matches m ON m.match_id = p.match_id
		WHERE $1 = 0 OR m.set_number = $1
		ORDER BY m.game_datetime, m.match_id, p.placement
	`, setNumber)
	if err != nil {
		return nil, errors.Wrap(err, "query records")
	}
	defer rows.Close()

	var records []storage.PlayerRecord
	for rows.Next() {
		var (
			r      storage.PlayerRecord
			played time.Time
			board  boardColumns
		)
		if err := rows.Scan(&r.MatchID, &played, &r.GameLength, &r.GameVersion, &r.SetNumber, &r.QueueID,
			&r.Placement, &r.PUUID, &r.PlayerName, &r.Level, &r.LastRound, &r.PlayersEliminated,
			&r.GoldLeft, &r.TimeEliminated, &r.TotalDamageToPlayers,
			&board.units, &board.traits, &board.companion); err != nil {
			return nil, errors.Wrap(err, "scan record")
		}
		r.GameDatetime = storage.GameTime{Time: played.UTC()}
		if err := decodeBoard(&r, board); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, errors.Wrap(rows.Err(), "iterate records")
}
