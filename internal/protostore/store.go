package protostore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/MJE43/gameproto-dashboard/internal/dashboard"
)

var (
	// ErrNotFound is returned when a prototype id does not exist.
	ErrNotFound = errors.New("protostore: prototype not found")
	// ErrConflict is returned when creating a prototype whose id is taken.
	ErrConflict = errors.New("protostore: prototype already exists")
)

// --------- Store ---------

type Store struct {
	db *sql.DB
}

// New opens/creates a SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// --------- Migrations ---------

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS game_prototypes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			game_id TEXT NOT NULL DEFAULT '',
			player_id TEXT NOT NULL DEFAULT '',
			score INTEGER NOT NULL DEFAULT 0,
			lives INTEGER NOT NULL DEFAULT 0,
			level INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_game_prototypes_updated ON game_prototypes(updated_at DESC);`,

		`CREATE TABLE IF NOT EXISTS game_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			prototype_id TEXT NOT NULL,
			type TEXT NOT NULL,
			score INTEGER,
			lives INTEGER,
			level INTEGER,
			emitted_at TIMESTAMP NOT NULL,
			FOREIGN KEY(prototype_id) REFERENCES game_prototypes(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_game_events_prototype ON game_events(prototype_id, id);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// --------- Prototypes ---------

const prototypeColumns = `id, name, description, game_id, player_id, score, lives, level, created_at, updated_at`

// CreatePrototype inserts p. An empty id is replaced with a fresh UUID and
// zero timestamps are set to now.
func (s *Store) CreatePrototype(ctx context.Context, p dashboard.GamePrototype) (dashboard.GamePrototype, error) {
	now := time.Now().UTC()
	if strings.TrimSpace(p.ID) == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO game_prototypes(`+prototypeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.GameID, p.PlayerID,
		p.GameplayState.Score, p.GameplayState.Lives, p.GameplayState.Level,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isConstraintErr(err) {
			return dashboard.GamePrototype{}, ErrConflict
		}
		return dashboard.GamePrototype{}, err
	}
	return p, nil
}

// GetPrototype returns the prototype with the given id.
func (s *Store) GetPrototype(ctx context.Context, id string) (dashboard.GamePrototype, error) {
	return getPrototype(ctx, s.db, id)
}

// ListPrototypes returns prototypes ordered by updated_at desc.
func (s *Store) ListPrototypes(ctx context.Context, limit, offset int) ([]dashboard.GamePrototype, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prototypeColumns+`
		FROM game_prototypes
		ORDER BY updated_at DESC, id ASC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []dashboard.GamePrototype{}
	for rows.Next() {
		p, err := scanPrototype(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePrototype applies the non-nil fields of u and bumps updated_at
// (unless u sets it explicitly). The id itself is never changed.
func (s *Store) UpdatePrototype(ctx context.Context, id string, u dashboard.PrototypeUpdate) (dashboard.GamePrototype, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dashboard.GamePrototype{}, err
	}
	defer tx.Rollback()

	p, err := getPrototype(ctx, tx, id)
	if err != nil {
		return dashboard.GamePrototype{}, err
	}

	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.GameID != nil {
		p.GameID = *u.GameID
	}
	if u.PlayerID != nil {
		p.PlayerID = *u.PlayerID
	}
	if u.GameplayState != nil {
		p.GameplayState = *u.GameplayState
	}
	if u.CreatedAt != nil {
		p.CreatedAt = u.CreatedAt.UTC()
	}
	if u.UpdatedAt != nil {
		p.UpdatedAt = u.UpdatedAt.UTC()
	} else {
		p.UpdatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE game_prototypes
		SET name=?, description=?, game_id=?, player_id=?, score=?, lives=?, level=?, created_at=?, updated_at=?
		WHERE id=?`,
		p.Name, p.Description, p.GameID, p.PlayerID,
		p.GameplayState.Score, p.GameplayState.Lives, p.GameplayState.Level,
		p.CreatedAt, p.UpdatedAt, p.ID)
	if err != nil {
		return dashboard.GamePrototype{}, err
	}
	if err := tx.Commit(); err != nil {
		return dashboard.GamePrototype{}, err
	}
	return p, nil
}

// --------- Events ---------

// counterColumn maps an event type to the gameplay column it updates.
var counterColumn = map[dashboard.EventType]string{
	dashboard.EventUpdateScore: "score",
	dashboard.EventUpdateLives: "lives",
	dashboard.EventUpdateLevel: "level",
}

// AppendEvent records ev against the prototype and applies its counter to the
// prototype's gameplay state. The stored event is returned with its
// prototype id and emission time filled in.
func (s *Store) AppendEvent(ctx context.Context, prototypeID string, ev dashboard.GameEvent) (dashboard.GameEvent, error) {
	col, ok := counterColumn[ev.Type]
	if !ok {
		return dashboard.GameEvent{}, fmt.Errorf("protostore: unknown event type %q", ev.Type)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dashboard.GameEvent{}, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM game_prototypes WHERE id=?`, prototypeID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return dashboard.GameEvent{}, ErrNotFound
	}
	if err != nil {
		return dashboard.GameEvent{}, err
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO game_events(prototype_id, type, score, lives, level, emitted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		prototypeID, string(ev.Type), nullInt(ev.Data.Score), nullInt(ev.Data.Lives), nullInt(ev.Data.Level), now)
	if err != nil {
		return dashboard.GameEvent{}, err
	}

	if v, ok := ev.Value(); ok {
		if _, err := tx.ExecContext(ctx,
			`UPDATE game_prototypes SET `+col+`=?, updated_at=? WHERE id=?`, v, now, prototypeID); err != nil {
			return dashboard.GameEvent{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return dashboard.GameEvent{}, err
	}

	ev.GamePrototypeID = prototypeID
	ev.EmittedAt = &now
	return ev, nil
}

// RecentEvents returns the latest events across all prototypes, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]dashboard.GameEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT prototype_id, type, score, lives, level, emitted_at
		FROM game_events
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []dashboard.GameEvent{}
	for rows.Next() {
		var (
			ev                  dashboard.GameEvent
			typ                 string
			score, lives, level sql.NullInt64
			emitted             time.Time
		)
		if err := rows.Scan(&ev.GamePrototypeID, &typ, &score, &lives, &level, &emitted); err != nil {
			return nil, err
		}
		ev.Type = dashboard.EventType(typ)
		ev.Data = dashboard.EventData{Score: intPtr(score), Lives: intPtr(lives), Level: intPtr(level)}
		ev.EmittedAt = &emitted
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Dashboard assembles the snapshot served at GET /dashboard.
func (s *Store) Dashboard(ctx context.Context, prototypeLimit, eventLimit int) (dashboard.DashboardData, error) {
	protos, err := s.ListPrototypes(ctx, prototypeLimit, 0)
	if err != nil {
		return dashboard.DashboardData{}, err
	}
	events, err := s.RecentEvents(ctx, eventLimit)
	if err != nil {
		return dashboard.DashboardData{}, err
	}
	return dashboard.DashboardData{GamePrototypes: protos, GameEvents: events}, nil
}

// --------- helpers ---------

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getPrototype(ctx context.Context, q queryer, id string) (dashboard.GamePrototype, error) {
	row := q.QueryRowContext(ctx, `SELECT `+prototypeColumns+` FROM game_prototypes WHERE id=?`, id)
	p, err := scanPrototype(row)
	if errors.Is(err, sql.ErrNoRows) {
		return dashboard.GamePrototype{}, ErrNotFound
	}
	return p, err
}

func scanPrototype(r rowScanner) (dashboard.GamePrototype, error) {
	var p dashboard.GamePrototype
	err := r.Scan(&p.ID, &p.Name, &p.Description, &p.GameID, &p.PlayerID,
		&p.GameplayState.Score, &p.GameplayState.Lives, &p.GameplayState.Level,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
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
	i := int(v.Int64)
	return &i
}

func isConstraintErr(err error) bool {
	// modernc sqlite returns errors with messages containing "constraint failed"
	// or "UNIQUE constraint failed". Use substring match.
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "unique constraint")
}
