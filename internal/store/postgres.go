package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/teris-io/shortid"

	"github.com/wishpop/wishpop/internal/types"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// PgStore is the Postgres-backed Store. Writes go to the database
// first; snapshot fan-out to subscribers happens after the commit, so
// later snapshots always reflect all earlier committed writes.
type PgStore struct {
	conn *sql.DB
	log  *log.Logger

	msgNotifier  *notifier[[]types.Message]
	roomNotifier *notifier[*types.Room]
}

// NewPgStore opens the database, runs any pending migrations and
// returns a ready store.
func NewPgStore(dsn string, logger *log.Logger) (*PgStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &PgStore{
		conn:         db,
		log:          logger,
		msgNotifier:  newNotifier[[]types.Message](),
		roomNotifier: newNotifier[*types.Room](),
	}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *PgStore) CreateRoom(themeId string) (types.Room, error) {
	code, err := shortid.Generate()
	if err != nil {
		return types.Room{}, fmt.Errorf("generate room code: %w", err)
	}
	return s.EnsureRoom(code, themeId)
}

func (s *PgStore) GetRoom(code string) (types.Room, error) {
	row := s.conn.QueryRow(
		"SELECT id, theme_id, created_at FROM rooms WHERE id = $1",
		code,
	)

	var room types.Room
	err := row.Scan(&room.Id, &room.ThemeId, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Room{}, ErrNotFound
	}
	return room, err
}

func (s *PgStore) EnsureRoom(code, themeId string) (types.Room, error) {
	// Merge semantics: an existing row keeps its theme.
	row := s.conn.QueryRow(
		"INSERT INTO rooms (id, theme_id, created_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (id) DO UPDATE SET id = rooms.id "+
			"RETURNING id, theme_id, created_at",
		code,
		themeId,
		time.Now().UTC(),
	)

	var room types.Room
	if err := row.Scan(&room.Id, &room.ThemeId, &room.CreatedAt); err != nil {
		return types.Room{}, err
	}

	s.publishRoom(code)
	return room, nil
}

func (s *PgStore) SetTheme(code, themeId string) error {
	res, err := s.conn.Exec(
		"UPDATE rooms SET theme_id = $2 WHERE id = $1",
		code,
		themeId,
	)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	s.publishRoom(code)
	return nil
}

func (s *PgStore) CreateMessage(roomCode, text string) (types.Message, error) {
	msg := types.Message{
		Id:       uuid.NewString(),
		RoomCode: roomCode,
		Text:     text,
	}

	row := s.conn.QueryRow(
		"INSERT INTO messages (id, room_code, text, popped, created_at) "+
			"VALUES ($1, $2, $3, FALSE, $4) RETURNING created_at",
		msg.Id,
		msg.RoomCode,
		msg.Text,
		time.Now().UTC(),
	)

	var createdAt time.Time
	if err := row.Scan(&createdAt); err != nil {
		return types.Message{}, err
	}
	msg.CreatedAt = &createdAt

	s.publishMessages(roomCode)
	return msg, nil
}

func (s *PgStore) PopMessage(id string) error {
	row := s.conn.QueryRow(
		"UPDATE messages SET popped = TRUE WHERE id = $1 RETURNING room_code",
		id,
	)

	var roomCode string
	err := row.Scan(&roomCode)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	s.publishMessages(roomCode)
	return nil
}

func (s *PgStore) Messages(roomCode string) ([]types.Message, error) {
	rows, err := s.conn.Query(
		"SELECT id, room_code, text, popped, created_at FROM messages "+
			"WHERE room_code = $1 ORDER BY created_at, id",
		roomCode,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []types.Message
	for rows.Next() {
		var m types.Message
		var createdAt time.Time
		if err := rows.Scan(&m.Id, &m.RoomCode, &m.Text, &m.Popped, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = &createdAt
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

func (s *PgStore) SubscribeMessages(roomCode string) *Subscription[[]types.Message] {
	sub := s.msgNotifier.subscribe(roomCode)

	// Deliver the initial snapshot without blocking the caller. A
	// failed read is logged and the slice stays loading; the next
	// committed write publishes a fresh snapshot.
	go func() {
		msgs, err := s.Messages(roomCode)
		if err != nil {
			s.log.Printf("initial message snapshot for %q: %v", roomCode, err)
			return
		}
		s.msgNotifier.deliver(roomCode, sub, msgs)
	}()

	return sub
}

func (s *PgStore) SubscribeRoom(code string) *Subscription[*types.Room] {
	sub := s.roomNotifier.subscribe(code)

	go func() {
		record, err := s.roomRecord(code)
		if err != nil {
			s.log.Printf("initial room snapshot for %q: %v", code, err)
			return
		}
		s.roomNotifier.deliver(code, sub, record)
	}()

	return sub
}

func (s *PgStore) roomRecord(code string) (*types.Room, error) {
	room, err := s.GetRoom(code)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *PgStore) publishMessages(roomCode string) {
	msgs, err := s.Messages(roomCode)
	if err != nil {
		s.log.Printf("message snapshot for %q: %v", roomCode, err)
		return
	}
	s.msgNotifier.publish(roomCode, msgs)
}

func (s *PgStore) publishRoom(code string) {
	record, err := s.roomRecord(code)
	if err != nil {
		s.log.Printf("room snapshot for %q: %v", code, err)
		return
	}
	s.roomNotifier.publish(code, record)
}

func (s *PgStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
