package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"github.com/zlnvch/pixelverse/models"
	"github.com/zlnvch/pixelverse/store"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS pixels (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pixel_history (
		event_id TEXT PRIMARY KEY,
		key      TEXT NOT NULL,
		value    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS pixel_history_key ON pixel_history (key, event_id)`,
}

// SQLCanvasStore keeps the flat key/value layout in a two-column table.
type SQLCanvasStore struct {
	db     *sql.DB
	driver string
}

func NewSQLCanvasStore(ctx context.Context, driver string, dsn string) (*SQLCanvasStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, eris.Errorf("unsupported sql driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s database", driver)
	}
	if driver == DriverSQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}

	sqlStore := &SQLCanvasStore{db: db, driver: driver}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, eris.Wrap(err, "failed to create schema")
		}
	}
	return sqlStore, nil
}

func (sqlStore *SQLCanvasStore) Close() error {
	return sqlStore.db.Close()
}

// rebind rewrites ? placeholders into $n for postgres.
func (sqlStore *SQLCanvasStore) rebind(query string) string {
	if sqlStore.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (sqlStore *SQLCanvasStore) Ping(ctx context.Context) error {
	return sqlStore.db.PingContext(ctx)
}

func (sqlStore *SQLCanvasStore) Get(ctx context.Context, x int, y int) (models.PixelRecord, error) {
	key := store.CoordKey(x, y)
	var value string
	err := sqlStore.db.QueryRowContext(ctx, sqlStore.rebind(`SELECT value FROM pixels WHERE key = ?`), key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.PixelRecord{}, store.ErrPixelNotFound
		}
		return models.PixelRecord{}, eris.Wrap(err, "select pixel failed")
	}
	return store.DecodeRecord(key, []byte(value))
}

func (sqlStore *SQLCanvasStore) Set(ctx context.Context, record models.PixelRecord) error {
	value, err := store.EncodeRecord(record)
	if err != nil {
		return err
	}
	_, err = sqlStore.db.ExecContext(ctx, sqlStore.rebind(
		`INSERT INTO pixels (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`),
		store.CoordKey(record.X, record.Y), string(value),
	)
	if err != nil {
		return eris.Wrap(err, "upsert pixel failed")
	}
	return nil
}

func (sqlStore *SQLCanvasStore) EnumerateAll(ctx context.Context) ([]models.PixelRecord, error) {
	rows, err := sqlStore.db.QueryContext(ctx, `SELECT key, value FROM pixels`)
	if err != nil {
		return nil, eris.Wrap(err, "select pixels failed")
	}
	defer rows.Close()

	records := []models.PixelRecord{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			log.Warn().Err(err).Msg("Skipping unreadable pixel row")
			continue
		}
		record, err := store.DecodeRecord(key, []byte(value))
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Skipping undecodable pixel")
			continue
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "iterating pixels failed")
	}
	return records, nil
}

func (sqlStore *SQLCanvasStore) Delete(ctx context.Context, x int, y int) error {
	_, err := sqlStore.db.ExecContext(ctx, sqlStore.rebind(`DELETE FROM pixels WHERE key = ?`), store.CoordKey(x, y))
	if err != nil {
		return eris.Wrap(err, "delete pixel failed")
	}
	return nil
}

func (sqlStore *SQLCanvasStore) AppendHistory(ctx context.Context, entries []models.HistoryEntry) ([]models.HistoryEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	tx, err := sqlStore.db.BeginTx(ctx, nil)
	if err != nil {
		return entries, eris.Wrap(err, "begin history tx failed")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqlStore.rebind(
		`INSERT INTO pixel_history (event_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (event_id) DO NOTHING`))
	if err != nil {
		return entries, eris.Wrap(err, "prepare history insert failed")
	}
	defer stmt.Close()

	for _, entry := range entries {
		value, err := store.EncodeRecord(entry.Pixel)
		if err != nil {
			return entries, err
		}
		if _, err := stmt.ExecContext(ctx, entry.EventId, store.CoordKey(entry.Pixel.X, entry.Pixel.Y), string(value)); err != nil {
			return entries, eris.Wrap(err, "insert history failed")
		}
	}

	if err := tx.Commit(); err != nil {
		return entries, eris.Wrap(err, "commit history failed")
	}
	return nil, nil
}

func (sqlStore *SQLCanvasStore) GetHistory(ctx context.Context, x int, y int, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	key := store.CoordKey(x, y)

	rows, err := sqlStore.db.QueryContext(ctx, sqlStore.rebind(
		`SELECT event_id, value FROM pixel_history WHERE key = ? ORDER BY event_id DESC LIMIT ?`),
		key, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "select history failed")
	}
	defer rows.Close()

	entries := []models.HistoryEntry{}
	for rows.Next() {
		var eventId, value string
		if err := rows.Scan(&eventId, &value); err != nil {
			continue
		}
		pixel, err := store.DecodeRecord(key, []byte(value))
		if err != nil {
			continue
		}
		entries = append(entries, models.HistoryEntry{EventId: eventId, Pixel: pixel})
	}
	return entries, rows.Err()
}
