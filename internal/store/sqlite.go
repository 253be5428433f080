package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS places (
	id          TEXT PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	address     TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	latitude    REAL NOT NULL,
	longitude   REAL NOT NULL,
	source_url  TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS lists (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	name         TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	monetize     INTEGER NOT NULL DEFAULT 0,
	price        REAL NOT NULL DEFAULT 0,
	center_lat   REAL NOT NULL,
	center_lng   REAL NOT NULL,
	place_count  INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS list_places (
	list_id  TEXT NOT NULL REFERENCES lists(id),
	place_id TEXT NOT NULL REFERENCES places(id),
	position INTEGER NOT NULL,
	note     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (list_id, position)
);

CREATE INDEX IF NOT EXISTS idx_lists_user_id ON lists(user_id);
CREATE INDEX IF NOT EXISTS idx_list_places_place_id ON list_places(place_id);
`

// Migrate implements Store.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindOrCreatePlace implements Store.
func (s *SQLiteStore) FindOrCreatePlace(ctx context.Context, p PlaceInput) (*Place, bool, error) {
	if err := validatePlace(p); err != nil {
		return nil, false, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO places (id, external_id, name, address, category, latitude, longitude, source_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(external_id) DO NOTHING`,
		uuid.New().String(), p.ExternalID, p.Name, p.Address, p.Category, p.Latitude, p.Longitude, p.SourceURL, time.Now().UTC(),
	)
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: insert place %s", p.ExternalID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: rows affected")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, external_id, name, address, category, latitude, longitude, source_url, created_at
		 FROM places WHERE external_id = ?`, p.ExternalID)
	place, err := scanPlace(row)
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: get place %s", p.ExternalID)
	}
	return place, n == 1, nil
}

// CreateListWithPlaces implements Store.
func (s *SQLiteStore) CreateListWithPlaces(ctx context.Context, l ListInput, links []ListPlace) (*List, error) {
	list := newList(l)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO lists (id, user_id, name, display_name, monetize, price, center_lat, center_lng, place_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		list.ID, list.UserID, list.Name, list.DisplayName, list.Monetize, list.Price,
		list.CenterLat, list.CenterLng, list.PlaceCount, list.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert list %q", l.Name)
	}

	if len(links) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO list_places (list_id, place_id, position, note) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: prepare link insert")
		}
		defer stmt.Close() //nolint:errcheck

		for _, link := range links {
			if _, err := stmt.ExecContext(ctx, list.ID, link.PlaceID, link.Position, link.Note); err != nil {
				return nil, eris.Wrapf(err, "sqlite: link place %s at %d", link.PlaceID, link.Position)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: commit list %q", l.Name)
	}
	return list, nil
}

// GetList implements Store.
func (s *SQLiteStore) GetList(ctx context.Context, id string) (*List, error) {
	var l List
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, display_name, monetize, price, center_lat, center_lng, place_count, created_at
		 FROM lists WHERE id = ?`, id,
	).Scan(&l.ID, &l.UserID, &l.Name, &l.DisplayName, &l.Monetize, &l.Price, &l.CenterLat, &l.CenterLng, &l.PlaceCount, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: list %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get list %s", id)
	}
	return &l, nil
}

// ListsByUser implements Store.
func (s *SQLiteStore) ListsByUser(ctx context.Context, userID string) ([]List, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, display_name, monetize, price, center_lat, center_lng, place_count, created_at
		 FROM lists WHERE user_id = ? ORDER BY created_at, rowid`, userID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query lists for %s", userID)
	}
	defer rows.Close() //nolint:errcheck

	var lists []List
	for rows.Next() {
		var l List
		if err := rows.Scan(&l.ID, &l.UserID, &l.Name, &l.DisplayName, &l.Monetize, &l.Price, &l.CenterLat, &l.CenterLng, &l.PlaceCount, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan list")
		}
		lists = append(lists, l)
	}
	return lists, eris.Wrap(rows.Err(), "sqlite: iterate lists")
}

// GetListPlaces implements Store.
func (s *SQLiteStore) GetListPlaces(ctx context.Context, listID string) ([]ListPlace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT place_id, position, note FROM list_places WHERE list_id = ? ORDER BY position`, listID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query links %s", listID)
	}
	defer rows.Close() //nolint:errcheck

	var links []ListPlace
	for rows.Next() {
		var lp ListPlace
		if err := rows.Scan(&lp.PlaceID, &lp.Position, &lp.Note); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan link")
		}
		links = append(links, lp)
	}
	return links, eris.Wrap(rows.Err(), "sqlite: iterate links")
}

// CountPlaces implements Store.
func (s *SQLiteStore) CountPlaces(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM places`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count places")
	}
	return n, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPlace(row scannable) (*Place, error) {
	var p Place
	if err := row.Scan(&p.ID, &p.ExternalID, &p.Name, &p.Address, &p.Category, &p.Latitude, &p.Longitude, &p.SourceURL, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
