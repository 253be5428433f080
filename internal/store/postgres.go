package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/places-import/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	insertPlaceSQL = `INSERT INTO places (id, external_id, name, address, category, latitude, longitude, source_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id, created_at`
	getPlaceByExternalIDSQL = `SELECT id, external_id, name, address, category, latitude, longitude, source_url, created_at FROM places WHERE external_id = $1`
	insertListSQL           = `INSERT INTO lists (id, user_id, name, display_name, monetize, price, center_lat, center_lng, place_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	getListSQL = `SELECT id, user_id, name, display_name, monetize, price, center_lat, center_lng, place_count, created_at FROM lists WHERE id = $1`
)

// preparedStatements lists queries prepared on each new connection. The
// import path runs them once per candidate.
var preparedStatements = map[string]string{
	"insert_place":              insertPlaceSQL,
	"get_place_by_external_id": getPlaceByExternalIDSQL,
	"insert_list":               insertListSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS places (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	external_id TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	address     TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	source_url  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lists (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id      TEXT NOT NULL,
	name         TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	monetize     BOOLEAN NOT NULL DEFAULT false,
	price        NUMERIC(10,2) NOT NULL DEFAULT 0,
	center_lat   DOUBLE PRECISION NOT NULL,
	center_lng   DOUBLE PRECISION NOT NULL,
	place_count  INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
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
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// FindOrCreatePlace implements Store. The insert is a no-op on conflict, in
// which case the existing row is read back.
func (s *PostgresStore) FindOrCreatePlace(ctx context.Context, p PlaceInput) (*Place, bool, error) {
	if err := validatePlace(p); err != nil {
		return nil, false, err
	}

	place := &Place{
		ExternalID: p.ExternalID,
		Name:       p.Name,
		Address:    p.Address,
		Category:   p.Category,
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		SourceURL:  p.SourceURL,
	}
	err := s.pool.QueryRow(ctx, insertPlaceSQL,
		uuid.New().String(), p.ExternalID, p.Name, p.Address, p.Category, p.Latitude, p.Longitude, p.SourceURL, time.Now().UTC(),
	).Scan(&place.ID, &place.CreatedAt)
	if err == nil {
		return place, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, eris.Wrapf(err, "postgres: insert place %s", p.ExternalID)
	}

	existing, err := scanPlace(s.pool.QueryRow(ctx, getPlaceByExternalIDSQL, p.ExternalID))
	if err != nil {
		return nil, false, eris.Wrapf(err, "postgres: get place %s", p.ExternalID)
	}
	return existing, false, nil
}

// CreateListWithPlaces implements Store. The links are written with COPY
// inside the same transaction as the list row.
func (s *PostgresStore) CreateListWithPlaces(ctx context.Context, l ListInput, links []ListPlace) (*List, error) {
	list := newList(l)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, insertListSQL,
		list.ID, list.UserID, list.Name, list.DisplayName, list.Monetize, list.Price,
		list.CenterLat, list.CenterLng, list.PlaceCount, list.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert list %q", l.Name)
	}

	rows := make([][]any, len(links))
	for i, link := range links {
		rows[i] = []any{list.ID, link.PlaceID, link.Position, link.Note}
	}
	if _, err := db.CopyFrom(ctx, tx, "list_places", []string{"list_id", "place_id", "position", "note"}, rows); err != nil {
		return nil, eris.Wrapf(err, "postgres: link places into %s", list.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrapf(err, "postgres: commit list %q", l.Name)
	}
	return list, nil
}

// GetList implements Store.
func (s *PostgresStore) GetList(ctx context.Context, id string) (*List, error) {
	var l List
	err := s.pool.QueryRow(ctx, getListSQL, id).Scan(
		&l.ID, &l.UserID, &l.Name, &l.DisplayName, &l.Monetize, &l.Price,
		&l.CenterLat, &l.CenterLng, &l.PlaceCount, &l.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get list %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get list %s", id)
	}
	return &l, nil
}

// ListsByUser implements Store.
func (s *PostgresStore) ListsByUser(ctx context.Context, userID string) ([]List, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, display_name, monetize, price, center_lat, center_lng, place_count, created_at
		 FROM lists WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query lists for %s", userID)
	}
	defer rows.Close()

	var lists []List
	for rows.Next() {
		var l List
		if err := rows.Scan(&l.ID, &l.UserID, &l.Name, &l.DisplayName, &l.Monetize, &l.Price, &l.CenterLat, &l.CenterLng, &l.PlaceCount, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan list")
		}
		lists = append(lists, l)
	}
	return lists, eris.Wrap(rows.Err(), "postgres: iterate lists")
}

// GetListPlaces implements Store.
func (s *PostgresStore) GetListPlaces(ctx context.Context, listID string) ([]ListPlace, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT place_id, position, note FROM list_places WHERE list_id = $1 ORDER BY position`, listID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query links %s", listID)
	}
	defer rows.Close()

	var links []ListPlace
	for rows.Next() {
		var lp ListPlace
		if err := rows.Scan(&lp.PlaceID, &lp.Position, &lp.Note); err != nil {
			return nil, eris.Wrap(err, "postgres: scan link")
		}
		links = append(links, lp)
	}
	return links, eris.Wrap(rows.Err(), "postgres: iterate links")
}

// CountPlaces implements Store.
func (s *PostgresStore) CountPlaces(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM places`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count places")
	}
	return n, nil
}
