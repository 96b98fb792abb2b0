// Package layerdb stores annotation layers in SQLite and reads them back
// through the layer.Reader contract.
package layerdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"fortio.org/safecast"

	"github.com/FocuswithJustin/annotransfer/core/errors"
	"github.com/FocuswithJustin/annotransfer/core/layer"
	"github.com/FocuswithJustin/annotransfer/core/sqlite"
	"github.com/FocuswithJustin/annotransfer/internal/validation"
)

// DB is an annotation store backed by one SQLite database. It is safe for
// concurrent use.
type DB struct {
	db *sql.DB
}

// LayerInfo summarizes one stored layer.
type LayerInfo struct {
	ID       string    `json:"id"`
	Segments int       `json:"segments"`
	Created  time.Time `json:"created"`
}

// Open opens or creates the store at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewIO("open", path, err)
	}

	s := &DB{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to init schema")
	}
	return s, nil
}

// Close closes the database.
func (s *DB) Close() error {
	return s.db.Close()
}

func (s *DB) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS layers (
			id TEXT PRIMARY KEY,
			created INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS segments (
			layer_id TEXT NOT NULL REFERENCES layers(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			text TEXT NOT NULL,
			metadata TEXT,
			PRIMARY KEY (layer_id, position)
		);`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Import stores records under id, replacing any layer with the same id.
// The replacement is atomic.
func (s *DB) Import(ctx context.Context, id string, records []layer.Record) error {
	if err := validation.ValidateID("id", id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteLayer(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO layers (id, created) VALUES (?, ?)`, id, time.Now().Unix()); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (layer_id, position, start_offset, end_offset, text, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range records {
		var meta sql.NullString
		if len(rec.Metadata) > 0 {
			data, err := json.Marshal(rec.Metadata)
			if err != nil {
				return errors.Wrapf(err, "encode metadata of record %d", i)
			}
			meta = sql.NullString{String: string(data), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, id, i, rec.Start, rec.End, rec.Text, meta); err != nil {
			return errors.Wrapf(err, "insert record %d", i)
		}
	}

	return tx.Commit()
}

// Reader returns a layer.Reader over the stored layer id.
func (s *DB) Reader(ctx context.Context, id string) (layer.Reader, error) {
	ok, err := s.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFound("layer", id)
	}
	return &storedLayer{db: s, id: id}, nil
}

// Delete removes a stored layer and its segments.
func (s *DB) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM layers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NewNotFound("layer", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE layer_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteLayer removes segments explicitly; ON DELETE CASCADE only fires when
// the connection has foreign keys enabled.
func deleteLayer(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE layer_id = ?`, id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM layers WHERE id = ?`, id)
	return err
}

// List returns every stored layer ordered by id.
func (s *DB) List(ctx context.Context) ([]LayerInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.created, COUNT(s.position)
		FROM layers l LEFT JOIN segments s ON s.layer_id = l.id
		GROUP BY l.id, l.created
		ORDER BY l.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LayerInfo
	for rows.Next() {
		var (
			info    LayerInfo
			created int64
			count   int64
		)
		if err := rows.Scan(&info.ID, &created, &count); err != nil {
			return nil, err
		}
		if info.Segments, err = safecast.Conv[int](count); err != nil {
			return nil, errors.Wrapf(err, "segment count of layer %s", info.ID)
		}
		info.Created = time.Unix(created, 0).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *DB) exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM layers WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type storedLayer struct {
	db *DB
	id string
}

// Records reads the layer in import order.
func (l *storedLayer) Records(ctx context.Context) ([]layer.Record, error) {
	ok, err := l.db.exists(ctx, l.id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFound("layer", l.id)
	}

	rows, err := l.db.db.QueryContext(ctx, `
		SELECT start_offset, end_offset, text, metadata
		FROM segments WHERE layer_id = ?
		ORDER BY position
	`, l.id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []layer.Record
	for rows.Next() {
		var (
			start, end int64
			rec        layer.Record
			meta       sql.NullString
		)
		if err := rows.Scan(&start, &end, &rec.Text, &meta); err != nil {
			return nil, err
		}
		if rec.Start, rec.End, err = offsets(len(out), start, end); err != nil {
			spanErr := errors.NewInvalidSpan(len(out), 0, 0, err.Error())
			spanErr.Layer = l.id
			return nil, spanErr
		}
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
				perr := errors.NewParse("JSON", l.id, "metadata of segment "+strconv.Itoa(len(out)))
				perr.Err = err
				return nil, perr
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func offsets(pos int, start, end int64) (int, int, error) {
	s, err := safecast.Conv[int](start)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "start offset of segment %d", pos)
	}
	e, err := safecast.Conv[int](end)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "end offset of segment %d", pos)
	}
	return s, e, nil
}
