// Package datastore persists unit collections in PostgreSQL.
package datastore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/your-org/signal-tube/internal/collection"
)

// PgxPoolIface is the subset of *pgxpool.Pool the repository needs, so tests
// can inject a mock.
type PgxPoolIface interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Repository reads and writes unit collections.
type Repository struct {
	db     PgxPoolIface
	logger *zap.Logger
}

// NewRepository creates a new Repository.
func NewRepository(db PgxPoolIface, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// SaveStore persists every unit of the store under the store's name,
// replacing any prior collection with that name.
func (r *Repository) SaveStore(ctx context.Context, s *collection.Store) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM units WHERE store = $1`, s.Name()); err != nil {
		return fmt.Errorf("failed to clear collection %s: %w", s.Name(), err)
	}
	for i := 0; i < s.Len(); i++ {
		u := s.Unit(i)
		var unitID int64
		err := r.db.QueryRow(ctx,
			`INSERT INTO units (store, position, name, time_index) VALUES ($1, $2, $3, $4) RETURNING id`,
			s.Name(), i, u.Name(), u.Index(),
		).Scan(&unitID)
		if err != nil {
			return fmt.Errorf("failed to insert unit %s: %w", u.Name(), err)
		}
		for ord, col := range u.Columns() {
			vals, err := u.Column(col)
			if err != nil {
				return err
			}
			if _, err := r.db.Exec(ctx,
				`INSERT INTO unit_columns (unit_id, ordinal, column_name, series) VALUES ($1, $2, $3, $4)`,
				unitID, ord, col, vals,
			); err != nil {
				return fmt.Errorf("failed to insert column %s of unit %s: %w", col, u.Name(), err)
			}
		}
	}
	r.logger.Info("Saved collection",
		zap.String("store", s.Name()),
		zap.Int("units", s.Len()))
	return nil
}

// LoadStore reads the named collection back into an in-memory store, units
// ordered by their stored position.
func (r *Repository) LoadStore(ctx context.Context, name string) (*collection.Store, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, time_index FROM units WHERE store = $1 ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	type unitRow struct {
		id    int64
		name  string
		index []float64
	}
	var unitRows []unitRow
	for rows.Next() {
		var ur unitRow
		if err := rows.Scan(&ur.id, &ur.name, &ur.index); err != nil {
			return nil, fmt.Errorf("failed to scan unit row: %w", err)
		}
		unitRows = append(unitRows, ur)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	store := collection.NewStore(name)
	for _, ur := range unitRows {
		columns, data, err := r.loadColumns(ctx, ur.id)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", ur.name, err)
		}
		u, err := collection.NewUnit(ur.name, ur.index, columns, data)
		if err != nil {
			return nil, err
		}
		if err := store.Append(u); err != nil {
			return nil, err
		}
	}
	r.logger.Info("Loaded collection",
		zap.String("store", name),
		zap.Int("units", store.Len()),
		zap.Int("rows", store.TotalRows()))
	return store, nil
}

func (r *Repository) loadColumns(ctx context.Context, unitID int64) ([]string, map[string][]float64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT column_name, series FROM unit_columns WHERE unit_id = $1 ORDER BY ordinal`, unitID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []string
	data := make(map[string][]float64)
	for rows.Next() {
		var name string
		var vals []float64
		if err := rows.Scan(&name, &vals); err != nil {
			return nil, nil, fmt.Errorf("failed to scan column row: %w", err)
		}
		columns = append(columns, name)
		data[name] = vals
	}
	return columns, data, rows.Err()
}
