package value

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines value persistence operations.
type Repository interface {
	Create(ctx context.Context, v *Value) error
	List(ctx context.Context) ([]Value, error)
	GetByID(ctx context.Context, id string) (*Value, error)
	Update(ctx context.Context, v *Value) error
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed value repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts v. An empty ID is assigned a new ULID; timestamps are set
// to the current time.
func (r *SQLiteRepository) Create(ctx context.Context, v *Value) error {
	if v.ID == "" {
		v.ID = NewID()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	const query = `INSERT INTO values_store (id, value, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		v.ID, v.Value, v.Name, formatTime(v.CreatedAt), formatTime(v.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting value %s: %w", v.ID, err)
	}
	return nil
}

// List returns all values, oldest first. The result is never nil.
func (r *SQLiteRepository) List(ctx context.Context) ([]Value, error) {
	const query = `SELECT id, value, name, created_at, updated_at
		FROM values_store ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying values: %w", err)
	}
	defer rows.Close()

	values := make([]Value, 0)
	for rows.Next() {
		v, err := scanValue(rows)
		if err != nil {
			return nil, err
		}
		values = append(values, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating values: %w", err)
	}
	return values, nil
}

// GetByID returns the value with id, or ErrValueNotFound.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Value, error) {
	const query = `SELECT id, value, name, created_at, updated_at
		FROM values_store WHERE id = ?`
	v, err := scanValue(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrValueNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Update writes value and name for v.ID and refreshes v.UpdatedAt.
func (r *SQLiteRepository) Update(ctx context.Context, v *Value) error {
	v.UpdatedAt = time.Now().UTC()

	const query = `UPDATE values_store SET value = ?, name = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, v.Value, v.Name, formatTime(v.UpdatedAt), v.ID)
	if err != nil {
		return fmt.Errorf("updating value %s: %w", v.ID, err)
	}
	return checkAffected(result)
}

// Delete removes the value with id.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM values_store WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting value %s: %w", id, err)
	}
	return checkAffected(result)
}

func checkAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrValueNotFound
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanValue(s scanner) (*Value, error) {
	var v Value
	var createdAt, updatedAt string
	if err := s.Scan(&v.ID, &v.Value, &v.Name, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning value: %w", err)
	}
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}

// timeLayout is fixed width so stored timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime returns the zero time for unparseable input.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
