package value

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/valuecore/internal/infrastructure/config"
	"github.com/nerrad567/valuecore/internal/infrastructure/database"
	"github.com/nerrad567/valuecore/migrations"
)

// setupTestRepo opens an in-memory database with the production schema.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Path: ":memory:", BusyTimeout: 5})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	v := &Value{Value: 42, Name: "x"}
	if err := repo.Create(ctx, v); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !IsValidID(v.ID) {
		t.Errorf("Create() assigned ID %q, want ULID", v.ID)
	}
	if v.CreatedAt.IsZero() || !v.CreatedAt.Equal(v.UpdatedAt) {
		t.Errorf("timestamps not set: created=%v updated=%v", v.CreatedAt, v.UpdatedAt)
	}

	got, err := repo.GetByID(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Value != 42 || got.Name != "x" {
		t.Errorf("GetByID() = %+v, want value 42 name x", got)
	}
	if !got.CreatedAt.Equal(v.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, v.CreatedAt)
	}
}

func TestSQLiteRepository_GetByIDNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.GetByID(context.Background(), NewID())
	if !errors.Is(err, ErrValueNotFound) {
		t.Errorf("GetByID() error = %v, want ErrValueNotFound", err)
	}
}

func TestSQLiteRepository_List(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	values, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if values == nil || len(values) != 0 {
		t.Fatalf("List() on empty store = %#v, want empty non-nil slice", values)
	}

	for _, name := range []string{"first", "second", "third"} {
		if err := repo.Create(ctx, &Value{Value: 1, Name: name}); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}

	values, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("List() returned %d values, want 3", len(values))
	}
	if values[0].Name != "first" || values[2].Name != "third" {
		t.Errorf("List() order = %s, %s, %s", values[0].Name, values[1].Name, values[2].Name)
	}
}

func TestSQLiteRepository_Update(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	v := &Value{Value: 1, Name: "before"}
	if err := repo.Create(ctx, v); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	name := "after"
	v.Apply(UpdateInput{Name: &name})
	if err := repo.Update(ctx, v); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "after" || got.Value != 1 {
		t.Errorf("after Update() = %+v", got)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Errorf("UpdatedAt %v before CreatedAt %v", got.UpdatedAt, got.CreatedAt)
	}

	missing := &Value{ID: NewID(), Value: 1, Name: "ghost"}
	if err := repo.Update(ctx, missing); !errors.Is(err, ErrValueNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrValueNotFound", err)
	}
}

func TestSQLiteRepository_Delete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	v := &Value{Value: 1, Name: "doomed"}
	if err := repo.Create(ctx, v); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Delete(ctx, v.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(ctx, v.ID); !errors.Is(err, ErrValueNotFound) {
		t.Errorf("GetByID() after Delete error = %v, want ErrValueNotFound", err)
	}
	if err := repo.Delete(ctx, v.ID); !errors.Is(err, ErrValueNotFound) {
		t.Errorf("second Delete() error = %v, want ErrValueNotFound", err)
	}
}

func TestSQLiteRepository_ListSubSecondOrder(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	lowID, highID := NewID(), NewID()
	rows := []struct {
		id   string
		name string
		at   time.Time
	}{
		// IDs are reversed so only created_at decides the order.
		{lowID, "second", base.Add(120 * time.Millisecond)},
		{highID, "first", base.Add(100 * time.Millisecond)},
	}
	for _, row := range rows {
		_, err := repo.db.ExecContext(ctx,
			`INSERT INTO values_store (id, value, name, created_at, updated_at) VALUES (?, 1, ?, ?, ?)`,
			row.id, row.name, formatTime(row.at), formatTime(row.at))
		if err != nil {
			t.Fatalf("insert %s: %v", row.name, err)
		}
	}

	values, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(values) != 2 || values[0].Name != "first" || values[1].Name != "second" {
		t.Fatalf("List() order = %+v, want first then second", values)
	}
	if !values[0].CreatedAt.Equal(base.Add(100 * time.Millisecond)) {
		t.Errorf("CreatedAt = %v, want round trip", values[0].CreatedAt)
	}
}

func TestFormatTime_FixedWidth(t *testing.T) {
	a := formatTime(time.Date(2026, 1, 2, 3, 4, 5, 100_000_000, time.UTC))
	b := formatTime(time.Date(2026, 1, 2, 3, 4, 5, 120_000_000, time.UTC))
	if len(a) != len(b) || a >= b {
		t.Errorf("formatTime not sortable: %q vs %q", a, b)
	}
	if got := parseTime(a); !got.Equal(time.Date(2026, 1, 2, 3, 4, 5, 100_000_000, time.UTC)) {
		t.Errorf("parseTime(%q) = %v", a, got)
	}
}
