package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/queryloom/queryloom/internal/schema"
)

func TestSearchSimilarMapsRows(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"object", "kind", "description", "columns", "similarity"}).
		AddRow("orders", "table", "customer orders", []byte(`[{"name":"id"},{"name":"created_at"}]`), 0.92).
		AddRow("movies", "view", nil, nil, 0.71)
	mock.ExpectQuery(`SELECT object, kind, description, columns`).
		WithArgs(sqlmock.AnyArg(), 2).
		WillReturnRows(rows)

	store := NewStore(db, StoreConfig{Table: "schema_embeddings"})
	got, err := store.SearchSimilar(context.Background(), []float32{0.1, 0.2}, 2)
	if err != nil {
		t.Fatalf("SearchSimilar() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(entries) = %d", len(got))
	}
	if got[0].Object != "orders" || len(got[0].Columns) != 2 {
		t.Fatalf("first entry = %#v", got[0])
	}
	if got[1].Description != "" {
		t.Fatalf("nil description should map to empty string, got %q", got[1].Description)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchSimilarValidatesArguments(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	store := NewStore(db, StoreConfig{})
	if _, err := store.SearchSimilar(context.Background(), nil, 3); err == nil {
		t.Fatal("expected error for empty embedding")
	}
	if _, err := store.SearchSimilar(context.Background(), []float32{0.1}, 0); err == nil {
		t.Fatal("expected error for non-positive k")
	}
}

func TestUpsertWritesEntry(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(`INSERT INTO "schema_embeddings"`).
		WithArgs("orders", "table", "customer orders", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewStore(db, StoreConfig{})
	entry := schema.Entry{
		Object:      "orders",
		Kind:        "table",
		Description: "customer orders",
		Columns:     []schema.Column{{Name: "id"}},
	}
	if err := store.Upsert(context.Background(), entry, []float32{0.3}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
