package statestore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMemoryStoreReadWriteDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	scope := Scope{Env: "prod", Tenant: "acme"}

	if _, ok, err := s.Read(ctx, scope, "k"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := s.Write(ctx, scope, "k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Read(ctx, scope, "k")
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("got %q ok=%v err=%v", v, ok, err)
	}

	if err := s.Delete(ctx, scope, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Read(ctx, scope, "k"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestMemoryStoreScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := Scope{Env: "prod", Tenant: "acme"}
	b := Scope{Env: "prod", Tenant: "globex"}

	_ = s.Write(ctx, a, "k", []byte("a-value"))
	if _, ok, _ := s.Read(ctx, b, "k"); ok {
		t.Fatal("expected tenant b to not see tenant a's value")
	}
}

func TestPostgresStoreReadMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	scope := Scope{Env: "prod", Tenant: "acme"}
	mock.ExpectQuery("SELECT value FROM component_state").
		WithArgs(scope.namespace(), "k").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	store := NewPostgresStore(db)
	if _, ok, err := store.Read(context.Background(), scope, "k"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStoreWriteUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	scope := Scope{Env: "prod", Tenant: "acme"}
	mock.ExpectExec("INSERT INTO component_state").
		WithArgs(scope.namespace(), "k", []byte("v1")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPostgresStore(db)
	if err := store.Write(context.Background(), scope, "k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
