package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"

	"ewastePickup/internal/testutil"
	"ewastePickup/models"
)

func TestUserRepository_CRUDAndQueries(t *testing.T) {
	d := testutil.OpenInMemoryDB(t)
	repo := NewUserRepository(d)
	ctx := context.Background()

	// Create
	u, err := repo.Create(ctx, &models.User{Username: "alice", Email: "Alice@Example.com", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ID == 0 || u.Username != "alice" || u.Role != models.RoleRequester {
		t.Fatalf("unexpected created user: %+v", u)
	}

	// GetByID
	g, err := repo.GetByID(ctx, u.ID)
	if err != nil || g == nil || g.Username != "alice" {
		t.Fatalf("get by id: %v %+v", err, g)
	}

	// GetByEmail is case-insensitive
	g2, err := repo.GetByEmail(ctx, "alice@example.com")
	if err != nil || g2 == nil || g2.ID != u.ID {
		t.Fatalf("get by email: %v %+v", err, g2)
	}

	// Duplicate email
	if _, err := repo.Create(ctx, &models.User{Username: "alice2", Email: "ALICE@example.com"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	exists, err := repo.UsernameExists(ctx, "alice")
	if err != nil || !exists {
		t.Fatalf("username exists: %v %v", exists, err)
	}

	// ListByRole orders by username
	for _, name := range []string{"zed", "bob"} {
		if _, err := repo.Create(ctx, models.NewCollector(name, name+"@example.com")); err != nil {
			t.Fatalf("create collector %s: %v", name, err)
		}
	}
	list, err := repo.ListByRole(ctx, models.RoleCollector)
	if err != nil || len(list) != 2 || list[0].Username != "bob" || list[1].Username != "zed" {
		t.Fatalf("list collectors: %v %+v", err, list)
	}

	// UpdateProfile
	g.Phone = "555"
	g.Address = "Harbour Rd"
	if err := repo.UpdateProfile(ctx, g); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	g3, _ := repo.GetByID(ctx, u.ID)
	if g3.Phone != "555" || g3.Address != "Harbour Rd" || g3.Role != models.RoleRequester {
		t.Fatalf("profile not updated: %+v", g3)
	}

	missing, err := repo.GetByID(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing user, got %+v err=%v", missing, err)
	}
}

func TestUserRepository_PropagatesDriverErrors(t *testing.T) {
	d, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer d.Close()
	repo := NewUserRepository(d)

	mock.ExpectExec(`INSERT INTO users`).WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})
	if _, err := repo.Create(context.Background(), &models.User{Username: "a", Email: "a@x"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	boom := errors.New("disk I/O error")
	mock.ExpectExec(`INSERT INTO users`).WillReturnError(boom)
	if _, err := repo.Create(context.Background(), &models.User{Username: "b", Email: "b@x"}); !errors.Is(err, boom) {
		t.Fatalf("expected driver error, got %v", err)
	}

	rowsErr := errors.New("rows affected unavailable")
	mock.ExpectExec(`UPDATE users SET`).WillReturnResult(sqlmock.NewErrorResult(rowsErr))
	if err := repo.UpdateProfile(context.Background(), &models.User{ID: 1, Email: "a@x"}); !errors.Is(err, rowsErr) {
		t.Fatalf("expected RowsAffected error, got %v", err)
	}
	mock.ExpectExec(`UPDATE users SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repo.UpdateProfile(context.Background(), &models.User{ID: 2, Email: "b@x"}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
