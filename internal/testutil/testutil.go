package testutil

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"

	"ewastePickup/internal/db"
	"ewastePickup/models"
)

// OpenInMemoryDB opens a migrated in-memory SQLite database private to the test.
// The database name is derived from t.Name() so parallel packages never share state.
func OpenInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	d, err := db.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// SeedUser inserts a user with the given role and returns it.
func SeedUser(t *testing.T, d *sql.DB, username string, role models.Role) *models.User {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	res, err := d.ExecContext(ctx, `INSERT INTO users (username, email, role, created_at) VALUES (?,?,?,?)`,
		username, username+"@example.com", string(role), time.Now().UTC())
	if err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("seed user id: %v", err)
	}
	return &models.User{ID: id, Username: username, Email: username + "@example.com", Role: role}
}

// Payload returns a valid request payload with a pickup date tomorrow.
func Payload(item string) models.Payload {
	return models.Payload{
		ItemType:      item,
		Brand:         "HP",
		Condition:     "Working",
		Quantity:      1,
		PickupAddress: "Stone Town",
		PickupDate:    time.Now().UTC().AddDate(0, 0, 1).Format(time.DateOnly),
	}
}

// GenerateJWTHS256 returns a signed JWT string with the claims used by the app.
func GenerateJWTHS256(t *testing.T, secret string, id int64, name string, role models.Role) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(id, 10),
		"name": name,
		"role": string(role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// CtxWithBearer returns a context containing gRPC metadata Authorization header with the given token.
func CtxWithBearer(ctx context.Context, token string) context.Context {
	md := metadata.Pairs("authorization", "Bearer "+token)
	return metadata.NewIncomingContext(ctx, md)
}

// OutgoingBearer attaches the token to an outgoing gRPC client context.
func OutgoingBearer(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}
