package message

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory reads usernames from the accounts table.
type PostgresDirectory struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresDirectory constructs a UserDirectory backed by PostgreSQL.
func NewPostgresDirectory(pool *pgxpool.Pool, schema string) (*PostgresDirectory, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "souk"
	}
	if !isValidPGIdent(schema) {
		return nil, errors.New("message: invalid schema identifier")
	}
	if pool == nil {
		return nil, errors.New("message: nil pool")
	}
	return &PostgresDirectory{pool: pool, schema: schema}, nil
}

// Username returns the display name for a user id.
func (d *PostgresDirectory) Username(ctx context.Context, userID string) (string, error) {
	if d == nil || d.pool == nil {
		return "", errors.New("message: nil directory")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", NotFoundError{Op: "message.Username", Resource: "user"}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	users := pgIdent(d.schema, "users")

	var username string
	err := d.pool.QueryRow(ctx,
		`SELECT username FROM `+users+` WHERE id = $1`,
		userID,
	).Scan(&username)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", NotFoundError{Op: "message.Username", Resource: "user"}
	}
	if err != nil {
		return "", err
	}
	return username, nil
}

// PostgresPostFinder checks post existence against the feed table.
type PostgresPostFinder struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresPostFinder constructs a PostFinder backed by PostgreSQL.
func NewPostgresPostFinder(pool *pgxpool.Pool, schema string) (*PostgresPostFinder, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "souk"
	}
	if !isValidPGIdent(schema) {
		return nil, errors.New("message: invalid schema identifier")
	}
	if pool == nil {
		return nil, errors.New("message: nil pool")
	}
	return &PostgresPostFinder{pool: pool, schema: schema}, nil
}

// PostExists reports whether a feed post with the given id exists.
func (f *PostgresPostFinder) PostExists(ctx context.Context, postID string) (bool, error) {
	if f == nil || f.pool == nil {
		return false, errors.New("message: nil post finder")
	}
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	posts := pgIdent(f.schema, "posts")

	var one int
	err := f.pool.QueryRow(ctx,
		`SELECT 1 FROM `+posts+` WHERE id = $1`,
		postID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
