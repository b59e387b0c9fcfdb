package message

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
//   - PostgresStore does NOT own the pgx pool. The caller must close the pool.
//   - Close() is therefore a no-op.
//
// All mutations are single-row or single-field updates, so no explicit
// transaction discipline is required beyond what Postgres provides.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "souk").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("message: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("message: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "souk",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("message: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

const messageColumns = `id, sender_id, recipient_id, post_id, text, read, created_at, updated_at`

// Create inserts a new message row with Read=false.
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("message: nil store")
	}
	if in.SenderID == "" || in.RecipientID == "" || in.Text == "" {
		return Message{}, OpError{Op: "message.Create", Kind: ErrValidation, Msg: "missing sender, recipient or text"}
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewMessageID(now)
	if err != nil {
		return Message{}, err
	}

	messages := pgIdent(s.schema, "messages")

	var postID *string
	if in.PostID != "" {
		postID = &in.PostID
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+messages+` (id, sender_id, recipient_id, post_id, text, read, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, false, $6, $6)
		 RETURNING `+messageColumns,
		id, in.SenderID, in.RecipientID, postID, in.Text, now,
	)
	return scanMessage(row)
}

// GetByID returns a single message by id.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("message: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	messages := pgIdent(s.schema, "messages")

	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM `+messages+` WHERE id = $1`,
		id,
	)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, NotFoundError{Op: "message.GetByID", Resource: "message"}
	}
	return m, err
}

// ListBetween returns the conversation between two users ordered oldest-first.
// The unordered pair matters, not direction; PostID narrows to one post
// context; a positive Limit keeps only the newest Limit rows.
func (s *PostgresStore) ListBetween(ctx context.Context, in ListBetweenInput) ([]Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("message: nil store")
	}
	if in.UserA == "" || in.UserB == "" {
		return nil, OpError{Op: "message.ListBetween", Kind: ErrValidation, Msg: "missing participant"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := pgIdent(s.schema, "messages")

	where := `((sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1))`
	args := []any{in.UserA, in.UserB}
	if in.PostID != "" {
		where += ` AND post_id = $3`
		args = append(args, in.PostID)
	}

	q := `SELECT ` + messageColumns + ` FROM ` + messages + ` WHERE ` + where + ` ORDER BY created_at ASC, id ASC`
	if in.Limit > 0 {
		// Newest Limit rows, still presented oldest-first.
		q = `SELECT ` + messageColumns + ` FROM (
		        SELECT ` + messageColumns + ` FROM ` + messages + `
		         WHERE ` + where + `
		         ORDER BY created_at DESC, id DESC
		         LIMIT ` + strconv.Itoa(in.Limit) + `
		     ) newest ORDER BY created_at ASC, id ASC`
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ListForUser returns every message the user participates in, newest-first.
func (s *PostgresStore) ListForUser(ctx context.Context, userID string) ([]Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("message: nil store")
	}
	if userID == "" {
		return nil, OpError{Op: "message.ListForUser", Kind: ErrValidation, Msg: "missing user"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM `+messages+`
		  WHERE sender_id = $1 OR recipient_id = $1
		  ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MarkRead sets read=true on one message (idempotent) and returns the row.
func (s *PostgresStore) MarkRead(ctx context.Context, messageID string) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("message: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	messages := pgIdent(s.schema, "messages")

	row := s.pool.QueryRow(ctx,
		`UPDATE `+messages+`
		    SET read = true,
		        updated_at = CASE WHEN read THEN updated_at ELSE now() END
		  WHERE id = $1
		RETURNING `+messageColumns,
		messageID,
	)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, NotFoundError{Op: "message.MarkRead", Resource: "message"}
	}
	return m, err
}

// MarkAllFromSender marks every pending message from sender to recipient as
// read and returns the mutated row count.
func (s *PostgresStore) MarkAllFromSender(ctx context.Context, senderID, recipientID string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("message: nil store")
	}
	if senderID == "" || recipientID == "" {
		return 0, OpError{Op: "message.MarkAllFromSender", Kind: ErrValidation, Msg: "missing participant"}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	messages := pgIdent(s.schema, "messages")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+messages+`
		    SET read = true, updated_at = now()
		  WHERE sender_id = $1 AND recipient_id = $2 AND read = false`,
		senderID, recipientID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkAllInbox marks every pending message addressed to the user as read.
func (s *PostgresStore) MarkAllInbox(ctx context.Context, userID string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("message: nil store")
	}
	if userID == "" {
		return 0, OpError{Op: "message.MarkAllInbox", Kind: ErrValidation, Msg: "missing user"}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	messages := pgIdent(s.schema, "messages")

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+messages+`
		    SET read = true, updated_at = now()
		  WHERE recipient_id = $1 AND read = false`,
		userID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountUnread counts pending messages addressed to the user.
func (s *PostgresStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("message: nil store")
	}
	if userID == "" {
		return 0, OpError{Op: "message.CountUnread", Kind: ErrValidation, Msg: "missing user"}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	messages := pgIdent(s.schema, "messages")

	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+messages+` WHERE recipient_id = $1 AND read = false`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ---- scanning ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		m      Message
		postID *string
	)
	err := row.Scan(
		&m.ID,
		&m.SenderID,
		&m.RecipientID,
		&postID,
		&m.Text,
		&m.Read,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return Message{}, err
	}
	if postID != nil {
		m.PostID = *postID
	}
	return m, nil
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	out := make([]Message, 0, 64)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ---- identifiers ----

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}

