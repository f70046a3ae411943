package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/akanksha509/backend-task/internal/identify/models"
	"github.com/akanksha509/backend-task/pkg/platform/sentinel"
	txcontext "github.com/akanksha509/backend-task/pkg/platform/tx"
)

const contactColumns = "id, email, phone_number, linked_id, link_precedence, created_at, updated_at, deleted_at"

// Postgres persists contacts in PostgreSQL. Statements run on the
// transaction carried in context when present, so the whole matched path of
// one identify request shares a single serializable transaction.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed contact store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) FindMatching(ctx context.Context, email, phone *string) ([]*models.Contact, error) {
	var conditions []string
	var args []any
	if email != nil {
		args = append(args, *email)
		conditions = append(conditions, fmt.Sprintf("email = $%d", len(args)))
	}
	if phone != nil {
		args = append(args, *phone)
		conditions = append(conditions, fmt.Sprintf("phone_number = $%d", len(args)))
	}
	if len(conditions) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s FROM contacts
		WHERE deleted_at IS NULL AND (%s)
		ORDER BY created_at ASC, id ASC
	`, contactColumns, strings.Join(conditions, " OR "))

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query matching contacts: %w", MapError(err))
	}
	defer rows.Close()
	return scanContacts(rows)
}

func (s *Postgres) FindByIDs(ctx context.Context, ids []int64) ([]*models.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT %s FROM contacts
		WHERE deleted_at IS NULL AND id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`, contactColumns)

	rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query contacts by ids: %w", MapError(err))
	}
	defer rows.Close()
	return scanContacts(rows)
}

func (s *Postgres) Create(ctx context.Context, email, phone *string, precedence models.Precedence, linkedID *int64) (*models.Contact, error) {
	query := fmt.Sprintf(`
		INSERT INTO contacts (email, phone_number, link_precedence, linked_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING %s
	`, contactColumns)

	row := s.execer(ctx).QueryRowContext(ctx, query,
		nullString(email),
		nullString(phone),
		string(precedence),
		nullInt64(linkedID),
	)
	contact, err := scanContact(row)
	if err != nil {
		return nil, fmt.Errorf("insert contact: %w", MapError(err))
	}
	return contact, nil
}

func (s *Postgres) ReparentChildren(ctx context.Context, oldPrimaryIDs []int64, newPrimaryID int64) error {
	if len(oldPrimaryIDs) == 0 {
		return nil
	}
	query := `
		UPDATE contacts
		SET linked_id = $1, updated_at = now()
		WHERE deleted_at IS NULL AND linked_id = ANY($2)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query, newPrimaryID, pq.Array(oldPrimaryIDs)); err != nil {
		return fmt.Errorf("reparent children: %w", MapError(err))
	}
	return nil
}

func (s *Postgres) Demote(ctx context.Context, ids []int64, newPrimaryID int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE contacts
		SET link_precedence = 'secondary', linked_id = $1, updated_at = now()
		WHERE deleted_at IS NULL AND id = ANY($2)
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query, newPrimaryID, pq.Array(ids)); err != nil {
		return fmt.Errorf("demote primaries: %w", MapError(err))
	}
	return nil
}

func (s *Postgres) FindCluster(ctx context.Context, rootIDs []int64) ([]*models.Contact, error) {
	if len(rootIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT %s FROM contacts
		WHERE deleted_at IS NULL AND (id = ANY($1) OR linked_id = ANY($1))
		ORDER BY created_at ASC, id ASC
	`, contactColumns)

	rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array(rootIDs))
	if err != nil {
		return nil, fmt.Errorf("query cluster: %w", MapError(err))
	}
	defer rows.Close()
	return scanContacts(rows)
}

// MapError translates driver failures into sentinel errors the service
// understands: unique violations become ErrConflict, retryable contention
// (serialization failure, deadlock, lock wait timeout) becomes
// ErrUnavailable. Everything else passes through unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", sentinel.ErrConflict, pqErr.Message)
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", sentinel.ErrUnavailable, pqErr.Message)
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		contact    models.Contact
		email      sql.NullString
		phone      sql.NullString
		linkedID   sql.NullInt64
		precedence string
		deletedAt  sql.NullTime
	)
	err := row.Scan(
		&contact.ID,
		&email,
		&phone,
		&linkedID,
		&precedence,
		&contact.CreatedAt,
		&contact.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}
	contact.Precedence = models.Precedence(precedence)
	if email.Valid {
		contact.Email = &email.String
	}
	if phone.Valid {
		contact.Phone = &phone.String
	}
	if linkedID.Valid {
		contact.LinkedID = &linkedID.Int64
	}
	if deletedAt.Valid {
		contact.DeletedAt = &deletedAt.Time
	}
	return &contact, nil
}

func scanContacts(rows *sql.Rows) ([]*models.Contact, error) {
	var contacts []*models.Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", MapError(err))
	}
	return contacts, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
