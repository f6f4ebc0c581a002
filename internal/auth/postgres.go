package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"issuedesk.org/internal/ids"
)

// PGStore implements UserStore using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ UserStore = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const userColumns = `id, name, organization, email, password_hash, refresh_hash, created_at, updated_at`

// uniqueViolation is the Postgres error code raised by the
// lower(email) unique index.
const uniqueViolation = "23505"

func (s *PGStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx,
		`insert into users(id, name, organization, email, password_hash, refresh_hash)
		 values($1,$2,$3,$4,$5, nullif($6,''))
		 returning created_at, updated_at`,
		u.ID, u.Name, u.Organization, u.Email, u.PasswordHash, u.RefreshHash,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (s *PGStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(email)=lower($1)`,
		strings.TrimSpace(email))
	return scanUser(row)
}

func (s *PGStore) ListByOrganization(ctx context.Context, organization string) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users where organization=$1 order by name, created_at`,
		organization)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PGStore) SetRefreshHash(ctx context.Context, userID, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set refresh_hash=nullif($2,''), updated_at=now() where id=$1`,
		userID, hash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) RotateRefreshHash(ctx context.Context, userID, oldHash, newHash string) error {
	// Single conditional update: the compare and the swap happen in one
	// statement, so concurrent refreshes of the same token cannot both
	// succeed.
	res, err := s.db.ExecContext(ctx,
		`update users set refresh_hash=$3, updated_at=now()
		 where id=$1 and refresh_hash=$2`,
		userID, oldHash, newHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidToken
	}
	return nil
}

func (s *PGStore) ClearRefreshHash(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set refresh_hash=null, updated_at=now() where id=$1`,
		userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u       User
		refresh sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &u.Organization, &u.Email, &u.PasswordHash,
		&refresh, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.RefreshHash = refresh.String
	return &u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
