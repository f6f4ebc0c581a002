package issue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"issuedesk.org/internal/ids"
)

// PGStore implements Store using PostgreSQL. Creator scoping rides in
// the WHERE clause of every query via text[] binding.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const issueColumns = `id, title, description, label, status, priority, assigned_to, created_by, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, is *Issue) error {
	if is.ID == "" {
		is.ID = ids.New()
	}
	return s.db.QueryRowContext(ctx,
		`insert into issues(id, title, description, label, status, priority, assigned_to, created_by)
		 values($1,$2,nullif($3,''),nullif($4,''),$5,$6,nullif($7,''),$8)
		 returning created_at, updated_at`,
		is.ID, is.Title, is.Description, is.Label, is.Status, is.Priority, is.AssignedTo, is.CreatedBy,
	).Scan(&is.CreatedAt, &is.UpdatedAt)
}

func (s *PGStore) Find(ctx context.Context, id string) (*Issue, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+issueColumns+` from issues where id=$1`, id)
	return scanIssue(row)
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]*Issue, int, error) {
	where, args := buildFilter(f)

	var total int
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from issues `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "order by created_at desc"
	if f.Sort == SortOldest {
		order = "order by created_at asc"
	}
	offset := (f.Page - 1) * f.Limit
	query := fmt.Sprintf(`select %s from issues %s %s limit %d offset %d`,
		issueColumns, where, order, f.Limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Issue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, is)
	}
	return out, total, rows.Err()
}

func (s *PGStore) Update(ctx context.Context, is *Issue) error {
	err := s.db.QueryRowContext(ctx,
		`update issues
		 set title=$2, description=$3, label=nullif($4,''), status=$5,
		     priority=$6, assigned_to=nullif($7,''), updated_at=now()
		 where id=$1
		 returning updated_at`,
		is.ID, is.Title, is.Description, is.Label, is.Status, is.Priority, is.AssignedTo,
	).Scan(&is.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from issues where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) StatusCounts(ctx context.Context, creatorIDs []string) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`select status, count(*) from issues where created_by = any($1) group by status`,
		creatorIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var (
			st Status
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

func (s *PGStore) PriorityCounts(ctx context.Context, creatorIDs []string) (map[Priority]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`select priority, count(*) from issues where created_by = any($1) group by priority`,
		creatorIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Priority]int)
	for rows.Next() {
		var (
			p Priority
			n int
		)
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		counts[p] = n
	}
	return counts, rows.Err()
}

func (s *PGStore) RecentByCreators(ctx context.Context, creatorIDs []string, limit int) ([]*Issue, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+issueColumns+` from issues where created_by = any($1)
		 order by updated_at desc limit $2`,
		creatorIDs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Issue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

// buildFilter renders the WHERE clause. The creator pre-filter is
// always present; cross-org rows are excluded before any paging
// arithmetic runs.
func buildFilter(f Filter) (string, []any) {
	clauses := []string{"created_by = any($1)"}
	args := []any{f.CreatorIDs}

	if f.Status != "" {
		args = append(args, f.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Priority != "" {
		args = append(args, f.Priority)
		clauses = append(clauses, fmt.Sprintf("priority = $%d", len(args)))
	}
	if f.Label != "" {
		args = append(args, f.Label)
		clauses = append(clauses, fmt.Sprintf("lower(label) = lower($%d)", len(args)))
	}
	if f.Query != "" {
		args = append(args, "%"+escapeLike(f.Query)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(title ilike $%d or description ilike $%d or label ilike $%d)", n, n, n))
	}
	return "where " + strings.Join(clauses, " and "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*Issue, error) {
	var (
		is       Issue
		label    sql.NullString
		assignee sql.NullString
	)
	err := row.Scan(&is.ID, &is.Title, &is.Description, &label, &is.Status,
		&is.Priority, &assignee, &is.CreatedBy, &is.CreatedAt, &is.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	is.Label = label.String
	is.AssignedTo = assignee.String
	return &is, nil
}
