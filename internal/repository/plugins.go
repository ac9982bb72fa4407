package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/serenityjs/plugin-registry/internal/models"
	dbmigrations "github.com/serenityjs/plugin-registry/migrations"
)

// SQLRepository implements PluginRepository over any sqlx driver.
// Queries use ? placeholders and are rebound for the driver.
type SQLRepository struct {
	db          *sqlx.DB
	isDuplicate func(error) bool
}

var _ PluginRepository = (*SQLRepository)(nil)

// pluginRow mirrors the plugins table; every column is nullable so decode can
// report exactly which one is missing.
type pluginRow struct {
	ID       int64          `db:"id"`
	Name     sql.NullString `db:"name"`
	Owner    sql.NullString `db:"owner"`
	URL      sql.NullString `db:"url"`
	Branch   sql.NullString `db:"branch"`
	Approved sql.NullBool   `db:"approved"`
}

const pluginColumns = `id, name, owner, url, branch, approved`

func (row pluginRow) decode() (*models.StoredPlugin, error) {
	for col, v := range map[string]sql.NullString{"name": row.Name, "owner": row.Owner, "url": row.URL} {
		if !v.Valid {
			return nil, fmt.Errorf("%w %d: column %s is null", ErrDecode, row.ID, col)
		}
	}
	var owner models.Identity
	if err := json.Unmarshal([]byte(row.Owner.String), &owner); err != nil {
		return nil, fmt.Errorf("%w %d: owner: %v", ErrDecode, row.ID, err)
	}
	if owner.Username == "" {
		return nil, fmt.Errorf("%w %d: owner has no username", ErrDecode, row.ID)
	}
	branch := row.Branch.String
	if branch == "" {
		branch = "main"
	}
	return &models.StoredPlugin{
		ID:       row.ID,
		Name:     row.Name.String,
		Owner:    owner,
		URL:      row.URL.String,
		Branch:   branch,
		Approved: row.Approved.Valid && row.Approved.Bool,
	}, nil
}

func encodeOwner(owner models.Identity) (string, error) {
	b, err := json.Marshal(owner)
	if err != nil {
		return "", fmt.Errorf("encode owner: %w", err)
	}
	return string(b), nil
}

// Migrate applies embedded migrations that have not been recorded yet.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(dbmigrations.FS, ".")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version := strings.TrimSuffix(entry.Name(), ".sql")

		var applied int
		q := r.db.Rebind(`SELECT COUNT(1) FROM schema_migrations WHERE version = ?`)
		if err := r.db.GetContext(ctx, &applied, q, version); err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if applied > 0 {
			continue
		}

		body, err := fs.ReadFile(dbmigrations.FS, entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := r.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		q = r.db.Rebind(`INSERT INTO schema_migrations (version) VALUES (?)`)
		if _, err := r.db.ExecContext(ctx, q, version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
	}
	return nil
}

func (r *SQLRepository) Has(ctx context.Context, id int64) (bool, error) {
	var count int
	err := instrumentQuery("has", func() error {
		return r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT COUNT(1) FROM plugins WHERE id = ?`), id)
	})
	if err != nil {
		return false, fmt.Errorf("has plugin %d: %w", id, err)
	}
	return count > 0, nil
}

func (r *SQLRepository) Insert(ctx context.Context, p *models.StoredPlugin) error {
	owner, err := encodeOwner(p.Owner)
	if err != nil {
		return err
	}
	branch := p.Branch
	if branch == "" {
		branch = "main"
	}

	q := r.db.Rebind(`INSERT INTO plugins (` + pluginColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	err = instrumentQuery("insert", func() error {
		_, execErr := r.db.ExecContext(ctx, q, p.ID, p.Name, owner, p.URL, branch, p.Approved)
		return execErr
	})
	if err != nil {
		if r.isDuplicate(err) {
			return fmt.Errorf("insert plugin %d: %w", p.ID, ErrPluginExists)
		}
		return fmt.Errorf("insert plugin %d: %w", p.ID, err)
	}
	return nil
}

func (r *SQLRepository) Get(ctx context.Context, id int64) (*models.StoredPlugin, error) {
	var row pluginRow
	q := r.db.Rebind(`SELECT ` + pluginColumns + ` FROM plugins WHERE id = ?`)
	err := instrumentQuery("get", func() error {
		return r.db.GetContext(ctx, &row, q, id)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get plugin %d: %w", id, err)
	}
	return row.decode()
}

func (r *SQLRepository) Update(ctx context.Context, id int64, u models.StoredPluginUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *u.Name)
	}
	if u.Owner != nil {
		owner, err := encodeOwner(*u.Owner)
		if err != nil {
			return err
		}
		sets = append(sets, "owner = ?")
		args = append(args, owner)
	}
	if u.URL != nil {
		sets = append(sets, "url = ?")
		args = append(args, *u.URL)
	}
	if u.Branch != nil {
		sets = append(sets, "branch = ?")
		args = append(args, *u.Branch)
	}
	if u.Approved != nil {
		sets = append(sets, "approved = ?")
		args = append(args, *u.Approved)
	}
	args = append(args, id)

	q := r.db.Rebind(`UPDATE plugins SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	return r.execOne(ctx, "update", id, q, args...)
}

func (r *SQLRepository) IsApproved(ctx context.Context, id int64) (bool, error) {
	var approved sql.NullBool
	q := r.db.Rebind(`SELECT approved FROM plugins WHERE id = ?`)
	err := instrumentQuery("is_approved", func() error {
		return r.db.GetContext(ctx, &approved, q, id)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("is plugin %d approved: %w", id, err)
	}
	return approved.Valid && approved.Bool, nil
}

func (r *SQLRepository) SetApproval(ctx context.Context, id int64, approved bool) error {
	q := r.db.Rebind(`UPDATE plugins SET approved = ? WHERE id = ?`)
	return r.execOne(ctx, "set_approval", id, q, approved, id)
}

func (r *SQLRepository) List(ctx context.Context, approvedOnly bool) ([]models.StoredPlugin, error) {
	q := `SELECT ` + pluginColumns + ` FROM plugins`
	var args []any
	if approvedOnly {
		q += ` WHERE approved = ?`
		args = append(args, true)
	}
	q = r.db.Rebind(q + ` ORDER BY id`)

	var rows []pluginRow
	err := instrumentQuery("list", func() error {
		return r.db.SelectContext(ctx, &rows, q, args...)
	})
	if err != nil {
		return nil, fmt.Errorf("list plugins: %w", err)
	}

	out := make([]models.StoredPlugin, 0, len(rows))
	for i := range rows {
		p, err := rows[i].decode()
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) execOne(ctx context.Context, operation string, id int64, q string, args ...any) error {
	var res sql.Result
	err := instrumentQuery(operation, func() error {
		var execErr error
		res, execErr = r.db.ExecContext(ctx, q, args...)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("%s plugin %d: %w", operation, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s plugin %d: rows affected: %w", operation, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s plugin %d: %w", operation, id, ErrPluginNotFound)
	}
	return nil
}
