// Package sqlite implements the store ports on SQLite with embedded
// migrations. Bulk capture runs inside a single transaction so partial
// batches are never observable.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"forecast/internal/cache"
	"forecast/internal/core"
	"forecast/internal/store"

	_ "modernc.org/sqlite"
)

// Catalog rows change only through migrations, so cached reads can be
// served for a while without a consistency risk.
const catalogTTL = 5 * time.Minute

type Repository struct {
	db *sql.DB

	departments *cache.LRUCache[[]core.Department]
	projects    *cache.LRUCache[[]core.Project]
	cacheMgr    *cache.Manager
}

// Interface conformance.
var (
	_ store.ForecastStore = (*Repository)(nil)
	_ store.SnapshotStore = (*Repository)(nil)
	_ store.Catalog       = (*Repository)(nil)
	_ store.ExportLedger  = (*Repository)(nil)
)

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	r := &Repository{
		db:          db,
		departments: cache.NewLRUCache[[]core.Department](4, catalogTTL),
		projects:    cache.NewLRUCache[[]core.Project](4, catalogTTL),
		cacheMgr:    cache.NewManager(),
	}
	r.cacheMgr.Register(r.departments)
	r.cacheMgr.Register(r.projects)
	r.cacheMgr.StartCleanup(time.Minute)

	return r, nil
}

func (r *Repository) Close() error {
	if r.cacheMgr != nil {
		r.cacheMgr.Stop()
	}
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

var monthColumns = [12]string{
	"jan_cents", "feb_cents", "mar_cents", "apr_cents", "may_cents", "jun_cents",
	"jul_cents", "aug_cents", "sep_cents", "oct_cents", "nov_cents", "dec_cents",
}

const forecastColumns = `id, department_id, project_id, project_name, profit_center, wbs, account,
	jan_cents, feb_cents, mar_cents, apr_cents, may_cents, jun_cents,
	jul_cents, aug_cents, sep_cents, oct_cents, nov_cents, dec_cents,
	total_cents, yearly_sum_cents, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanForecast(row rowScanner) (core.Forecast, error) {
	var f core.Forecast
	dest := []any{
		&f.ID, &f.DepartmentID, &f.ProjectID, &f.ProjectName, &f.ProfitCenter, &f.WBS, &f.Account,
	}
	for i := range f.Months {
		dest = append(dest, &f.Months[i].Cents)
	}
	dest = append(dest, &f.Total.Cents, &f.YearlySum.Cents, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return core.Forecast{}, err
	}
	return f, nil
}

// --- ForecastStore ---

func (r *Repository) CreateForecast(ctx context.Context, draft store.ForecastDraft) (core.Forecast, error) {
	ok, err := r.ProjectBelongsTo(ctx, draft.ProjectID, draft.DepartmentID)
	if err != nil {
		return core.Forecast{}, err
	}
	if !ok {
		return core.Forecast{}, fmt.Errorf("project %d in department %d: %w",
			draft.ProjectID, draft.DepartmentID, core.ErrInvalidReference)
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO forecasts (department_id, project_id, project_name, profit_center, wbs, account,
			created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		draft.DepartmentID, draft.ProjectID, draft.ProjectName, draft.ProfitCenter,
		draft.WBS, draft.Account, draft.CreatedBy, now, now)
	if err != nil {
		return core.Forecast{}, fmt.Errorf("insert forecast: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Forecast{}, fmt.Errorf("last insert id: %w", err)
	}

	slog.InfoContext(ctx, "Forecast created",
		"id", id,
		"department_id", draft.DepartmentID,
		"project_id", draft.ProjectID)

	return r.GetForecast(ctx, id)
}

func (r *Repository) GetForecast(ctx context.Context, id int64) (core.Forecast, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+forecastColumns+` FROM forecasts WHERE id = ?`, id)
	f, err := scanForecast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Forecast{}, fmt.Errorf("forecast %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Forecast{}, fmt.Errorf("get forecast: %w", err)
	}
	return f, nil
}

// UpdateMonth writes the edited month together with the recomputed totals in
// one UPDATE, so no reader ever sees the record mid-edit.
func (r *Repository) UpdateMonth(ctx context.Context, id int64, monthIdx int, cents int64) (core.Forecast, error) {
	if monthIdx < 0 || monthIdx > 11 {
		return core.Forecast{}, core.ErrUnknownField
	}

	var out core.Forecast
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		f, err := getForecastTx(ctx, tx, id)
		if err != nil {
			return err
		}
		f.Months[monthIdx] = core.Money{Cents: cents}
		f = core.Recomputed(f)
		f.UpdatedAt = time.Now().UTC()
		if err := updateForecastMoneyTx(ctx, tx, f); err != nil {
			return err
		}
		out = f
		return nil
	})
	return out, err
}

func (r *Repository) UpdateYearlySum(ctx context.Context, id int64, cents int64) (core.Forecast, error) {
	var out core.Forecast
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		f, err := getForecastTx(ctx, tx, id)
		if err != nil {
			return err
		}
		f.Months = core.SplitYearEven(core.Money{Cents: cents})
		f.Total = core.Money{Cents: cents}
		f.YearlySum = core.Money{Cents: cents}
		f.UpdatedAt = time.Now().UTC()
		if err := updateForecastMoneyTx(ctx, tx, f); err != nil {
			return err
		}
		out = f
		return nil
	})
	return out, err
}

func (r *Repository) UpdateText(ctx context.Context, id int64, field, value string) (core.Forecast, error) {
	var column string
	switch field {
	case store.FieldProjectName:
		column = "project_name"
	case store.FieldProfitCenter:
		column = "profit_center"
	case store.FieldWBS:
		column = "wbs"
	case store.FieldAccount:
		column = "account"
	default:
		return core.Forecast{}, core.ErrUnknownField
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE forecasts SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC(), id)
	if err != nil {
		return core.Forecast{}, fmt.Errorf("update %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Forecast{}, fmt.Errorf("forecast %d: %w", id, core.ErrNotFound)
	}
	return r.GetForecast(ctx, id)
}

func (r *Repository) DeleteForecast(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM forecasts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete forecast: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("forecast %d: %w", id, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "Forecast deleted", "id", id)
	return nil
}

func (r *Repository) ListForecasts(ctx context.Context, filter store.ForecastFilter) ([]core.Forecast, error) {
	query := `SELECT ` + forecastColumns + ` FROM forecasts WHERE 1=1`
	var args []any
	if filter.DepartmentID != 0 {
		query += ` AND department_id = ?`
		args = append(args, filter.DepartmentID)
	}
	if filter.ProjectID != 0 {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list forecasts: %w", err)
	}
	defer rows.Close()

	var out []core.Forecast
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- helpers ---

func (r *Repository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func getForecastTx(ctx context.Context, tx *sql.Tx, id int64) (core.Forecast, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+forecastColumns+` FROM forecasts WHERE id = ?`, id)
	f, err := scanForecast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Forecast{}, fmt.Errorf("forecast %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Forecast{}, fmt.Errorf("get forecast: %w", err)
	}
	return f, nil
}

func updateForecastMoneyTx(ctx context.Context, tx *sql.Tx, f core.Forecast) error {
	args := make([]any, 0, 16)
	query := `UPDATE forecasts SET `
	for i, col := range monthColumns {
		query += col + ` = ?, `
		args = append(args, f.Months[i].Cents)
	}
	query += `total_cents = ?, yearly_sum_cents = ?, updated_at = ? WHERE id = ?`
	args = append(args, f.Total.Cents, f.YearlySum.Cents, f.UpdatedAt, f.ID)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update forecast money: %w", err)
	}
	return nil
}

// --- Catalog ---

func (r *Repository) ListDepartments(ctx context.Context) ([]core.Department, error) {
	if cached, ok := r.departments.Get("all"); ok {
		return cached, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, name, code FROM departments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	var out []core.Department
	for rows.Next() {
		var d core.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Code); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	r.departments.Set("all", out)
	return out, nil
}

func (r *Repository) ListProjects(ctx context.Context) ([]core.Project, error) {
	if cached, ok := r.projects.Get("all"); ok {
		return cached, nil
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, name, code, department_id FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []core.Project
	for rows.Next() {
		var p core.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Code, &p.DepartmentID); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	r.projects.Set("all", out)
	return out, nil
}

func (r *Repository) DepartmentExists(ctx context.Context, id int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM departments WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("department exists: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) ProjectBelongsTo(ctx context.Context, projectID, departmentID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM projects WHERE id = ? AND department_id = ?`,
		projectID, departmentID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("project belongs to: %w", err)
	}
	return n > 0, nil
}
