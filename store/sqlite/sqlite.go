/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements metrics.MutableStore (and therefore metrics.EntityStore and
  metrics.CounterStore) using SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

GENERATION COUNTERS:
  Counters live inline on the persons/projects rows and are bumped with
  a single UPDATE ... SET counter = counter + 1, so a bump is atomic per
  entity. The bump and the save that triggered it are NOT one
  transaction: a crash in between can leave a stale cache entry readable
  (accepted risk).

KEY TABLES:
  time_buckets:      Calendar weeks, never deleted, (year, week) unique
  persons:           Entity rows with counter + rates_counter inline
  person_rates:      Weekly-hours/target/tariff history
  projects:          Entity rows with counter inline
  work_assignments:  One per (project, person), the hour/tariff budget
  bookings:          One per (project, person, year, week)
  budget_items:      Costs/income, optional transfer target
  estimates, payables, invoices: independently summable money records

DECIMALS:
  All money/hour values are stored as TEXT and parsed with
  shopspring/decimal; floats never touch the schema.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better
  concurrency: multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/financials.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - metrics/store.go: Interface definitions
  - metrics/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/financials-engine/metrics"
)

// Store implements metrics.MutableStore using SQLite.
type Store struct {
	db  *sql.DB
	inv metrics.Invalidator
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	store.inv = metrics.Invalidator{Counters: store}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS time_buckets (
		year INTEGER NOT NULL,
		week INTEGER NOT NULL,
		first_day TEXT NOT NULL,
		days_missing INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (year, week)
	);
	CREATE INDEX IF NOT EXISTS idx_time_buckets_first_day
		ON time_buckets(first_day);

	CREATE TABLE IF NOT EXISTS persons (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		counter INTEGER NOT NULL DEFAULT 0,
		rates_counter INTEGER NOT NULL DEFAULT 0,
		archived INTEGER NOT NULL DEFAULT 0,
		management INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS person_rates (
		person_id TEXT NOT NULL REFERENCES persons(id),
		effective_from TEXT NOT NULL,
		weekly_hours TEXT NOT NULL,
		target TEXT NOT NULL,
		tariff TEXT NOT NULL,
		PRIMARY KEY (person_id, effective_from)
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		counter INTEGER NOT NULL DEFAULT 0,
		archived INTEGER NOT NULL DEFAULT 0,
		internal INTEGER NOT NULL DEFAULT 0,
		hidden INTEGER NOT NULL DEFAULT 0,
		hourless INTEGER NOT NULL DEFAULT 0,
		start_year INTEGER,
		start_week INTEGER,
		end_year INTEGER,
		end_week INTEGER,
		contract_amount TEXT NOT NULL DEFAULT '0',
		reservation TEXT NOT NULL DEFAULT '0',
		profit TEXT NOT NULL DEFAULT '0',
		software_development TEXT NOT NULL DEFAULT '0',
		leader_id TEXT,
		manager_id TEXT
	);

	CREATE TABLE IF NOT EXISTS work_assignments (
		project_id TEXT NOT NULL REFERENCES projects(id),
		person_id TEXT NOT NULL REFERENCES persons(id),
		hours TEXT NOT NULL DEFAULT '0',
		tariff TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY (project_id, person_id)
	);
	CREATE INDEX IF NOT EXISTS idx_assignments_person
		ON work_assignments(person_id);

	CREATE TABLE IF NOT EXISTS bookings (
		project_id TEXT NOT NULL REFERENCES projects(id),
		person_id TEXT NOT NULL REFERENCES persons(id),
		year INTEGER NOT NULL,
		week INTEGER NOT NULL,
		hours TEXT NOT NULL,
		PRIMARY KEY (project_id, person_id, year, week)
	);
	CREATE INDEX IF NOT EXISTS idx_bookings_person
		ON bookings(person_id);

	CREATE TABLE IF NOT EXISTS budget_items (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		description TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		transfer_target TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_budget_items_project
		ON budget_items(project_id);
	CREATE INDEX IF NOT EXISTS idx_budget_items_transfer
		ON budget_items(transfer_target) WHERE transfer_target IS NOT NULL;

	CREATE TABLE IF NOT EXISTS estimates (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		description TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_estimates_project ON estimates(project_id);

	CREATE TABLE IF NOT EXISTS payables (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		description TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_payables_project ON payables(project_id);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		description TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_invoices_project ON invoices(project_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BUCKET STORE
// =============================================================================

const dateLayout = "2006-01-02"

func (s *Store) Bucket(ctx context.Context, ref metrics.BucketRef) (*metrics.TimeBucket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT year, week, first_day, days_missing FROM time_buckets WHERE year = ? AND week = ?`,
		ref.Year, ref.Week)
	return scanBucket(row)
}

func (s *Store) BucketOnOrBefore(ctx context.Context, day time.Time) (*metrics.TimeBucket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT year, week, first_day, days_missing FROM time_buckets
		 WHERE first_day <= ? ORDER BY year DESC, week DESC LIMIT 1`,
		day.UTC().Format(dateLayout))
	return scanBucket(row)
}

func (s *Store) LastBucketOfYear(ctx context.Context, year int) (*metrics.TimeBucket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT year, week, first_day, days_missing FROM time_buckets
		 WHERE year = ? ORDER BY week DESC LIMIT 1`, year)
	return scanBucket(row)
}

func (s *Store) OffsetBucket(ctx context.Context, ref metrics.BucketRef, n int) (*metrics.TimeBucket, error) {
	// The anchor must exist; offsets count from it in (year, week) order.
	if _, err := s.Bucket(ctx, ref); err != nil {
		return nil, err
	}

	var row *sql.Row
	if n >= 0 {
		row = s.db.QueryRowContext(ctx,
			`SELECT year, week, first_day, days_missing FROM time_buckets
			 WHERE year > ? OR (year = ? AND week >= ?)
			 ORDER BY year, week LIMIT 1 OFFSET ?`,
			ref.Year, ref.Year, ref.Week, n)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT year, week, first_day, days_missing FROM time_buckets
			 WHERE year < ? OR (year = ? AND week <= ?)
			 ORDER BY year DESC, week DESC LIMIT 1 OFFSET ?`,
			ref.Year, ref.Year, ref.Week, -n)
	}
	return scanBucket(row)
}

func (s *Store) SaveBuckets(ctx context.Context, buckets []metrics.TimeBucket) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO time_buckets (year, week, first_day, days_missing) VALUES (?, ?, ?, ?)
		 ON CONFLICT(year, week) DO UPDATE SET days_missing = excluded.days_missing`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range buckets {
		if _, err := stmt.ExecContext(ctx, b.Year, b.Week, b.FirstDay.UTC().Format(dateLayout), b.DaysMissing); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func scanBucket(row *sql.Row) (*metrics.TimeBucket, error) {
	var b metrics.TimeBucket
	var firstDay string
	err := row.Scan(&b.Year, &b.Week, &firstDay, &b.DaysMissing)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, metrics.ErrBucketNotFound
	}
	if err != nil {
		return nil, err
	}
	if b.FirstDay, err = time.ParseInLocation(dateLayout, firstDay, time.UTC); err != nil {
		return nil, fmt.Errorf("corrupt first_day for %s: %w", b.ID(), err)
	}
	return &b, nil
}

// =============================================================================
// ENTITY READS
// =============================================================================

func (s *Store) Person(ctx context.Context, id metrics.PersonID) (*metrics.Person, error) {
	var p metrics.Person
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, counter, rates_counter, archived, management FROM persons WHERE id = ?`, string(id)).
		Scan(&p.ID, &p.Name, &p.Counter, &p.RatesCounter, &p.Archived, &p.Management)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, metrics.ErrPersonNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT effective_from, weekly_hours, target, tariff FROM person_rates
		 WHERE person_id = ? ORDER BY effective_from`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry metrics.RateEntry
		var from, weekly, target, tariff string
		if err := rows.Scan(&from, &weekly, &target, &tariff); err != nil {
			return nil, err
		}
		if entry.EffectiveFrom, err = time.ParseInLocation(dateLayout, from, time.UTC); err != nil {
			return nil, err
		}
		if entry.WeeklyHours, err = parseDec(weekly); err != nil {
			return nil, err
		}
		if entry.Target, err = parseDec(target); err != nil {
			return nil, err
		}
		if entry.Tariff, err = parseDec(tariff); err != nil {
			return nil, err
		}
		p.Rates = append(p.Rates, entry)
	}
	return &p, rows.Err()
}

func (s *Store) Project(ctx context.Context, id metrics.ProjectID) (*metrics.Project, error) {
	var p metrics.Project
	var startYear, startWeek, endYear, endWeek sql.NullInt64
	var contract, reservation, profit, softdev string
	var leader, manager sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, counter, archived, internal, hidden, hourless,
		        start_year, start_week, end_year, end_week,
		        contract_amount, reservation, profit, software_development,
		        leader_id, manager_id
		 FROM projects WHERE id = ?`, string(id)).
		Scan(&p.ID, &p.Code, &p.Counter, &p.Archived, &p.Internal, &p.Hidden, &p.Hourless,
			&startYear, &startWeek, &endYear, &endWeek,
			&contract, &reservation, &profit, &softdev,
			&leader, &manager)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, metrics.ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}

	if startYear.Valid && startWeek.Valid {
		p.Start = &metrics.BucketRef{Year: int(startYear.Int64), Week: int(startWeek.Int64)}
	}
	if endYear.Valid && endWeek.Valid {
		p.End = &metrics.BucketRef{Year: int(endYear.Int64), Week: int(endWeek.Int64)}
	}
	if p.ContractAmount, err = parseDec(contract); err != nil {
		return nil, err
	}
	if p.Reservation, err = parseDec(reservation); err != nil {
		return nil, err
	}
	if p.Profit, err = parseDec(profit); err != nil {
		return nil, err
	}
	if p.SoftwareDevelopment, err = parseDec(softdev); err != nil {
		return nil, err
	}
	p.Leader = metrics.PersonID(leader.String)
	p.Manager = metrics.PersonID(manager.String)
	return &p, nil
}

func (s *Store) AssignmentsByProject(ctx context.Context, id metrics.ProjectID) ([]metrics.WorkAssignment, error) {
	return s.queryAssignments(ctx,
		`SELECT project_id, person_id, hours, tariff FROM work_assignments
		 WHERE project_id = ? ORDER BY person_id`, string(id))
}

func (s *Store) AssignmentsByPerson(ctx context.Context, id metrics.PersonID) ([]metrics.WorkAssignment, error) {
	return s.queryAssignments(ctx,
		`SELECT project_id, person_id, hours, tariff FROM work_assignments
		 WHERE person_id = ? ORDER BY project_id`, string(id))
}

func (s *Store) queryAssignments(ctx context.Context, query string, arg any) ([]metrics.WorkAssignment, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []metrics.WorkAssignment
	for rows.Next() {
		var wa metrics.WorkAssignment
		var hours, tariff string
		if err := rows.Scan(&wa.Project, &wa.Person, &hours, &tariff); err != nil {
			return nil, err
		}
		if wa.Hours, err = parseDec(hours); err != nil {
			return nil, err
		}
		if wa.Tariff, err = parseDec(tariff); err != nil {
			return nil, err
		}
		result = append(result, wa)
	}
	return result, rows.Err()
}

func (s *Store) BookingsByProject(ctx context.Context, id metrics.ProjectID) ([]metrics.Booking, error) {
	return s.queryBookings(ctx,
		`SELECT project_id, person_id, year, week, hours FROM bookings WHERE project_id = ?`, string(id))
}

func (s *Store) BookingsByPerson(ctx context.Context, id metrics.PersonID) ([]metrics.Booking, error) {
	return s.queryBookings(ctx,
		`SELECT project_id, person_id, year, week, hours FROM bookings WHERE person_id = ?`, string(id))
}

func (s *Store) queryBookings(ctx context.Context, query string, arg any) ([]metrics.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []metrics.Booking
	for rows.Next() {
		var b metrics.Booking
		var hours string
		if err := rows.Scan(&b.Project, &b.Person, &b.Bucket.Year, &b.Bucket.Week, &hours); err != nil {
			return nil, err
		}
		if b.Hours, err = parseDec(hours); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (s *Store) BudgetItemsByProject(ctx context.Context, id metrics.ProjectID) ([]metrics.BudgetItem, error) {
	return s.queryBudgetItems(ctx,
		`SELECT id, project_id, description, amount, transfer_target FROM budget_items
		 WHERE project_id = ?`, string(id))
}

func (s *Store) TransfersIntoProject(ctx context.Context, id metrics.ProjectID) ([]metrics.BudgetItem, error) {
	return s.queryBudgetItems(ctx,
		`SELECT id, project_id, description, amount, transfer_target FROM budget_items
		 WHERE transfer_target = ?`, string(id))
}

func (s *Store) queryBudgetItems(ctx context.Context, query string, arg any) ([]metrics.BudgetItem, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []metrics.BudgetItem
	for rows.Next() {
		var item metrics.BudgetItem
		var amount string
		var target sql.NullString
		if err := rows.Scan(&item.ID, &item.Project, &item.Description, &amount, &target); err != nil {
			return nil, err
		}
		if item.Amount, err = parseDec(amount); err != nil {
			return nil, err
		}
		item.TransferTarget = metrics.ProjectID(target.String)
		result = append(result, item)
	}
	return result, rows.Err()
}

func (s *Store) EstimatesByProject(ctx context.Context, id metrics.ProjectID) ([]metrics.ThirdPartyEstimate, error) {
	records, err := s.queryMoneyRecords(ctx, "estimates", id)
	if err != nil {
		return nil, err
	}
	result := make([]metrics.ThirdPartyEstimate, len(records))
	for i, r := range records {
		result[i] = metrics.ThirdPartyEstimate(r)
	}
	return result, nil
}

func (s *Store) PayablesByProject(ctx context.Context, id metrics.ProjectID) ([]metrics.Payable, error) {
	records, err := s.queryMoneyRecords(ctx, "payables", id)
	if err != nil {
		return nil, err
	}
	result := make([]metrics.Payable, len(records))
	for i, r := range records {
		result[i] = metrics.Payable(r)
	}
	return result, nil
}

func (s *Store) InvoicesByProject(ctx context.Context, id metrics.ProjectID) ([]metrics.Invoice, error) {
	records, err := s.queryMoneyRecords(ctx, "invoices", id)
	if err != nil {
		return nil, err
	}
	result := make([]metrics.Invoice, len(records))
	for i, r := range records {
		result[i] = metrics.Invoice(r)
	}
	return result, nil
}

type moneyRecord struct {
	ID          string
	Project     metrics.ProjectID
	Description string
	Amount      decimal.Decimal
}

func (s *Store) queryMoneyRecords(ctx context.Context, table string, id metrics.ProjectID) ([]moneyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, description, amount FROM `+table+` WHERE project_id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []moneyRecord
	for rows.Next() {
		var r moneyRecord
		var amount string
		if err := rows.Scan(&r.ID, &r.Project, &r.Description, &amount); err != nil {
			return nil, err
		}
		if r.Amount, err = parseDec(amount); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// =============================================================================
// COUNTER BUMPS
// =============================================================================

func (s *Store) BumpPerson(ctx context.Context, id metrics.PersonID) error {
	return s.bump(ctx,
		`UPDATE persons SET counter = counter + 1 WHERE id = ?`, string(id), metrics.ErrPersonNotFound)
}

func (s *Store) BumpPersonRates(ctx context.Context, id metrics.PersonID) error {
	return s.bump(ctx,
		`UPDATE persons SET rates_counter = rates_counter + 1 WHERE id = ?`, string(id), metrics.ErrPersonNotFound)
}

func (s *Store) BumpProject(ctx context.Context, id metrics.ProjectID) error {
	return s.bump(ctx,
		`UPDATE projects SET counter = counter + 1 WHERE id = ?`, string(id), metrics.ErrProjectNotFound)
}

func (s *Store) bump(ctx context.Context, query, id string, notFound error) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// =============================================================================
// SAVES - Each routes through the Invalidator
// =============================================================================

func (s *Store) SavePerson(ctx context.Context, p *metrics.Person) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO persons (id, name, archived, management) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name,
		     archived = excluded.archived, management = excluded.management`,
		string(p.ID), p.Name, p.Archived, p.Management)
	if err != nil {
		return err
	}
	if _, err := s.inv.OnPersonChanged(ctx, p.ID); err != nil {
		return err
	}
	return s.reloadPersonCounters(ctx, p)
}

func (s *Store) SaveRates(ctx context.Context, id metrics.PersonID, rates []metrics.RateEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM person_rates WHERE person_id = ?`, string(id)); err != nil {
		return err
	}
	for _, r := range rates {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO person_rates (person_id, effective_from, weekly_hours, target, tariff)
			 VALUES (?, ?, ?, ?, ?)`,
			string(id), r.EffectiveFrom.UTC().Format(dateLayout),
			r.WeeklyHours.String(), r.Target.String(), r.Tariff.String())
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	_, err = s.inv.OnRatesChanged(ctx, id)
	return err
}

func (s *Store) SaveProject(ctx context.Context, p *metrics.Project) error {
	var startYear, startWeek, endYear, endWeek any
	if p.Start != nil {
		startYear, startWeek = p.Start.Year, p.Start.Week
	}
	if p.End != nil {
		endYear, endWeek = p.End.Year, p.End.Week
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, code, archived, internal, hidden, hourless,
		     start_year, start_week, end_year, end_week,
		     contract_amount, reservation, profit, software_development,
		     leader_id, manager_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     code = excluded.code, archived = excluded.archived,
		     internal = excluded.internal, hidden = excluded.hidden,
		     hourless = excluded.hourless,
		     start_year = excluded.start_year, start_week = excluded.start_week,
		     end_year = excluded.end_year, end_week = excluded.end_week,
		     contract_amount = excluded.contract_amount,
		     reservation = excluded.reservation, profit = excluded.profit,
		     software_development = excluded.software_development,
		     leader_id = excluded.leader_id, manager_id = excluded.manager_id`,
		string(p.ID), p.Code, p.Archived, p.Internal, p.Hidden, p.Hourless,
		startYear, startWeek, endYear, endWeek,
		p.ContractAmount.String(), p.Reservation.String(), p.Profit.String(),
		p.SoftwareDevelopment.String(), nullable(string(p.Leader)), nullable(string(p.Manager)))
	if err != nil {
		return err
	}

	// Leader/manager get an implicit zero-hours assignment when missing.
	existing, err := s.AssignmentsByProject(ctx, p.ID)
	if err != nil {
		return err
	}
	created := metrics.ManagementAssignments(*p, existing)
	for _, wa := range created {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO work_assignments (project_id, person_id, hours, tariff)
			 VALUES (?, ?, '0', '0')
			 ON CONFLICT(project_id, person_id) DO NOTHING`,
			string(wa.Project), string(wa.Person))
		if err != nil {
			return err
		}
	}

	if _, err := s.inv.OnProjectChanged(ctx, *p, append(existing, created...)); err != nil {
		return err
	}
	return s.db.QueryRowContext(ctx,
		`SELECT counter FROM projects WHERE id = ?`, string(p.ID)).Scan(&p.Counter)
}

func (s *Store) SaveAssignment(ctx context.Context, a *metrics.WorkAssignment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO work_assignments (project_id, person_id, hours, tariff) VALUES (?, ?, ?, ?)
		 ON CONFLICT(project_id, person_id) DO UPDATE SET
		     hours = excluded.hours, tariff = excluded.tariff`,
		string(a.Project), string(a.Person), a.Hours.String(), a.Tariff.String())
	if err != nil {
		return err
	}
	_, err = s.inv.OnAssignmentChanged(ctx, *a)
	return err
}

func (s *Store) SaveBooking(ctx context.Context, b *metrics.Booking) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bookings (project_id, person_id, year, week, hours) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, person_id, year, week) DO UPDATE SET hours = excluded.hours`,
		string(b.Project), string(b.Person), b.Bucket.Year, b.Bucket.Week, b.Hours.String())
	if err != nil {
		return err
	}
	_, err = s.inv.OnBookingChanged(ctx, *b)
	return err
}

func (s *Store) SaveBudgetItem(ctx context.Context, item *metrics.BudgetItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO budget_items (id, project_id, description, amount, transfer_target)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET project_id = excluded.project_id,
		     description = excluded.description, amount = excluded.amount,
		     transfer_target = excluded.transfer_target`,
		item.ID, string(item.Project), item.Description, item.Amount.String(),
		nullable(string(item.TransferTarget)))
	if err != nil {
		return err
	}
	_, err = s.inv.OnBudgetItemChanged(ctx, *item)
	return err
}

func (s *Store) SaveEstimate(ctx context.Context, e *metrics.ThirdPartyEstimate) error {
	if err := s.saveMoneyRecord(ctx, "estimates", e.ID, e.Project, e.Description, e.Amount); err != nil {
		return err
	}
	_, err := s.inv.OnEstimateChanged(ctx, *e)
	return err
}

func (s *Store) SavePayable(ctx context.Context, p *metrics.Payable) error {
	if err := s.saveMoneyRecord(ctx, "payables", p.ID, p.Project, p.Description, p.Amount); err != nil {
		return err
	}
	_, err := s.inv.OnPayableChanged(ctx, *p)
	return err
}

func (s *Store) SaveInvoice(ctx context.Context, inv *metrics.Invoice) error {
	if err := s.saveMoneyRecord(ctx, "invoices", inv.ID, inv.Project, inv.Description, inv.Amount); err != nil {
		return err
	}
	_, err := s.inv.OnInvoiceChanged(ctx, *inv)
	return err
}

func (s *Store) saveMoneyRecord(ctx context.Context, table, id string, project metrics.ProjectID, description string, amount decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, project_id, description, amount) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET project_id = excluded.project_id,
		     description = excluded.description, amount = excluded.amount`,
		id, string(project), description, amount.String())
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) reloadPersonCounters(ctx context.Context, p *metrics.Person) error {
	return s.db.QueryRowContext(ctx,
		`SELECT counter, rates_counter FROM persons WHERE id = ?`, string(p.ID)).
		Scan(&p.Counter, &p.RatesCounter)
}

func parseDec(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt decimal %q: %w", s, err)
	}
	return d, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
