/*
Package sqlite provides the SQLite-backed implementation of billing.Store.

PURPOSE:
  Persists accounts, rate settings, lessons, invoices, and the account
  registry. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

SCHEMA CONSTRAINTS THE DOMAIN RELIES ON:
  - accounts.email UNIQUE             -> billing.ErrDuplicateEmail
  - invoices.number UNIQUE            -> billing.ErrDuplicateInvoiceNumber
  - lessons.teacher_id/student_id FK  -> deleting an account cascades to
                                         its lessons
  - invoice_lessons                   -> the invoice<->lesson association

MONEY COLUMNS:
  Rates, durations, and balances are stored as decimal strings and parsed
  with shopspring/decimal. They never round-trip through float64.

CONCURRENCY:
  SQLite is opened in WAL mode with a busy timeout. WithTx serializes
  writers through a database transaction plus a process-local mutex;
  invoice numbering and balance recalculation run inside it so concurrent
  submissions cannot mint duplicate numbers or lose updates.

MIGRATIONS:
  Versioned SQL migrations embedded in the binary, applied with goose on
  New().

SEE ALSO:
  - billing/store.go: the interfaces implemented here
  - billing/store/memory.go: the in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/cadenza/academy-billing/billing"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements billing.TxStore on SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex // serializes WithTx blocks
}

var _ billing.TxStore = (*Store)(nil)

// New opens (or creates) the database at dbPath and applies migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: SQLite allows a single writer anyway, and ":memory:"
	// databases exist per-connection.
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &Store{queries: queries{db: db}, db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{queries{db: tx}}); err != nil {
		return err
	}
	return tx.Commit()
}

// txStore is the Store view handed to WithTx callbacks.
type txStore struct{ queries }

// =============================================================================
// QUERIES - shared between the root connection and transactions
// =============================================================================

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

// -----------------------------------------------------------------------------
// Accounts
// -----------------------------------------------------------------------------

const accountColumns = `id, email, first_name, last_name, phone, address, role, approved,
	hourly_rate, bio, instruments, assigned_teacher, parent_email, parent_phone, created_at`

func (q *queries) SaveAccount(ctx context.Context, a *billing.Account) error {
	var (
		hourlyRate, bio, instruments          sql.NullString
		assignedTeacher, parentEmail, parentPhone sql.NullString
	)
	if a.Teacher != nil {
		hourlyRate = nullStr(a.Teacher.HourlyRate.String())
		bio = sql.NullString{String: a.Teacher.Bio, Valid: true}
		instruments = sql.NullString{String: a.Teacher.Instruments, Valid: true}
	}
	if a.Student != nil {
		assignedTeacher = nullStr(string(a.Student.AssignedTeacher))
		parentEmail = sql.NullString{String: a.Student.ParentEmail, Valid: true}
		parentPhone = sql.NullString{String: a.Student.ParentPhone, Valid: true}
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			phone = excluded.phone,
			address = excluded.address,
			role = excluded.role,
			approved = excluded.approved,
			hourly_rate = excluded.hourly_rate,
			bio = excluded.bio,
			instruments = excluded.instruments,
			assigned_teacher = excluded.assigned_teacher,
			parent_email = excluded.parent_email,
			parent_phone = excluded.parent_phone`,
		a.ID, strings.ToLower(a.Email), a.FirstName, a.LastName, a.Phone, a.Address,
		a.Role, a.Approved,
		hourlyRate, bio, instruments, assignedTeacher, parentEmail, parentPhone,
		fmtTime(a.CreatedAt),
	)
	if isUniqueViolation(err, "accounts.email") {
		return billing.ErrDuplicateEmail
	}
	return err
}

func (q *queries) GetAccount(ctx context.Context, id billing.AccountID) (*billing.Account, error) {
	return q.getAccountWhere(ctx, "id = ?", string(id))
}

func (q *queries) GetAccountByEmail(ctx context.Context, email string) (*billing.Account, error) {
	return q.getAccountWhere(ctx, "email = ?", strings.ToLower(email))
}

func (q *queries) FindStudentByName(ctx context.Context, firstName, lastName string) (*billing.Account, error) {
	return q.getAccountWhere(ctx,
		"role = ? AND first_name = ? COLLATE NOCASE AND last_name = ? COLLATE NOCASE",
		string(billing.RoleStudent), firstName, lastName)
}

func (q *queries) getAccountWhere(ctx context.Context, where string, args ...any) (*billing.Account, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE "+where, args...)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (q *queries) ListAccounts(ctx context.Context, role billing.Role) ([]*billing.Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts"
	var args []any
	if role != "" {
		query += " WHERE role = ?"
		args = append(args, string(role))
	}
	query += " ORDER BY email"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*billing.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *queries) DeleteAccount(ctx context.Context, id billing.AccountID) error {
	// Lessons cascade via FK.
	_, err := q.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", string(id))
	return err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanAccount(row rowScanner) (*billing.Account, error) {
	var (
		a                                    billing.Account
		hourlyRate, bio, instruments         sql.NullString
		assigned, parentEmail, parentPhone   sql.NullString
		createdAt                            string
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.Phone, &a.Address,
		&a.Role, &a.Approved,
		&hourlyRate, &bio, &instruments, &assigned, &parentEmail, &parentPhone,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	switch a.Role {
	case billing.RoleTeacher:
		a.Teacher = &billing.TeacherProfile{
			HourlyRate:  parseDec(hourlyRate.String),
			Bio:         bio.String,
			Instruments: instruments.String,
		}
	case billing.RoleStudent:
		a.Student = &billing.StudentProfile{
			AssignedTeacher: billing.AccountID(assigned.String),
			ParentEmail:     parentEmail.String,
			ParentPhone:     parentPhone.String,
		}
	}
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// -----------------------------------------------------------------------------
// Rate settings
// -----------------------------------------------------------------------------

func (q *queries) GetRateSettings(ctx context.Context) (*billing.RateSettings, error) {
	var online, onlineStudent, inPersonStudent string
	err := q.db.QueryRowContext(ctx, `
		SELECT online_teacher_rate, online_student_rate, inperson_student_rate
		FROM rate_settings WHERE key = ?`, billing.RateSettingsKey,
	).Scan(&online, &onlineStudent, &inPersonStudent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &billing.RateSettings{
		OnlineTeacherRate:   parseDec(online),
		OnlineStudentRate:   parseDec(onlineStudent),
		InPersonStudentRate: parseDec(inPersonStudent),
	}, nil
}

func (q *queries) SaveRateSettings(ctx context.Context, s billing.RateSettings) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO rate_settings (key, online_teacher_rate, online_student_rate, inperson_student_rate, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			online_teacher_rate = excluded.online_teacher_rate,
			online_student_rate = excluded.online_student_rate,
			inperson_student_rate = excluded.inperson_student_rate,
			updated_at = excluded.updated_at`,
		billing.RateSettingsKey,
		s.OnlineTeacherRate.String(), s.OnlineStudentRate.String(), s.InPersonStudentRate.String(),
		fmtTime(time.Now().UTC()),
	)
	return err
}

// -----------------------------------------------------------------------------
// Lessons
// -----------------------------------------------------------------------------

const lessonColumns = `id, teacher_id, student_id, lesson_type, duration, teacher_rate,
	student_rate, status, scheduled_date, completed_date, teacher_notes, student_notes,
	created_at, updated_at`

func (q *queries) SaveLesson(ctx context.Context, l *billing.Lesson) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO lessons (`+lessonColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			scheduled_date = excluded.scheduled_date,
			completed_date = excluded.completed_date,
			teacher_notes = excluded.teacher_notes,
			student_notes = excluded.student_notes,
			updated_at = excluded.updated_at`,
		l.ID, l.TeacherID, l.StudentID, l.Type,
		l.Duration.String(), l.TeacherRate.String(), l.StudentRate.String(),
		l.Status, fmtTime(l.ScheduledDate), fmtTimePtr(l.CompletedDate),
		l.TeacherNotes, l.StudentNotes,
		fmtTime(l.CreatedAt), fmtTime(l.UpdatedAt),
	)
	return err
}

func (q *queries) GetLesson(ctx context.Context, id billing.LessonID) (*billing.Lesson, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+lessonColumns+" FROM lessons WHERE id = ?", string(id))
	l, err := scanLesson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

func (q *queries) GetLessons(ctx context.Context, ids []billing.LessonID) ([]*billing.Lesson, error) {
	out := make([]*billing.Lesson, 0, len(ids))
	for _, id := range ids {
		l, err := q.GetLesson(ctx, id)
		if err != nil {
			return nil, err
		}
		if l != nil {
			out = append(out, l)
		}
	}
	return out, nil
}

func (q *queries) ListLessonsByTeacher(ctx context.Context, teacherID billing.AccountID) ([]*billing.Lesson, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT "+lessonColumns+" FROM lessons WHERE teacher_id = ? ORDER BY scheduled_date",
		string(teacherID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*billing.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLesson(row rowScanner) (*billing.Lesson, error) {
	var (
		l                               billing.Lesson
		duration, teacherRate, studentRate string
		scheduled                       string
		completed                       sql.NullString
		createdAt, updatedAt            string
	)
	err := row.Scan(
		&l.ID, &l.TeacherID, &l.StudentID, &l.Type,
		&duration, &teacherRate, &studentRate,
		&l.Status, &scheduled, &completed, &l.TeacherNotes, &l.StudentNotes,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Duration = parseDec(duration)
	l.TeacherRate = parseDec(teacherRate)
	l.StudentRate = parseDec(studentRate)
	l.ScheduledDate = parseTime(scheduled)
	l.CompletedDate = parseTimePtr(completed)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}

// -----------------------------------------------------------------------------
// Invoices
// -----------------------------------------------------------------------------

const invoiceColumns = `id, number, invoice_type, teacher_id, student_id, payment_balance,
	status, due_date, notes, created_at, created_by, approved_by, approved_at,
	rejected_by, rejected_at, rejection_reason, last_edited_by, last_edited_at`

func (q *queries) SaveInvoice(ctx context.Context, inv *billing.Invoice) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payment_balance = excluded.payment_balance,
			status = excluded.status,
			due_date = excluded.due_date,
			notes = excluded.notes,
			approved_by = excluded.approved_by,
			approved_at = excluded.approved_at,
			rejected_by = excluded.rejected_by,
			rejected_at = excluded.rejected_at,
			rejection_reason = excluded.rejection_reason,
			last_edited_by = excluded.last_edited_by,
			last_edited_at = excluded.last_edited_at`,
		inv.ID, inv.Number, inv.Type,
		nullStr(string(inv.TeacherID)), nullStr(string(inv.StudentID)),
		inv.PaymentBalance.String(), inv.Status, fmtTime(inv.DueDate), inv.Notes,
		fmtTime(inv.CreatedAt), nullStr(string(inv.CreatedBy)),
		nullStr(string(inv.ApprovedBy)), fmtTimePtr(inv.ApprovedAt),
		nullStr(string(inv.RejectedBy)), fmtTimePtr(inv.RejectedAt), inv.RejectionReason,
		nullStr(string(inv.LastEditedBy)), fmtTimePtr(inv.LastEditedAt),
	)
	if isUniqueViolation(err, "invoices.number") {
		return billing.ErrDuplicateInvoiceNumber
	}
	if err != nil {
		return err
	}

	// Rewrite the lesson association to match the invoice's current set.
	if _, err := q.db.ExecContext(ctx, "DELETE FROM invoice_lessons WHERE invoice_id = ?", inv.ID); err != nil {
		return err
	}
	for i, lid := range inv.LessonIDs {
		if _, err := q.db.ExecContext(ctx,
			"INSERT INTO invoice_lessons (invoice_id, lesson_id, position) VALUES (?, ?, ?)",
			inv.ID, lid, i); err != nil {
			return err
		}
	}
	return nil
}

func (q *queries) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", string(id))
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := q.loadLessonIDs(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (q *queries) ListInvoices(ctx context.Context, f billing.InvoiceFilter) ([]*billing.Invoice, error) {
	query := "SELECT " + invoiceColumns + " FROM invoices"
	var conds []string
	var args []any
	if f.Type != "" {
		conds = append(conds, "invoice_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.TeacherID != "" {
		conds = append(conds, "teacher_id = ?")
		args = append(args, string(f.TeacherID))
	}
	if f.StudentID != "" {
		conds = append(conds, "student_id = ?")
		args = append(args, string(f.StudentID))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY number"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, inv := range out {
		if err := q.loadLessonIDs(ctx, inv); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (q *queries) ListInvoiceNumbers(ctx context.Context, prefix string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT number FROM invoices WHERE number LIKE ? ORDER BY number", prefix+"-%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (q *queries) loadLessonIDs(ctx context.Context, inv *billing.Invoice) error {
	rows, err := q.db.QueryContext(ctx,
		"SELECT lesson_id FROM invoice_lessons WHERE invoice_id = ? ORDER BY position", inv.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	inv.LessonIDs = nil
	for rows.Next() {
		var lid string
		if err := rows.Scan(&lid); err != nil {
			return err
		}
		inv.LessonIDs = append(inv.LessonIDs, billing.LessonID(lid))
	}
	return rows.Err()
}

func scanInvoice(row rowScanner) (*billing.Invoice, error) {
	var (
		inv                                   billing.Invoice
		teacherID, studentID, createdBy       sql.NullString
		approvedBy, rejectedBy, lastEditedBy  sql.NullString
		balance, createdAt                    string
		dueDate                               sql.NullString
		approvedAt, rejectedAt, lastEditedAt  sql.NullString
	)
	err := row.Scan(
		&inv.ID, &inv.Number, &inv.Type, &teacherID, &studentID, &balance,
		&inv.Status, &dueDate, &inv.Notes, &createdAt, &createdBy,
		&approvedBy, &approvedAt,
		&rejectedBy, &rejectedAt, &inv.RejectionReason,
		&lastEditedBy, &lastEditedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.TeacherID = billing.AccountID(teacherID.String)
	inv.StudentID = billing.AccountID(studentID.String)
	inv.PaymentBalance = parseDec(balance)
	if dueDate.Valid {
		inv.DueDate = parseTime(dueDate.String)
	}
	inv.CreatedAt = parseTime(createdAt)
	inv.CreatedBy = billing.AccountID(createdBy.String)
	inv.ApprovedBy = billing.AccountID(approvedBy.String)
	inv.ApprovedAt = parseTimePtr(approvedAt)
	inv.RejectedBy = billing.AccountID(rejectedBy.String)
	inv.RejectedAt = parseTimePtr(rejectedAt)
	inv.LastEditedBy = billing.AccountID(lastEditedBy.String)
	inv.LastEditedAt = parseTimePtr(lastEditedAt)
	return &inv, nil
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

func (q *queries) SaveApprovedEmail(ctx context.Context, rec billing.ApprovedEmail) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO approved_emails (email, approved_by, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET approved_by = excluded.approved_by`,
		strings.ToLower(rec.Email), nullStr(string(rec.ApprovedBy)), fmtTime(rec.CreatedAt))
	return err
}

func (q *queries) GetApprovedEmail(ctx context.Context, email string) (*billing.ApprovedEmail, error) {
	var (
		rec        billing.ApprovedEmail
		approvedBy sql.NullString
		createdAt  string
	)
	err := q.db.QueryRowContext(ctx,
		"SELECT email, approved_by, created_at FROM approved_emails WHERE email = ?",
		strings.ToLower(email),
	).Scan(&rec.Email, &approvedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.ApprovedBy = billing.AccountID(approvedBy.String)
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}

func (q *queries) DeleteApprovedEmail(ctx context.Context, email string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM approved_emails WHERE email = ?", strings.ToLower(email))
	return err
}

func (q *queries) SaveRegistrationRequest(ctx context.Context, req billing.RegistrationRequest) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO registration_requests (id, email, role, first_name, last_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		req.ID, strings.ToLower(req.Email), req.Role, req.FirstName, req.LastName, fmtTime(req.CreatedAt))
	return err
}

func (q *queries) ListRegistrationRequests(ctx context.Context, email string) ([]billing.RegistrationRequest, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, email, role, first_name, last_name, created_at
		FROM registration_requests WHERE email = ? ORDER BY created_at`,
		strings.ToLower(email))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.RegistrationRequest
	for rows.Next() {
		var req billing.RegistrationRequest
		var createdAt string
		if err := rows.Scan(&req.ID, &req.Email, &req.Role, &req.FirstName, &req.LastName, &createdAt); err != nil {
			return nil, err
		}
		req.CreatedAt = parseTime(createdAt)
		out = append(out, req)
	}
	return out, rows.Err()
}

func (q *queries) DeleteRegistrationRequests(ctx context.Context, email string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM registration_requests WHERE email = ?", strings.ToLower(email))
	return err
}

func (q *queries) SaveInvitation(ctx context.Context, inv billing.Invitation) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO invitations (token, email, role, issued_by, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		inv.Token, strings.ToLower(inv.Email), inv.Role, nullStr(string(inv.IssuedBy)),
		fmtTime(inv.ExpiresAt), fmtTime(inv.CreatedAt))
	return err
}

func (q *queries) GetInvitation(ctx context.Context, token string) (*billing.Invitation, error) {
	var (
		inv                  billing.Invitation
		issuedBy             sql.NullString
		expiresAt, createdAt string
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT token, email, role, issued_by, expires_at, created_at
		FROM invitations WHERE token = ?`, token,
	).Scan(&inv.Token, &inv.Email, &inv.Role, &issuedBy, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inv.IssuedBy = billing.AccountID(issuedBy.String)
	inv.ExpiresAt = parseTime(expiresAt)
	inv.CreatedAt = parseTime(createdAt)
	return &inv, nil
}

func (q *queries) DeleteInvitation(ctx context.Context, token string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM invitations WHERE token = ?", token)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	if serr.ExtendedCode != sqlite3.ErrConstraintUnique && serr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
		return false
	}
	return strings.Contains(serr.Error(), constraint)
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: fmtTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func parseDec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
