/*
submit.go - Batch lesson submission orchestrator

PURPOSE:
  A teacher reports a batch of taught lessons; this turns the batch into
  durable billing state in one transaction:

    validate batch ──▶ resolve/create students ──▶ create lessons (completed)
        ──▶ one teacher-payment invoice over the whole batch
        ──▶ one student-billing invoice per distinct student
        ──▶ commit ──▶ notify (best-effort, outside the transaction)

ERROR POLICY:
  - Empty batch: ErrNoLessons, nothing written.
  - Any invalid entry aborts the WHOLE batch before any write (atomic).
  - Storage failure rolls the transaction back; no partial lessons/invoices.
  - Notification failure is logged and reported as a warning on the result.
    The invoices are already committed and stay committed.

STUDENT RESOLUTION:
  By email if provided, else by (first, last) name match, else a new student
  record is created, auto-approved (the teacher vouches by reporting the
  lesson) under a deterministic placeholder email:
  "alice johnson" -> alice.johnson@temp.com, with a numeric suffix on
  collision (joey.smith1@temp.com).
*/
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StudentInvoiceDueDays is how long a student has to pay a billing invoice
// created by batch submission.
const StudentInvoiceDueDays = 14

// =============================================================================
// NOTIFIER - external PDF/email collaborator
// =============================================================================

// Notifier renders an invoice document and sends it. Implementations live in
// the notify package; the orchestrator treats them as fallible and
// non-blocking.
type Notifier interface {
	GenerateAndSend(ctx context.Context, inv *Invoice, lessons []*Lesson, recipient *Account) (message string, err error)
}

// =============================================================================
// SUBMISSION INPUT
// =============================================================================

// LessonReport is one taught lesson in a submission batch.
type LessonReport struct {
	StudentName  string `json:"student_name" validate:"required,max=150"`
	StudentEmail string `json:"student_email" validate:"omitempty,email"`

	LessonType LessonType      `json:"lesson_type"`
	Duration   decimal.Decimal `json:"duration"`

	// Optional rate overrides; nil means resolve from current settings.
	TeacherRate *decimal.Decimal `json:"teacher_rate"`
	StudentRate *decimal.Decimal `json:"student_rate"`

	Date  time.Time `json:"date"`
	Notes string    `json:"notes"`
}

// SubmissionResult is what the caller presents back to the teacher.
type SubmissionResult struct {
	TeacherInvoice  *Invoice
	StudentInvoices []*Invoice
	LessonsCreated  int

	// Warning is set when the post-commit notification failed. The data is
	// committed regardless.
	Warning string
}

// =============================================================================
// SUBMISSION SERVICE
// =============================================================================

type SubmissionService struct {
	Store    TxStore
	Notifier Notifier
	Logger   *zap.Logger
	Now      func() time.Time

	validate *validator.Validate
}

func NewSubmissionService(store TxStore, notifier Notifier, logger *zap.Logger) *SubmissionService {
	return &SubmissionService{
		Store:    store,
		Notifier: notifier,
		Logger:   logger,
		Now:      func() time.Time { return time.Now().UTC() },
		validate: validator.New(),
	}
}

// SubmitLessons runs the full batch submission for one teacher. dueDate
// applies to the teacher-payment invoice; nil means the standard 14 days.
func (s *SubmissionService) SubmitLessons(ctx context.Context, teacherID AccountID, reports []LessonReport, dueDate *time.Time) (*SubmissionResult, error) {
	if len(reports) == 0 {
		return nil, ErrNoLessons
	}

	teacher, err := s.Store.GetAccount(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if teacher == nil {
		return nil, &NotFoundError{Kind: "teacher", ID: string(teacherID)}
	}
	if !teacher.Can(CapSubmitLessons) {
		return nil, &ValidationError{Field: "teacher", Reason: "account is not approved to submit lessons"}
	}

	// Validate the whole batch before touching storage.
	for i, r := range reports {
		if err := s.validateReport(i, r); err != nil {
			return nil, err
		}
	}

	now := s.Now()
	teacherDue := now.AddDate(0, 0, StudentInvoiceDueDays)
	if dueDate != nil {
		teacherDue = *dueDate
	}

	result := &SubmissionResult{}
	var teacherLessons []*Lesson

	err = s.Store.WithTx(ctx, func(tx Store) error {
		resolver := NewRateResolver(tx)

		// Per-student lesson grouping, in first-appearance order.
		var studentOrder []AccountID
		lessonsByStudent := map[AccountID][]*Lesson{}
		studentsByID := map[AccountID]*Account{}

		for _, r := range reports {
			student, err := s.resolveStudent(ctx, tx, teacher, r)
			if err != nil {
				return err
			}

			date := r.Date
			if date.IsZero() {
				date = now
			}
			lesson, err := NewLesson(ctx, LessonSpec{
				Teacher:       teacher,
				Student:       student,
				Type:          r.LessonType,
				Duration:      r.Duration,
				TeacherRate:   r.TeacherRate,
				StudentRate:   r.StudentRate,
				Status:        LessonCompleted,
				ScheduledDate: date,
				CompletedDate: &date,
				TeacherNotes:  r.Notes,
			}, resolver)
			if err != nil {
				return err
			}
			if err := tx.SaveLesson(ctx, lesson); err != nil {
				return err
			}

			if _, seen := studentsByID[student.ID]; !seen {
				studentOrder = append(studentOrder, student.ID)
				studentsByID[student.ID] = student
			}
			lessonsByStudent[student.ID] = append(lessonsByStudent[student.ID], lesson)
			teacherLessons = append(teacherLessons, lesson)
		}

		// One teacher-payment invoice over the whole batch.
		teacherInvoice, err := s.createInvoice(ctx, tx, InvoiceSpec{
			Type:      TeacherPayment,
			Party:     teacher,
			Status:    InvoicePending,
			DueDate:   teacherDue,
			CreatedBy: teacher.ID,
		}, teacherLessons, now)
		if err != nil {
			return err
		}
		result.TeacherInvoice = teacherInvoice

		// One student-billing invoice per distinct student.
		for _, sid := range studentOrder {
			studentInvoice, err := s.createInvoice(ctx, tx, InvoiceSpec{
				Type:      StudentBilling,
				Party:     studentsByID[sid],
				Status:    InvoicePending,
				DueDate:   now.AddDate(0, 0, StudentInvoiceDueDays),
				CreatedBy: teacher.ID,
			}, lessonsByStudent[sid], now)
			if err != nil {
				return err
			}
			result.StudentInvoices = append(result.StudentInvoices, studentInvoice)
		}

		result.LessonsCreated = len(teacherLessons)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("lesson batch submitted",
		zap.String("teacher", string(teacher.ID)),
		zap.Int("lessons", result.LessonsCreated),
		zap.Int("student_invoices", len(result.StudentInvoices)),
		zap.String("teacher_invoice", result.TeacherInvoice.Number))

	// Best-effort notification. The transaction above is already committed;
	// a failure here is a warning, never a rollback.
	if s.Notifier != nil {
		if _, err := s.Notifier.GenerateAndSend(ctx, result.TeacherInvoice, teacherLessons, teacher); err != nil {
			nerr := &NotificationError{Stage: "send", Err: err}
			s.Logger.Warn("invoice notification failed",
				zap.String("invoice", result.TeacherInvoice.Number), zap.Error(err))
			result.Warning = nerr.Error()
		}
	}

	return result, nil
}

// createInvoice numbers, fills, recalculates, and saves one invoice inside
// the submission transaction.
func (s *SubmissionService) createInvoice(ctx context.Context, tx Store, spec InvoiceSpec, lessons []*Lesson, now time.Time) (*Invoice, error) {
	number, err := NextInvoiceNumber(ctx, tx, now)
	if err != nil {
		return nil, err
	}
	spec.Number = number

	inv, err := NewInvoice(spec)
	if err != nil {
		return nil, err
	}
	if err := inv.AttachLessons(lessons, spec.CreatedBy, now); err != nil {
		return nil, err
	}
	if err := inv.Recalculate(lessons, spec.CreatedBy, now); err != nil {
		return nil, err
	}
	if err := tx.SaveInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// =============================================================================
// BATCH VALIDATION
// =============================================================================

func (s *SubmissionService) validateReport(i int, r LessonReport) error {
	field := func(name string) string { return fmt.Sprintf("lessons[%d].%s", i, name) }

	if err := s.validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ValidationError{Field: field(strings.ToLower(verrs[0].Field())), Reason: "failed " + verrs[0].Tag() + " check"}
		}
		return &ValidationError{Field: field("entry"), Reason: err.Error()}
	}
	if strings.TrimSpace(r.StudentName) == "" {
		return &ValidationError{Field: field("student_name"), Reason: "must not be blank"}
	}
	if err := validateDuration(r.Duration); err != nil {
		return &ValidationError{Field: field("duration"), Reason: err.(*ValidationError).Reason}
	}
	if r.TeacherRate != nil && !r.TeacherRate.IsPositive() {
		return &ValidationError{Field: field("teacher_rate"), Reason: "must be greater than 0"}
	}
	if r.StudentRate != nil && !r.StudentRate.IsPositive() {
		return &ValidationError{Field: field("student_rate"), Reason: "must be greater than 0"}
	}
	if r.LessonType != "" && !r.LessonType.Valid() {
		return &ValidationError{Field: field("lesson_type"), Reason: "unknown lesson type " + string(r.LessonType)}
	}
	return nil
}

// =============================================================================
// STUDENT RESOLUTION
// =============================================================================

func (s *SubmissionService) resolveStudent(ctx context.Context, tx Store, teacher *Account, r LessonReport) (*Account, error) {
	// 1. Exact email match.
	if r.StudentEmail != "" {
		existing, err := tx.GetAccountByEmail(ctx, strings.ToLower(r.StudentEmail))
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if !existing.IsStudent() {
				return nil, &ValidationError{Field: "student_email", Reason: r.StudentEmail + " belongs to a non-student account"}
			}
			return existing, nil
		}
	}

	first, last := splitName(r.StudentName)

	// 2. Name match among existing students.
	existing, err := tx.FindStudentByName(ctx, first, last)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	// 3. Create a new student, auto-approved: the teacher vouches for them
	// by reporting the lesson.
	email := r.StudentEmail
	if email == "" {
		email, err = s.placeholderEmail(ctx, tx, r.StudentName)
		if err != nil {
			return nil, err
		}
	}

	student := &Account{
		Email:     email,
		FirstName: first,
		LastName:  last,
		Role:      RoleStudent,
		Approved:  true,
		Student:   &StudentProfile{AssignedTeacher: teacher.ID},
		CreatedAt: s.Now(),
	}
	if err := student.normalize(); err != nil {
		return nil, err
	}
	student.Approved = true
	student.ID = AccountID(uuid.NewString())

	if err := tx.SaveAccount(ctx, student); err != nil {
		return nil, err
	}
	if err := tx.SaveApprovedEmail(ctx, ApprovedEmail{Email: student.Email, ApprovedBy: teacher.ID, CreatedAt: s.Now()}); err != nil {
		return nil, err
	}
	s.Logger.Info("student auto-created from lesson report",
		zap.String("email", student.Email), zap.String("teacher", string(teacher.ID)))
	return student, nil
}

// placeholderEmail synthesizes a deterministic unique address for a student
// who was reported by name only: "Alice Johnson" -> alice.johnson@temp.com,
// then alice.johnson1@temp.com, alice.johnson2@temp.com... on collision.
func (s *SubmissionService) placeholderEmail(ctx context.Context, tx Store, name string) (string, error) {
	base := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", ".")

	candidate := base + "@temp.com"
	for counter := 1; ; counter++ {
		existing, err := tx.GetAccountByEmail(ctx, candidate)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d@temp.com", base, counter)
	}
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(name))
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
