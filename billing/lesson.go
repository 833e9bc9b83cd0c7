/*
lesson.go - Lesson ledger entries

PURPOSE:
  A Lesson is the unit the money math runs on: who taught whom, for how
  long, at which locked-in rates. Invoices aggregate over lessons; nothing
  downstream ever re-derives a rate.

CRITICAL INVARIANTS:
  1. RATE LOCKING: TeacherRate and StudentRate are set exactly once, at
     construction. Changing RateSettings or a teacher's hourly rate later
     must not move money on existing lessons.
  2. PRECISION: Duration and both rates are decimal.Decimal. Cost is
     rate x duration with exact decimal arithmetic.
  3. BOUNDS: 0 < duration <= 24 hours. Anything else is a data-entry error.

STATUS FLOW:
  requested -> confirmed -> completed
  requested/confirmed -> cancelled
  No transition out of completed or cancelled.

SEE ALSO:
  - rates.go: Where the locked rates come from
  - invoice.go: How lessons aggregate into invoice balances
*/
package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LESSON
// =============================================================================

type Lesson struct {
	ID        LessonID
	TeacherID AccountID
	StudentID AccountID
	Type      LessonType

	// Duration in hours. Locked rates in currency units per hour.
	Duration    decimal.Decimal
	TeacherRate decimal.Decimal
	StudentRate decimal.Decimal

	Status        LessonStatus
	ScheduledDate time.Time
	CompletedDate *time.Time

	TeacherNotes string
	StudentNotes string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LessonSpec is the input to NewLesson. TeacherRate/StudentRate are explicit
// unset sentinels: nil means "resolve from current settings", a value means
// "lock exactly this".
type LessonSpec struct {
	Teacher       *Account
	Student       *Account
	Type          LessonType
	Duration      decimal.Decimal
	TeacherRate   *decimal.Decimal
	StudentRate   *decimal.Decimal
	Status        LessonStatus // defaults to requested
	ScheduledDate time.Time
	CompletedDate *time.Time
	TeacherNotes  string
}

// NewLesson constructs a lesson, resolving and locking rates. If either rate
// is unset in the spec, BOTH are resolved from the resolver so the pair stays
// consistent with a single settings snapshot; a provided rate then overrides
// its side.
func NewLesson(ctx context.Context, spec LessonSpec, resolver *RateResolver) (*Lesson, error) {
	if spec.Teacher == nil || !spec.Teacher.IsTeacher() {
		return nil, &ValidationError{Field: "teacher", Reason: "a teacher account is required"}
	}
	if spec.Student == nil || !spec.Student.IsStudent() {
		return nil, &ValidationError{Field: "student", Reason: "a student account is required"}
	}
	if err := validateDuration(spec.Duration); err != nil {
		return nil, err
	}
	lessonType := spec.Type
	if lessonType == "" {
		lessonType = LessonInPerson
	}
	if !lessonType.Valid() {
		return nil, &ValidationError{Field: "lesson_type", Reason: "unknown lesson type " + string(lessonType)}
	}

	teacherRate, studentRate := decimal.Zero, decimal.Zero
	if spec.TeacherRate == nil || spec.StudentRate == nil {
		var err error
		teacherRate, studentRate, err = resolver.Resolve(ctx, lessonType, spec.Teacher)
		if err != nil {
			return nil, err
		}
	}
	if spec.TeacherRate != nil {
		teacherRate = *spec.TeacherRate
	}
	if spec.StudentRate != nil {
		studentRate = *spec.StudentRate
	}
	if !teacherRate.IsPositive() {
		return nil, &ValidationError{Field: "teacher_rate", Reason: "must be greater than 0"}
	}
	if !studentRate.IsPositive() {
		return nil, &ValidationError{Field: "student_rate", Reason: "must be greater than 0"}
	}

	status := spec.Status
	if status == "" {
		status = LessonRequested
	}

	now := time.Now().UTC()
	scheduled := spec.ScheduledDate
	if scheduled.IsZero() {
		scheduled = now
	}
	completed := spec.CompletedDate
	if status == LessonCompleted && completed == nil {
		completed = &scheduled
	}

	return &Lesson{
		ID:            LessonID(uuid.NewString()),
		TeacherID:     spec.Teacher.ID,
		StudentID:     spec.Student.ID,
		Type:          lessonType,
		Duration:      spec.Duration,
		TeacherRate:   teacherRate,
		StudentRate:   studentRate,
		Status:        status,
		ScheduledDate: scheduled,
		CompletedDate: completed,
		TeacherNotes:  spec.TeacherNotes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func validateDuration(d decimal.Decimal) error {
	if !d.IsPositive() {
		return &ValidationError{Field: "duration", Reason: "must be greater than 0"}
	}
	if d.GreaterThan(MaxLessonDurationHours) {
		return &ValidationError{Field: "duration", Reason: "must be at most 24 hours"}
	}
	return nil
}

// =============================================================================
// COST
// =============================================================================

// TotalCost is the pay-side cost: teacher_rate x duration. Kept under the
// legacy name; billing-side math goes through CostFor.
func (l *Lesson) TotalCost() decimal.Decimal {
	return l.TeacherRate.Mul(l.Duration)
}

// CostFor returns this lesson's contribution to an invoice of the given type.
// Teacher-payment invoices pay the teacher side; student-billing invoices
// bill the student side.
func (l *Lesson) CostFor(t InvoiceType) decimal.Decimal {
	if t == StudentBilling {
		return l.StudentRate.Mul(l.Duration)
	}
	return l.TeacherRate.Mul(l.Duration)
}

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

// Confirm moves a requested lesson to confirmed.
func (l *Lesson) Confirm(at time.Time) error {
	if l.Status != LessonRequested {
		return &ValidationError{Field: "status", Reason: "only requested lessons can be confirmed, current status " + string(l.Status)}
	}
	l.Status = LessonConfirmed
	l.UpdatedAt = at
	return nil
}

// Complete moves a confirmed lesson to completed and stamps the completion
// time.
func (l *Lesson) Complete(at time.Time) error {
	if l.Status != LessonConfirmed {
		return &ValidationError{Field: "status", Reason: "only confirmed lessons can be completed, current status " + string(l.Status)}
	}
	l.Status = LessonCompleted
	l.CompletedDate = &at
	l.UpdatedAt = at
	return nil
}

// Cancel cancels a requested or confirmed lesson. Completed and cancelled
// lessons stay where they are.
func (l *Lesson) Cancel(at time.Time) error {
	if l.Status != LessonRequested && l.Status != LessonConfirmed {
		return &ValidationError{Field: "status", Reason: "cannot cancel a " + string(l.Status) + " lesson"}
	}
	l.Status = LessonCancelled
	l.UpdatedAt = at
	return nil
}
