package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenza/academy-billing/billing"
	memstore "github.com/cadenza/academy-billing/billing/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func dec(s string) decimal.Decimal { return billing.MustDecimal(s) }

func decPtr(s string) *decimal.Decimal {
	d := billing.MustDecimal(s)
	return &d
}

func newTeacher(id, email, hourlyRate string) *billing.Account {
	return &billing.Account{
		ID:        billing.AccountID(id),
		Email:     email,
		FirstName: "Sarah",
		LastName:  "Chen",
		Role:      billing.RoleTeacher,
		Approved:  true,
		Teacher:   &billing.TeacherProfile{HourlyRate: dec(hourlyRate)},
	}
}

func newStudent(id, email string) *billing.Account {
	return &billing.Account{
		ID:        billing.AccountID(id),
		Email:     email,
		FirstName: "Alice",
		LastName:  "Johnson",
		Role:      billing.RoleStudent,
		Approved:  true,
		Student:   &billing.StudentProfile{},
	}
}

func newResolver(t *testing.T) (*billing.RateResolver, *memstore.Memory) {
	store := memstore.NewMemory()
	return billing.NewRateResolver(store), store
}

// =============================================================================
// RATE RESOLUTION TESTS
// =============================================================================

func TestNewLesson_InPerson_LocksTeacherHourlyAndSettingsStudentRate(t *testing.T) {
	// GIVEN: A teacher with an 80/h rate and default settings
	// WHEN: Creating an in-person lesson with no rate overrides
	// THEN: teacher_rate=80 (teacher's own), student_rate=100 (settings)

	resolver, _ := newResolver(t)
	ctx := context.Background()

	lesson, err := billing.NewLesson(ctx, billing.LessonSpec{
		Teacher:  newTeacher("t1", "t@x.test", "80"),
		Student:  newStudent("s1", "s@x.test"),
		Type:     billing.LessonInPerson,
		Duration: dec("1.5"),
	}, resolver)
	require.NoError(t, err)

	assert.True(t, lesson.TeacherRate.Equal(dec("80")))
	assert.True(t, lesson.StudentRate.Equal(dec("100")))
}

func TestNewLesson_Online_LocksBothRatesFromSettings(t *testing.T) {
	// GIVEN: Default settings (online 45 teacher / 60 student)
	// WHEN: Creating an online lesson
	// THEN: Both rates come from settings, not the teacher's hourly rate

	resolver, _ := newResolver(t)
	ctx := context.Background()

	lesson, err := billing.NewLesson(ctx, billing.LessonSpec{
		Teacher:  newTeacher("t1", "t@x.test", "80"),
		Student:  newStudent("s1", "s@x.test"),
		Type:     billing.LessonOnline,
		Duration: dec("1"),
	}, resolver)
	require.NoError(t, err)

	assert.True(t, lesson.TeacherRate.Equal(dec("45")))
	assert.True(t, lesson.StudentRate.Equal(dec("60")))
}

func TestNewLesson_RateOverrides_TakePrecedence(t *testing.T) {
	resolver, _ := newResolver(t)
	ctx := context.Background()

	lesson, err := billing.NewLesson(ctx, billing.LessonSpec{
		Teacher:     newTeacher("t1", "t@x.test", "80"),
		Student:     newStudent("s1", "s@x.test"),
		Type:        billing.LessonInPerson,
		Duration:    dec("1"),
		TeacherRate: decPtr("55.50"),
	}, resolver)
	require.NoError(t, err)

	assert.True(t, lesson.TeacherRate.Equal(dec("55.50")), "override wins")
	assert.True(t, lesson.StudentRate.Equal(dec("100")), "unset side still resolved")
}

func TestNewLesson_RateLocking_SettingsChangeDoesNotMoveMoney(t *testing.T) {
	// GIVEN: A lesson created under the default rates
	// WHEN: The academy rates change afterwards
	// THEN: The lesson's locked rates and cost are unchanged

	resolver, store := newResolver(t)
	ctx := context.Background()

	lesson, err := billing.NewLesson(ctx, billing.LessonSpec{
		Teacher:  newTeacher("t1", "t@x.test", "80"),
		Student:  newStudent("s1", "s@x.test"),
		Type:     billing.LessonOnline,
		Duration: dec("2"),
	}, resolver)
	require.NoError(t, err)

	require.NoError(t, store.SaveRateSettings(ctx, billing.RateSettings{
		OnlineTeacherRate:   dec("999"),
		OnlineStudentRate:   dec("999"),
		InPersonStudentRate: dec("999"),
	}))

	assert.True(t, lesson.TeacherRate.Equal(dec("45")))
	assert.True(t, lesson.StudentRate.Equal(dec("60")))
	assert.True(t, lesson.CostFor(billing.StudentBilling).Equal(dec("120")))
}

func TestRateResolver_LazilyPersistsDefaults(t *testing.T) {
	resolver, store := newResolver(t)
	ctx := context.Background()

	before, err := store.GetRateSettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, before, "no settings before first resolve")

	_, _, err = resolver.Resolve(ctx, billing.LessonOnline, nil)
	require.NoError(t, err)

	after, err := store.GetRateSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, after, "defaults persisted on first use")
	assert.True(t, after.InPersonStudentRate.Equal(dec("100")))
}

// =============================================================================
// DURATION BOUNDS
// =============================================================================

func TestNewLesson_DurationBounds(t *testing.T) {
	resolver, _ := newResolver(t)
	ctx := context.Background()

	spec := func(d string) billing.LessonSpec {
		return billing.LessonSpec{
			Teacher:  newTeacher("t1", "t@x.test", "80"),
			Student:  newStudent("s1", "s@x.test"),
			Type:     billing.LessonInPerson,
			Duration: dec(d),
		}
	}

	_, err := billing.NewLesson(ctx, spec("24"), resolver)
	assert.NoError(t, err, "exactly 24 hours is allowed")

	_, err = billing.NewLesson(ctx, spec("24.01"), resolver)
	assert.ErrorIs(t, err, billing.ErrValidation, "above 24 hours is rejected")

	_, err = billing.NewLesson(ctx, spec("0"), resolver)
	assert.ErrorIs(t, err, billing.ErrValidation, "zero duration is rejected")

	_, err = billing.NewLesson(ctx, spec("-1"), resolver)
	assert.ErrorIs(t, err, billing.ErrValidation, "negative duration is rejected")
}

func TestNewLesson_RequiresTeacherAndStudentRoles(t *testing.T) {
	resolver, _ := newResolver(t)
	ctx := context.Background()

	_, err := billing.NewLesson(ctx, billing.LessonSpec{
		Teacher:  newStudent("s1", "s@x.test"), // wrong role
		Student:  newStudent("s2", "s2@x.test"),
		Duration: dec("1"),
	}, resolver)
	assert.ErrorIs(t, err, billing.ErrValidation)

	_, err = billing.NewLesson(ctx, billing.LessonSpec{
		Teacher:  newTeacher("t1", "t@x.test", "80"),
		Student:  newTeacher("t2", "t2@x.test", "80"), // wrong role
		Duration: dec("1"),
	}, resolver)
	assert.ErrorIs(t, err, billing.ErrValidation)
}

// =============================================================================
// COST MATH
// =============================================================================

func TestLesson_CostFor_ExactDecimalArithmetic(t *testing.T) {
	// GIVEN: 1.5 hours at teacher_rate 80 and student_rate 100
	// THEN: pay side is exactly 120, billing side exactly 150

	lesson := &billing.Lesson{
		Duration:    dec("1.5"),
		TeacherRate: dec("80"),
		StudentRate: dec("100"),
	}

	assert.True(t, lesson.CostFor(billing.TeacherPayment).Equal(dec("120")))
	assert.True(t, lesson.CostFor(billing.StudentBilling).Equal(dec("150")))
	assert.True(t, lesson.TotalCost().Equal(dec("120")), "legacy pay-side name")
}

func TestLesson_CostFor_FractionalRates(t *testing.T) {
	lesson := &billing.Lesson{
		Duration:    dec("0.75"),
		TeacherRate: dec("33.33"),
		StudentRate: dec("66.67"),
	}

	assert.Equal(t, "24.9975", lesson.CostFor(billing.TeacherPayment).String())
	assert.Equal(t, "50.0025", lesson.CostFor(billing.StudentBilling).String())
}

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

func TestLesson_StatusFlow(t *testing.T) {
	resolver, _ := newResolver(t)
	ctx := context.Background()
	now := time.Now().UTC()

	lesson, err := billing.NewLesson(ctx, billing.LessonSpec{
		Teacher:  newTeacher("t1", "t@x.test", "80"),
		Student:  newStudent("s1", "s@x.test"),
		Type:     billing.LessonInPerson,
		Duration: dec("1"),
	}, resolver)
	require.NoError(t, err)
	require.Equal(t, billing.LessonRequested, lesson.Status)

	require.NoError(t, lesson.Confirm(now))
	assert.Equal(t, billing.LessonConfirmed, lesson.Status)

	require.NoError(t, lesson.Complete(now))
	assert.Equal(t, billing.LessonCompleted, lesson.Status)
	require.NotNil(t, lesson.CompletedDate)

	assert.Error(t, lesson.Cancel(now), "completed lessons cannot be cancelled")
	assert.Error(t, lesson.Confirm(now), "completed lessons cannot be re-confirmed")
}

func TestLesson_CompletedStatusAtCreation_StampsCompletionDate(t *testing.T) {
	resolver, _ := newResolver(t)
	ctx := context.Background()
	date := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

	lesson, err := billing.NewLesson(ctx, billing.LessonSpec{
		Teacher:       newTeacher("t1", "t@x.test", "80"),
		Student:       newStudent("s1", "s@x.test"),
		Type:          billing.LessonInPerson,
		Duration:      dec("1"),
		Status:        billing.LessonCompleted,
		ScheduledDate: date,
	}, resolver)
	require.NoError(t, err)

	require.NotNil(t, lesson.CompletedDate)
	assert.Equal(t, date, *lesson.CompletedDate)
}
