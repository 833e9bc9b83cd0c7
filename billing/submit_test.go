package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cadenza/academy-billing/billing"
	memstore "github.com/cadenza/academy-billing/billing/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fakeNotifier struct {
	calls int
	err   error
}

func (n *fakeNotifier) GenerateAndSend(ctx context.Context, inv *billing.Invoice, lessons []*billing.Lesson, recipient *billing.Account) (string, error) {
	n.calls++
	if n.err != nil {
		return "", n.err
	}
	return "sent " + inv.Number, nil
}

func newSubmissionService(t *testing.T) (*billing.SubmissionService, *memstore.Memory, *fakeNotifier) {
	t.Helper()
	store := memstore.NewMemory()
	notifier := &fakeNotifier{}
	svc := billing.NewSubmissionService(store, notifier, zap.NewNop())
	return svc, store, notifier
}

func seedTeacher(t *testing.T, store *memstore.Memory) *billing.Account {
	t.Helper()
	teacher := newTeacher("t1", "sarah.chen@x.test", "80")
	require.NoError(t, store.SaveAccount(context.Background(), teacher))
	return teacher
}

func report(name, lessonType, duration string) billing.LessonReport {
	return billing.LessonReport{
		StudentName: name,
		LessonType:  billing.LessonType(lessonType),
		Duration:    dec(duration),
	}
}

// =============================================================================
// BATCH SHAPE
// =============================================================================

func TestSubmitLessons_ThreeLessonsTwoStudents_OneTeacherPlusTwoStudentInvoices(t *testing.T) {
	// GIVEN: A batch of 3 lessons across 2 distinct students
	// WHEN: The teacher submits
	// THEN: 1 teacher-payment invoice over all lessons, 2 student-billing
	//       invoices split by student, all numbered sequentially

	svc, store, _ := newSubmissionService(t)
	teacher := seedTeacher(t, store)
	ctx := context.Background()

	result, err := svc.SubmitLessons(ctx, teacher.ID, []billing.LessonReport{
		report("Alice Johnson", "in_person", "1.5"), // 120 / 150
		report("Alice Johnson", "online", "1"),      // 45 / 60
		report("Ben Okafor", "in_person", "2"),      // 160 / 200
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.LessonsCreated)
	require.NotNil(t, result.TeacherInvoice)
	require.Len(t, result.StudentInvoices, 2)

	// Teacher invoice covers the whole batch at teacher rates.
	assert.Equal(t, billing.TeacherPayment, result.TeacherInvoice.Type)
	assert.Len(t, result.TeacherInvoice.LessonIDs, 3)
	assert.True(t, result.TeacherInvoice.PaymentBalance.Equal(dec("325")))

	// Student invoices split by student, at student rates, in
	// first-appearance order.
	alice, ben := result.StudentInvoices[0], result.StudentInvoices[1]
	assert.Len(t, alice.LessonIDs, 2)
	assert.True(t, alice.PaymentBalance.Equal(dec("210")))
	assert.Len(t, ben.LessonIDs, 1)
	assert.True(t, ben.PaymentBalance.Equal(dec("200")))

	// Sequential numbers within the month.
	prefix := billing.InvoiceNumberPrefix(time.Now().UTC())
	assert.Equal(t, prefix+"-0001", result.TeacherInvoice.Number)
	assert.Equal(t, prefix+"-0002", alice.Number)
	assert.Equal(t, prefix+"-0003", ben.Number)
}

func TestSubmitLessons_EmptyBatch(t *testing.T) {
	svc, store, _ := newSubmissionService(t)
	teacher := seedTeacher(t, store)

	_, err := svc.SubmitLessons(context.Background(), teacher.ID, nil, nil)
	assert.ErrorIs(t, err, billing.ErrNoLessons)
}

func TestSubmitLessons_InvalidEntryAbortsWholeBatch(t *testing.T) {
	// GIVEN: A batch where the second entry has an impossible duration
	// WHEN: Submitting
	// THEN: Nothing is written - no lessons, no invoices, no students

	svc, store, _ := newSubmissionService(t)
	teacher := seedTeacher(t, store)
	ctx := context.Background()

	_, err := svc.SubmitLessons(ctx, teacher.ID, []billing.LessonReport{
		report("Alice Johnson", "in_person", "1"),
		report("Ben Okafor", "in_person", "25"), // over the 24h bound
	}, nil)
	require.ErrorIs(t, err, billing.ErrValidation)

	invoices, err := store.ListInvoices(ctx, billing.InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, invoices)

	lessons, err := store.ListLessonsByTeacher(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Empty(t, lessons)

	students, err := store.ListAccounts(ctx, billing.RoleStudent)
	require.NoError(t, err)
	assert.Empty(t, students, "no students created for an aborted batch")
}

func TestSubmitLessons_UnapprovedTeacherRejected(t *testing.T) {
	svc, store, _ := newSubmissionService(t)
	teacher := newTeacher("t1", "pending@x.test", "80")
	teacher.Approved = false
	require.NoError(t, store.SaveAccount(context.Background(), teacher))

	_, err := svc.SubmitLessons(context.Background(), teacher.ID,
		[]billing.LessonReport{report("Alice Johnson", "in_person", "1")}, nil)
	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestSubmitLessons_UnknownTeacher(t *testing.T) {
	svc, _, _ := newSubmissionService(t)

	_, err := svc.SubmitLessons(context.Background(), "ghost",
		[]billing.LessonReport{report("Alice Johnson", "in_person", "1")}, nil)
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

// =============================================================================
// STUDENT RESOLUTION
// =============================================================================

func TestSubmitLessons_CreatesStudentWithPlaceholderEmail(t *testing.T) {
	svc, store, _ := newSubmissionService(t)
	teacher := seedTeacher(t, store)
	ctx := context.Background()

	_, err := svc.SubmitLessons(ctx, teacher.ID,
		[]billing.LessonReport{report("Alice Johnson", "in_person", "1")}, nil)
	require.NoError(t, err)

	student, err := store.GetAccountByEmail(ctx, "alice.johnson@temp.com")
	require.NoError(t, err)
	require.NotNil(t, student)
	assert.True(t, student.Approved, "teacher vouches by reporting the lesson")
	assert.Equal(t, teacher.ID, student.Student.AssignedTeacher)

	approved, err := store.GetApprovedEmail(ctx, "alice.johnson@temp.com")
	require.NoError(t, err)
	assert.NotNil(t, approved)
}

func TestSubmitLessons_PlaceholderEmailCollision_NumericSuffix(t *testing.T) {
	// GIVEN: alice.johnson@temp.com is already taken by a different person
	// WHEN: A new "Alice Johnson" appears in a batch whose name lookup misses
	// THEN: The new student gets alice.johnson1@temp.com

	svc, store, _ := newSubmissionService(t)
	teacher := seedTeacher(t, store)
	ctx := context.Background()

	// Occupy the base address with a student whose NAME is different, so the
	// name match cannot reuse them.
	occupant := newStudent("s-old", "alice.johnson@temp.com")
	occupant.FirstName, occupant.LastName = "Alicia", "Johansson"
	require.NoError(t, store.SaveAccount(ctx, occupant))

	_, err := svc.SubmitLessons(ctx, teacher.ID,
		[]billing.LessonReport{report("Alice Johnson", "in_person", "1")}, nil)
	require.NoError(t, err)

	student, err := store.GetAccountByEmail(ctx, "alice.johnson1@temp.com")
	require.NoError(t, err)
	require.NotNil(t, student)
	assert.Equal(t, "Alice", student.FirstName)
	assert.Equal(t, "Johnson", student.LastName)
}

func TestSubmitLessons_ReusesExistingStudentByName(t *testing.T) {
	svc, store, _ := newSubmissionService(t)
	teacher := seedTeacher(t, store)
	ctx := context.Background()

	existing := newStudent("s1", "alice.real@x.test")
	require.NoError(t, store.SaveAccount(ctx, existing))

	result, err := svc.SubmitLessons(ctx, teacher.ID,
		[]billing.LessonReport{report("Alice Johnson", "in_person", "1")}, nil)
	require.NoError(t, err)

	require.Len(t, result.StudentInvoices, 1)
	assert.Equal(t, existing.ID, result.StudentInvoices[0].StudentID)

	students, err := store.ListAccounts(ctx, billing.RoleStudent)
	require.NoError(t, err)
	assert.Len(t, students, 1, "no duplicate student created")
}

func TestSubmitLessons_EmailPointingAtNonStudentRejected(t *testing.T) {
	svc, store, _ := newSubmissionService(t)
	teacher := seedTeacher(t, store)
	ctx := context.Background()

	other := newTeacher("t2", "other.teacher@x.test", "90")
	require.NoError(t, store.SaveAccount(ctx, other))

	r := report("Other Teacher", "in_person", "1")
	r.StudentEmail = "other.teacher@x.test"
	_, err := svc.SubmitLessons(ctx, teacher.ID, []billing.LessonReport{r}, nil)
	assert.ErrorIs(t, err, billing.ErrValidation)
}

// =============================================================================
// RATES AND DUE DATES
// =============================================================================

func TestSubmitLessons_RateOverridesLockedIntoLessons(t *testing.T) {
	svc, store, _ := newSubmissionService(t)
	teacher := seedTeacher(t, store)
	ctx := context.Background()

	r := report("Alice Johnson", "in_person", "1")
	r.TeacherRate = decPtr("70")
	r.StudentRate = decPtr("95")

	result, err := svc.SubmitLessons(ctx, teacher.ID, []billing.LessonReport{r}, nil)
	require.NoError(t, err)

	assert.True(t, result.TeacherInvoice.PaymentBalance.Equal(dec("70")))
	assert.True(t, result.StudentInvoices[0].PaymentBalance.Equal(dec("95")))
}

func TestSubmitLessons_StudentInvoicesDueIn14Days(t *testing.T) {
	svc, store, _ := newSubmissionService(t)
	teacher := seedTeacher(t, store)

	fixed := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return fixed }

	result, err := svc.SubmitLessons(context.Background(), teacher.ID,
		[]billing.LessonReport{report("Alice Johnson", "in_person", "1")}, nil)
	require.NoError(t, err)

	want := fixed.AddDate(0, 0, billing.StudentInvoiceDueDays)
	assert.Equal(t, want, result.StudentInvoices[0].DueDate)
	assert.Equal(t, want, result.TeacherInvoice.DueDate)
}

func TestSubmitLessons_ExplicitTeacherDueDate(t *testing.T) {
	svc, store, _ := newSubmissionService(t)
	teacher := seedTeacher(t, store)

	due := time.Date(2026, time.April, 30, 0, 0, 0, 0, time.UTC)
	result, err := svc.SubmitLessons(context.Background(), teacher.ID,
		[]billing.LessonReport{report("Alice Johnson", "in_person", "1")}, &due)
	require.NoError(t, err)

	assert.Equal(t, due, result.TeacherInvoice.DueDate)
}

// =============================================================================
// NOTIFICATION POLICY
// =============================================================================

func TestSubmitLessons_NotificationFailure_WarnsButCommits(t *testing.T) {
	// GIVEN: A notifier that always fails
	// WHEN: A valid batch is submitted
	// THEN: The invoices are committed and the failure surfaces as a warning

	svc, store, notifier := newSubmissionService(t)
	teacher := seedTeacher(t, store)
	notifier.err = errors.New("smtp down")
	ctx := context.Background()

	result, err := svc.SubmitLessons(ctx, teacher.ID,
		[]billing.LessonReport{report("Alice Johnson", "in_person", "1")}, nil)
	require.NoError(t, err, "notification failure is not a submission failure")
	assert.NotEmpty(t, result.Warning)

	invoices, err := store.ListInvoices(ctx, billing.InvoiceFilter{})
	require.NoError(t, err)
	assert.Len(t, invoices, 2, "teacher + student invoices committed")
}

func TestSubmitLessons_NotifierCalledOncePerBatch(t *testing.T) {
	svc, store, notifier := newSubmissionService(t)
	teacher := seedTeacher(t, store)

	_, err := svc.SubmitLessons(context.Background(), teacher.ID, []billing.LessonReport{
		report("Alice Johnson", "in_person", "1"),
		report("Ben Okafor", "in_person", "1"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, notifier.calls, "one teacher statement per batch")
}
