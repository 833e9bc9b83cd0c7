package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenza/academy-billing/billing"
	"github.com/cadenza/academy-billing/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func saveTeacher(t *testing.T, store *sqlite.Store, id, email string) *billing.Account {
	t.Helper()
	a := &billing.Account{
		ID:        billing.AccountID(id),
		Email:     email,
		FirstName: "Sarah",
		LastName:  "Chen",
		Role:      billing.RoleTeacher,
		Approved:  true,
		Teacher: &billing.TeacherProfile{
			HourlyRate:  billing.MustDecimal("80"),
			Instruments: "piano,violin",
		},
		CreatedAt: time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveAccount(context.Background(), a))
	return a
}

func saveStudent(t *testing.T, store *sqlite.Store, id, email string) *billing.Account {
	t.Helper()
	a := &billing.Account{
		ID:        billing.AccountID(id),
		Email:     email,
		FirstName: "Alice",
		LastName:  "Johnson",
		Role:      billing.RoleStudent,
		Approved:  true,
		Student:   &billing.StudentProfile{AssignedTeacher: "t1"},
		CreatedAt: time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveAccount(context.Background(), a))
	return a
}

func saveLesson(t *testing.T, store *sqlite.Store, id string, teacher, student billing.AccountID) *billing.Lesson {
	t.Helper()
	completed := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	l := &billing.Lesson{
		ID:            billing.LessonID(id),
		TeacherID:     teacher,
		StudentID:     student,
		Type:          billing.LessonInPerson,
		Duration:      billing.MustDecimal("1.5"),
		TeacherRate:   billing.MustDecimal("80"),
		StudentRate:   billing.MustDecimal("100"),
		Status:        billing.LessonCompleted,
		ScheduledDate: completed,
		CompletedDate: &completed,
		CreatedAt:     completed,
		UpdatedAt:     completed,
	}
	require.NoError(t, store.SaveLesson(context.Background(), l))
	return l
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestAccount_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saveTeacher(t, store, "t1", "Sarah.Chen@X.Test")

	got, err := store.GetAccount(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "sarah.chen@x.test", got.Email, "emails stored lowercase")
	assert.Equal(t, billing.RoleTeacher, got.Role)
	require.NotNil(t, got.Teacher)
	assert.True(t, got.Teacher.HourlyRate.Equal(billing.MustDecimal("80")))
	assert.Equal(t, "piano,violin", got.Teacher.Instruments)
	assert.Nil(t, got.Student)

	byEmail, err := store.GetAccountByEmail(ctx, "SARAH.CHEN@x.test")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, got.ID, byEmail.ID)
}

func TestAccount_MissReturnsNilNotError(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetAccount(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAccount_DuplicateEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saveTeacher(t, store, "t1", "dup@x.test")

	err := store.SaveAccount(ctx, &billing.Account{
		ID:        "t2",
		Email:     "dup@x.test",
		Role:      billing.RoleTeacher,
		Teacher:   &billing.TeacherProfile{HourlyRate: billing.MustDecimal("80")},
		CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, billing.ErrDuplicateEmail)
}

func TestAccount_UpsertUpdatesInPlace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := saveTeacher(t, store, "t1", "t@x.test")
	a.Teacher.HourlyRate = billing.MustDecimal("95")
	a.Approved = false
	require.NoError(t, store.SaveAccount(ctx, a))

	got, err := store.GetAccount(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.Teacher.HourlyRate.Equal(billing.MustDecimal("95")))
	assert.False(t, got.Approved)

	all, err := store.ListAccounts(ctx, billing.RoleTeacher)
	require.NoError(t, err)
	assert.Len(t, all, 1, "upsert must not duplicate the row")
}

func TestFindStudentByName_CaseInsensitive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saveStudent(t, store, "s1", "alice@x.test")

	got, err := store.FindStudentByName(ctx, "ALICE", "johnson")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, billing.AccountID("s1"), got.ID)

	miss, err := store.FindStudentByName(ctx, "Alice", "Smith")
	require.NoError(t, err)
	assert.Nil(t, miss)
}

// =============================================================================
// RATE SETTINGS
// =============================================================================

func TestRateSettings_RoundTripAndUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	none, err := store.GetRateSettings(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, store.SaveRateSettings(ctx, billing.RateSettings{
		OnlineTeacherRate:   billing.MustDecimal("45"),
		OnlineStudentRate:   billing.MustDecimal("60"),
		InPersonStudentRate: billing.MustDecimal("100"),
	}))
	require.NoError(t, store.SaveRateSettings(ctx, billing.RateSettings{
		OnlineTeacherRate:   billing.MustDecimal("50"),
		OnlineStudentRate:   billing.MustDecimal("65"),
		InPersonStudentRate: billing.MustDecimal("110"),
	}))

	got, err := store.GetRateSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.OnlineTeacherRate.Equal(billing.MustDecimal("50")))
	assert.True(t, got.InPersonStudentRate.Equal(billing.MustDecimal("110")))
}

// =============================================================================
// LESSONS
// =============================================================================

func TestLesson_RoundTripKeepsExactDecimals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saveTeacher(t, store, "t1", "t@x.test")
	saveStudent(t, store, "s1", "s@x.test")

	l := &billing.Lesson{
		ID:            "l1",
		TeacherID:     "t1",
		StudentID:     "s1",
		Type:          billing.LessonOnline,
		Duration:      billing.MustDecimal("0.75"),
		TeacherRate:   billing.MustDecimal("33.33"),
		StudentRate:   billing.MustDecimal("66.67"),
		Status:        billing.LessonRequested,
		ScheduledDate: time.Date(2026, time.March, 12, 15, 30, 0, 0, time.UTC),
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.SaveLesson(ctx, l))

	got, err := store.GetLesson(ctx, "l1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "0.75", got.Duration.String())
	assert.Equal(t, "33.33", got.TeacherRate.String())
	assert.Equal(t, "66.67", got.StudentRate.String())
	assert.True(t, got.ScheduledDate.Equal(l.ScheduledDate))
	assert.Nil(t, got.CompletedDate)
}

func TestLesson_DeleteAccountCascades(t *testing.T) {
	// GIVEN: A teacher with a lesson on record
	// WHEN: The teacher's account row is deleted
	// THEN: The lesson goes with it, via the foreign key

	store := newTestStore(t)
	ctx := context.Background()

	saveTeacher(t, store, "t1", "t@x.test")
	saveStudent(t, store, "s1", "s@x.test")
	saveLesson(t, store, "l1", "t1", "s1")

	require.NoError(t, store.DeleteAccount(ctx, "t1"))

	gone, err := store.GetLesson(ctx, "l1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestLesson_ListByTeacher(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saveTeacher(t, store, "t1", "t@x.test")
	saveTeacher(t, store, "t2", "t2@x.test")
	saveStudent(t, store, "s1", "s@x.test")
	saveLesson(t, store, "l1", "t1", "s1")
	saveLesson(t, store, "l2", "t1", "s1")
	saveLesson(t, store, "l3", "t2", "s1")

	lessons, err := store.ListLessonsByTeacher(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, lessons, 2)
}

// =============================================================================
// INVOICES
// =============================================================================

func invoiceFixture(number string, lessonIDs ...billing.LessonID) *billing.Invoice {
	return &billing.Invoice{
		ID:             billing.InvoiceID("inv-" + number),
		Number:         number,
		Type:           billing.TeacherPayment,
		TeacherID:      "t1",
		PaymentBalance: billing.MustDecimal("325"),
		Status:         billing.InvoiceDraft,
		DueDate:        time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		LessonIDs:      lessonIDs,
		CreatedAt:      time.Now().UTC(),
		CreatedBy:      "t1",
	}
}

func TestInvoice_RoundTripPreservesLessonOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saveTeacher(t, store, "t1", "t@x.test")
	saveStudent(t, store, "s1", "s@x.test")
	saveLesson(t, store, "l1", "t1", "s1")
	saveLesson(t, store, "l2", "t1", "s1")
	saveLesson(t, store, "l3", "t1", "s1")

	// Attach order is not lexical order.
	inv := invoiceFixture("INV-2026-03-0001", "l2", "l3", "l1")
	require.NoError(t, store.SaveInvoice(ctx, inv))

	got, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, []billing.LessonID{"l2", "l3", "l1"}, got.LessonIDs)
	assert.True(t, got.PaymentBalance.Equal(billing.MustDecimal("325")))
	assert.True(t, got.DueDate.Equal(inv.DueDate))
	assert.Nil(t, got.ApprovedAt)
}

func TestInvoice_UpsertRewritesAssociation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saveTeacher(t, store, "t1", "t@x.test")
	saveStudent(t, store, "s1", "s@x.test")
	saveLesson(t, store, "l1", "t1", "s1")
	saveLesson(t, store, "l2", "t1", "s1")

	inv := invoiceFixture("INV-2026-03-0001", "l1", "l2")
	require.NoError(t, store.SaveInvoice(ctx, inv))

	inv.LessonIDs = []billing.LessonID{"l2"}
	inv.PaymentBalance = billing.MustDecimal("120")
	inv.Status = billing.InvoicePending
	require.NoError(t, store.SaveInvoice(ctx, inv))

	got, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, []billing.LessonID{"l2"}, got.LessonIDs)
	assert.Equal(t, billing.InvoicePending, got.Status)
	assert.True(t, got.PaymentBalance.Equal(billing.MustDecimal("120")))
}

func TestInvoice_DuplicateNumberRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saveTeacher(t, store, "t1", "t@x.test")
	require.NoError(t, store.SaveInvoice(ctx, invoiceFixture("INV-2026-03-0001")))

	dup := invoiceFixture("INV-2026-03-0001")
	dup.ID = "other-id"
	err := store.SaveInvoice(ctx, dup)
	assert.ErrorIs(t, err, billing.ErrDuplicateInvoiceNumber)
}

func TestInvoice_AuditFieldsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saveTeacher(t, store, "t1", "t@x.test")

	when := time.Date(2026, time.March, 20, 10, 0, 0, 0, time.UTC)
	inv := invoiceFixture("INV-2026-03-0001")
	inv.Status = billing.InvoiceRejected
	inv.RejectedBy = "mgmt-1"
	inv.RejectedAt = &when
	inv.RejectionReason = "lesson count looks wrong"
	require.NoError(t, store.SaveInvoice(ctx, inv))

	got, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.AccountID("mgmt-1"), got.RejectedBy)
	require.NotNil(t, got.RejectedAt)
	assert.True(t, got.RejectedAt.Equal(when))
	assert.Equal(t, "lesson count looks wrong", got.RejectionReason)
}

func TestInvoice_ListWithFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saveTeacher(t, store, "t1", "t@x.test")
	saveStudent(t, store, "s1", "s@x.test")

	teacherInv := invoiceFixture("INV-2026-03-0001")
	require.NoError(t, store.SaveInvoice(ctx, teacherInv))

	studentInv := &billing.Invoice{
		ID:             "inv-student",
		Number:         "INV-2026-03-0002",
		Type:           billing.StudentBilling,
		StudentID:      "s1",
		PaymentBalance: billing.MustDecimal("210"),
		Status:         billing.InvoicePending,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.SaveInvoice(ctx, studentInv))

	byType, err := store.ListInvoices(ctx, billing.InvoiceFilter{Type: billing.StudentBilling})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, studentInv.ID, byType[0].ID)

	byStatus, err := store.ListInvoices(ctx, billing.InvoiceFilter{Status: billing.InvoiceDraft})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, teacherInv.ID, byStatus[0].ID)

	byTeacher, err := store.ListInvoices(ctx, billing.InvoiceFilter{TeacherID: "t1"})
	require.NoError(t, err)
	assert.Len(t, byTeacher, 1)
}

func TestInvoice_ListNumbersByMonthPrefix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saveTeacher(t, store, "t1", "t@x.test")
	for _, n := range []string{"INV-2026-03-0001", "INV-2026-03-0002", "INV-2026-04-0001"} {
		inv := invoiceFixture(n)
		require.NoError(t, store.SaveInvoice(ctx, inv))
	}

	march, err := store.ListInvoiceNumbers(ctx, "INV-2026-03")
	require.NoError(t, err)
	assert.Equal(t, []string{"INV-2026-03-0001", "INV-2026-03-0002"}, march)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that saves an account and then fails
	// THEN: Nothing from the transaction is visible afterwards

	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx billing.Store) error {
		if err := tx.SaveAccount(ctx, &billing.Account{
			ID:        "t1",
			Email:     "t@x.test",
			Role:      billing.RoleTeacher,
			Teacher:   &billing.TeacherProfile{HourlyRate: billing.MustDecimal("80")},
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetAccount(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got, "rolled back")
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx billing.Store) error {
		return tx.SaveAccount(ctx, &billing.Account{
			ID:        "t1",
			Email:     "t@x.test",
			Role:      billing.RoleTeacher,
			Teacher:   &billing.TeacherProfile{HourlyRate: billing.MustDecimal("80")},
			CreatedAt: time.Now().UTC(),
		})
	})
	require.NoError(t, err)

	got, err := store.GetAccount(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
}

// =============================================================================
// REGISTRY
// =============================================================================

func TestRegistry_ApprovedEmailsAndRequests(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveApprovedEmail(ctx, billing.ApprovedEmail{
		Email: "Student@X.Test", ApprovedBy: "mgmt-1", CreatedAt: time.Now().UTC(),
	}))

	rec, err := store.GetApprovedEmail(ctx, "student@x.test")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, billing.AccountID("mgmt-1"), rec.ApprovedBy)

	require.NoError(t, store.SaveRegistrationRequest(ctx, billing.RegistrationRequest{
		ID: "r1", Email: "student@x.test", Role: billing.RoleStudent, CreatedAt: time.Now().UTC(),
	}))

	reqs, err := store.ListRegistrationRequests(ctx, "STUDENT@x.test")
	require.NoError(t, err)
	assert.Len(t, reqs, 1)

	require.NoError(t, store.DeleteApprovedEmail(ctx, "student@x.test"))
	require.NoError(t, store.DeleteRegistrationRequests(ctx, "student@x.test"))

	gone, err := store.GetApprovedEmail(ctx, "student@x.test")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRegistry_Invitations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inv := billing.Invitation{
		Token:     "tok-1",
		Email:     "invited@x.test",
		Role:      billing.RoleTeacher,
		IssuedBy:  "mgmt-1",
		ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveInvitation(ctx, inv))

	got, err := store.GetInvitation(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, billing.RoleTeacher, got.Role)

	require.NoError(t, store.DeleteInvitation(ctx, "tok-1"))
	gone, err := store.GetInvitation(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
