/*
invoice.go - Invoice aggregate and approval state machine

PURPOSE:
  An Invoice covers a set of lessons on exactly one side of the money flow:
  a teacher-payment invoice (school owes teacher) or a student-billing
  invoice (student owes school). Its balance is always derived from the
  lesson set, never independently settable.

STATE MACHINE:

     draft ──▶ pending ──▶ approved ──▶ paid
       │          │            │
       │          ▼            ▼
       └─────▶ rejected     overdue ──▶ paid
                              ▲
       (draft/pending/approved┘  time-based, applied by a scheduler)

  - Rejection requires a non-empty reason and is legal from draft or pending.
  - paid and rejected are terminal.
  - The state machine validates reachability; the overdue sweep itself is an
    external scheduler concern (see api/overdue.go).

EDITABILITY:
  Content (lesson set, notes, balance recalculation) may change only while
  status is draft or pending. Any edit attempt afterwards fails with
  ErrNotEditable. Edits stamp LastEditedBy/LastEditedAt.

BALANCE:
  payment_balance == sum over lessons of CostFor(invoice_type), recomputed
  whenever the lesson set changes or on explicit recalculation. An empty
  lesson set means a zero balance. Exact decimal arithmetic throughout; this
  is literally how much money changes hands.

SEE ALSO:
  - lesson.go: CostFor, the per-lesson contribution
  - numbering.go: Invoice number generation
*/
package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// INVOICE
// =============================================================================

type Invoice struct {
	ID     InvoiceID
	Number string // unique, INV-{year}-{month}-{seq}
	Type   InvoiceType

	// Exactly one of TeacherID/StudentID is set, matching Type.
	TeacherID AccountID
	StudentID AccountID

	LessonIDs      []LessonID
	PaymentBalance decimal.Decimal

	Status  InvoiceStatus
	DueDate time.Time
	Notes   string

	// Audit trail
	CreatedAt       time.Time
	CreatedBy       AccountID
	ApprovedBy      AccountID
	ApprovedAt      *time.Time
	RejectedBy      AccountID
	RejectedAt      *time.Time
	RejectionReason string
	LastEditedBy    AccountID
	LastEditedAt    *time.Time
}

// InvoiceSpec is the input to NewInvoice. Party must match Type: a teacher
// account for teacher_payment, a student account for student_billing.
type InvoiceSpec struct {
	Type      InvoiceType
	Party     *Account
	Number    string
	Status    InvoiceStatus // defaults to draft
	DueDate   time.Time
	CreatedBy AccountID
	Notes     string
}

// NewInvoice constructs an empty invoice. Lessons are attached afterwards;
// the balance starts at zero.
func NewInvoice(spec InvoiceSpec) (*Invoice, error) {
	if spec.Type != TeacherPayment && spec.Type != StudentBilling {
		return nil, &ValidationError{Field: "invoice_type", Reason: "unknown invoice type " + string(spec.Type)}
	}
	if spec.Party == nil {
		return nil, &ValidationError{Field: "party", Reason: "an account is required"}
	}
	if spec.Number == "" {
		return nil, &ValidationError{Field: "invoice_number", Reason: "must not be blank"}
	}

	inv := &Invoice{
		ID:             InvoiceID(uuid.NewString()),
		Number:         spec.Number,
		Type:           spec.Type,
		PaymentBalance: decimal.Zero,
		Status:         spec.Status,
		DueDate:        spec.DueDate,
		Notes:          spec.Notes,
		CreatedAt:      time.Now().UTC(),
		CreatedBy:      spec.CreatedBy,
	}
	if inv.Status == "" {
		inv.Status = InvoiceDraft
	}

	// Mutually exclusive party wiring: the invoice type decides which side
	// is populated, never both.
	switch spec.Type {
	case TeacherPayment:
		if !spec.Party.IsTeacher() {
			return nil, &ValidationError{Field: "teacher", Reason: "teacher_payment invoices belong to a teacher"}
		}
		inv.TeacherID = spec.Party.ID
	case StudentBilling:
		if !spec.Party.IsStudent() {
			return nil, &ValidationError{Field: "student", Reason: "student_billing invoices belong to a student"}
		}
		inv.StudentID = spec.Party.ID
	}
	return inv, nil
}

// PartyID returns whichever side is populated.
func (inv *Invoice) PartyID() AccountID {
	if inv.Type == TeacherPayment {
		return inv.TeacherID
	}
	return inv.StudentID
}

// =============================================================================
// AGGREGATOR - payment balance from the lesson set
// =============================================================================

// PaymentBalanceFor sums the per-lesson contribution for an invoice type:
// teacher_rate x duration for teacher_payment, student_rate x duration for
// student_billing. Exact decimal arithmetic, no floats anywhere.
func PaymentBalanceFor(t InvoiceType, lessons []*Lesson) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lessons {
		total = total.Add(l.CostFor(t))
	}
	return total
}

// Editable reports whether content edits are allowed in the current status.
func (inv *Invoice) Editable() bool {
	return inv.Status == InvoiceDraft || inv.Status == InvoicePending
}

// AttachLessons adds lessons to the invoice and recomputes the balance.
// The lessons slice must contain the full post-attach lesson set's records
// for the recomputation (callers load them from the store).
func (inv *Invoice) AttachLessons(lessons []*Lesson, by AccountID, at time.Time) error {
	if !inv.Editable() {
		return ErrNotEditable
	}
	for _, l := range lessons {
		if !inv.hasLesson(l.ID) {
			inv.LessonIDs = append(inv.LessonIDs, l.ID)
		}
	}
	inv.markEdited(by, at)
	return nil
}

// DetachLesson removes one lesson from the set. The caller recalculates with
// the remaining lesson records afterwards.
func (inv *Invoice) DetachLesson(id LessonID, by AccountID, at time.Time) error {
	if !inv.Editable() {
		return ErrNotEditable
	}
	kept := inv.LessonIDs[:0]
	for _, lid := range inv.LessonIDs {
		if lid != id {
			kept = append(kept, lid)
		}
	}
	inv.LessonIDs = kept
	inv.markEdited(by, at)
	return nil
}

// Recalculate re-derives the balance from the given lesson records. It does
// not change status and is idempotent: running it twice on the same lesson
// set yields the same balance. Locked invoices cannot be recalculated.
func (inv *Invoice) Recalculate(lessons []*Lesson, by AccountID, at time.Time) error {
	if !inv.Editable() {
		return ErrNotEditable
	}
	inv.PaymentBalance = PaymentBalanceFor(inv.Type, lessons)
	inv.markEdited(by, at)
	return nil
}

func (inv *Invoice) hasLesson(id LessonID) bool {
	for _, lid := range inv.LessonIDs {
		if lid == id {
			return true
		}
	}
	return false
}

func (inv *Invoice) markEdited(by AccountID, at time.Time) {
	inv.LastEditedBy = by
	inv.LastEditedAt = &at
}

// =============================================================================
// STATE MACHINE
// =============================================================================

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceDraft:    {InvoicePending, InvoiceRejected, InvoiceOverdue},
	InvoicePending:  {InvoiceApproved, InvoiceRejected, InvoiceOverdue},
	InvoiceApproved: {InvoicePaid, InvoiceOverdue},
	InvoiceOverdue:  {InvoicePaid},
	InvoicePaid:     {},
	InvoiceRejected: {},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to InvoiceStatus) bool {
	for _, next := range invoiceTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (inv *Invoice) transition(op string, to InvoiceStatus) error {
	if !CanTransition(inv.Status, to) {
		return &StateConflictError{Op: op, From: inv.Status, To: to}
	}
	inv.Status = to
	return nil
}

// Submit marks a draft invoice ready for review.
func (inv *Invoice) Submit() error {
	return inv.transition("submit", InvoicePending)
}

// Approve moves a pending invoice to approved and stamps the approver.
func (inv *Invoice) Approve(by AccountID, at time.Time) error {
	if err := inv.transition("approve", InvoiceApproved); err != nil {
		return err
	}
	inv.ApprovedBy = by
	inv.ApprovedAt = &at
	return nil
}

// Reject moves a draft or pending invoice to rejected. A non-empty reason is
// required and recorded alongside who rejected and when.
func (inv *Invoice) Reject(by AccountID, reason string, at time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return ErrRejectionReasonRequired
	}
	if err := inv.transition("reject", InvoiceRejected); err != nil {
		return err
	}
	inv.RejectedBy = by
	inv.RejectedAt = &at
	inv.RejectionReason = reason
	return nil
}

// MarkPaid records that payment was issued (teacher_payment) or received
// (student_billing).
func (inv *Invoice) MarkPaid() error {
	return inv.transition("mark paid", InvoicePaid)
}

// MarkOverdue is the target of the time-based sweep. The state machine only
// validates reachability here; deciding WHEN to call it is the scheduler's
// job.
func (inv *Invoice) MarkOverdue() error {
	return inv.transition("mark overdue", InvoiceOverdue)
}

// PastDue reports whether the due date has passed without the invoice
// reaching a settled state.
func (inv *Invoice) PastDue(now time.Time) bool {
	if inv.DueDate.IsZero() {
		return false
	}
	switch inv.Status {
	case InvoicePaid, InvoiceRejected, InvoiceOverdue:
		return false
	}
	return now.After(inv.DueDate)
}
