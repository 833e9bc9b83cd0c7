/*
Package billing contains the core domain of the academy billing engine.

PURPOSE:
  This package holds the business rules for the dual-rate billing system:
  lessons are taught by teachers and billed to students at two different
  hourly rates. The school pays the teacher at teacher_rate and bills the
  student at student_rate for the same lesson.

KEY CONCEPTS IN THIS FILE (types.go):
  - LessonType / LessonStatus: What kind of lesson, and where it is in its
    lifecycle
  - InvoiceType / InvoiceStatus: Which side of the money flow an invoice
    covers, and where it is in the approval workflow
  - RateSettings: The academy-wide rate configuration record
  - ID types: Type-safe identifiers for accounts, lessons, invoices

DESIGN PRINCIPLES:
  1. Precision: All money uses decimal.Decimal. Never binary floating point.
  2. Rate locking: A lesson's rates are fixed at creation time. Later changes
     to RateSettings or a teacher's hourly rate never touch existing lessons.
  3. Type safety: Strong typing for IDs prevents mixing account/lesson/invoice
     identifiers.

SEE ALSO:
  - rates.go: Rate resolution at lesson creation
  - lesson.go: Lesson ledger entries
  - invoice.go: Invoice aggregation and state machine
*/
package billing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type LessonID string
type InvoiceID string

// =============================================================================
// LESSON ENUMS
// =============================================================================

type LessonType string

const (
	LessonInPerson LessonType = "in_person"
	LessonOnline   LessonType = "online"
)

func (t LessonType) Valid() bool {
	return t == LessonInPerson || t == LessonOnline
}

type LessonStatus string

const (
	LessonRequested LessonStatus = "requested"
	LessonConfirmed LessonStatus = "confirmed"
	LessonCompleted LessonStatus = "completed"
	LessonCancelled LessonStatus = "cancelled"
)

// =============================================================================
// INVOICE ENUMS
// =============================================================================

// InvoiceType identifies the direction of the money flow.
type InvoiceType string

const (
	// TeacherPayment: money owed by the school to a teacher for lessons taught.
	TeacherPayment InvoiceType = "teacher_payment"
	// StudentBilling: money owed by a student to the school for lessons received.
	StudentBilling InvoiceType = "student_billing"
)

type InvoiceStatus string

const (
	InvoiceDraft    InvoiceStatus = "draft"
	InvoicePending  InvoiceStatus = "pending"
	InvoiceApproved InvoiceStatus = "approved"
	InvoicePaid     InvoiceStatus = "paid"
	InvoiceRejected InvoiceStatus = "rejected"
	InvoiceOverdue  InvoiceStatus = "overdue"
)

// =============================================================================
// RATE SETTINGS - Academy-wide rate configuration
// =============================================================================

// RateSettingsKey is the well-known key under which the single RateSettings
// record lives. Exactly one record exists; the storage layer enforces it by
// always reading and writing this key.
const RateSettingsKey = "1"

// RateSettings holds the academy-wide hourly rates.
//
// The in-person teacher rate is NOT here: in-person lessons pay the teacher
// their individual hourly rate. Everything else (online both sides, in-person
// student side) is configured academy-wide.
type RateSettings struct {
	OnlineTeacherRate   decimal.Decimal
	OnlineStudentRate   decimal.Decimal
	InPersonStudentRate decimal.Decimal
}

// DefaultTeacherHourlyRate is the fallback in-person teacher rate, kept from
// the legacy single-rate system.
var DefaultTeacherHourlyRate = decimal.NewFromInt(80)

// DefaultRateSettings returns the rates used when no settings record exists
// yet. The resolver lazily persists these on first use.
func DefaultRateSettings() RateSettings {
	return RateSettings{
		OnlineTeacherRate:   decimal.NewFromInt(45),
		OnlineStudentRate:   decimal.NewFromInt(60),
		InPersonStudentRate: decimal.NewFromInt(100),
	}
}

// MustDecimal parses a decimal literal. Panics on malformed input; only for
// constants and tests.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("billing: bad decimal literal: " + s)
	}
	return d
}

// MaxLessonDurationHours bounds a single lesson's duration. Anything above is
// a data-entry error, not a real lesson.
var MaxLessonDurationHours = decimal.NewFromInt(24)

// MaxStudentNameLength bounds the student name accepted in a batch submission.
const MaxStudentNameLength = 150
