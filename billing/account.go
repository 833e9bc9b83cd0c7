/*
account.go - Accounts for management, teachers, and students

PURPOSE:
  One account record per person, tagged by role, with role-specific profile
  data attached only for the role that uses it. Role checks go through a
  capability set, not string comparison scattered around the codebase.

ROLES:
  Management: runs the academy. Always auto-approved and fully privileged.
  Teacher:    teaches lessons, submits batches for invoicing. Needs approval.
  Student:    takes lessons, is billed. Needs approval.

APPROVAL:
  Teachers and students cannot act until management approves them. Accounts
  are created three ways:
    - Self-registration: pending approval
    - Invitation token redemption: pre-approved (management vouched by
      issuing the token)
    - Management-direct creation: auto-approved

SEE ALSO:
  - registry.go: approved-email records, registration requests, and the
    single cascade-deletion entry point
*/
package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROLES AND CAPABILITIES
// =============================================================================

type Role string

const (
	RoleManagement Role = "management"
	RoleTeacher    Role = "teacher"
	RoleStudent    Role = "student"
)

func (r Role) Valid() bool {
	return r == RoleManagement || r == RoleTeacher || r == RoleStudent
}

// Capability is a single permitted action. Handlers gate on capabilities
// rather than comparing role strings inline.
type Capability string

const (
	CapManageAccounts  Capability = "manage_accounts"
	CapManageRates     Capability = "manage_rates"
	CapApproveInvoices Capability = "approve_invoices"
	CapSubmitLessons   Capability = "submit_lessons"
	CapViewOwnInvoices Capability = "view_own_invoices"
)

var roleCapabilities = map[Role][]Capability{
	RoleManagement: {CapManageAccounts, CapManageRates, CapApproveInvoices, CapSubmitLessons, CapViewOwnInvoices},
	RoleTeacher:    {CapSubmitLessons, CapViewOwnInvoices},
	RoleStudent:    {CapViewOwnInvoices},
}

// =============================================================================
// ACCOUNT
// =============================================================================

// TeacherProfile carries the attributes only teachers have.
type TeacherProfile struct {
	// HourlyRate is the teacher's in-person rate. The online rates come from
	// RateSettings instead.
	HourlyRate  decimal.Decimal
	Bio         string
	Instruments string // comma-separated
}

// StudentProfile carries the attributes only students have.
type StudentProfile struct {
	AssignedTeacher AccountID // weak reference, may be empty
	ParentEmail     string
	ParentPhone     string
}

// Account is a person in the system. Exactly one of Teacher/Student is set
// for those roles; both are nil for management.
type Account struct {
	ID        AccountID
	Email     string // unique, doubles as the login identifier
	FirstName string
	LastName  string
	Phone     string
	Address   string

	Role     Role
	Approved bool

	Teacher *TeacherProfile
	Student *StudentProfile

	CreatedAt time.Time
}

// Can reports whether this account may perform the given action. Unapproved
// teachers and students can do nothing; management is always approved.
func (a *Account) Can(c Capability) bool {
	if !a.Approved {
		return false
	}
	for _, cap := range roleCapabilities[a.Role] {
		if cap == c {
			return true
		}
	}
	return false
}

func (a *Account) FullName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Email
	}
	return name
}

// IsTeacher and IsStudent exist for the couple of places a role check reads
// better than a capability check (rate resolution, invoice party wiring).
func (a *Account) IsTeacher() bool { return a.Role == RoleTeacher }
func (a *Account) IsStudent() bool { return a.Role == RoleStudent }

// normalize enforces the role invariants before an account is persisted:
// management is always approved, and profile data matches the role.
func (a *Account) normalize() error {
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	if a.Email == "" {
		return &ValidationError{Field: "email", Reason: "must not be blank"}
	}
	if !a.Role.Valid() {
		return &ValidationError{Field: "role", Reason: "unknown role " + string(a.Role)}
	}

	switch a.Role {
	case RoleManagement:
		a.Approved = true
		a.Teacher = nil
		a.Student = nil
	case RoleTeacher:
		a.Student = nil
		if a.Teacher == nil {
			a.Teacher = &TeacherProfile{HourlyRate: DefaultTeacherHourlyRate}
		}
		if a.Teacher.HourlyRate.IsZero() {
			a.Teacher.HourlyRate = DefaultTeacherHourlyRate
		}
		if a.Teacher.HourlyRate.IsNegative() {
			return &ValidationError{Field: "hourly_rate", Reason: "must be greater than 0"}
		}
	case RoleStudent:
		a.Teacher = nil
		if a.Student == nil {
			a.Student = &StudentProfile{}
		}
	}
	return nil
}
