/*
store.go - Persistence interfaces for the billing domain

PURPOSE:
  Defines the boundary between domain logic and the database. The domain
  requires of the storage engine:
    - unique constraints on account email, approved email, invoice number
    - cascade-on-delete from accounts to their lessons
    - the lesson<->invoice association

  Implementations:
    - billing/store/memory.go: in-memory, for tests and dev
    - store/sqlite/sqlite.go:  SQLite, for production

ATOMICITY:
  Multi-record operations (batch submission, cascade deletion) run inside
  TxStore.WithTx: either every record commits or none does. Invoice-number
  generation also runs inside the submission transaction so concurrent
  submissions in the same month cannot mint the same number.
*/
package billing

import "context"

// =============================================================================
// STORE INTERFACES
// =============================================================================

// AccountStore persists accounts. Get* methods return (nil, nil) when the
// record does not exist; uniqueness violations surface ErrDuplicateEmail.
type AccountStore interface {
	SaveAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, id AccountID) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)

	// FindStudentByName matches students on (first_name, last_name),
	// case-insensitively. Used by batch submission to reuse existing
	// student records.
	FindStudentByName(ctx context.Context, firstName, lastName string) (*Account, error)

	// ListAccounts returns accounts of the given role, or all roles when
	// role is empty.
	ListAccounts(ctx context.Context, role Role) ([]*Account, error)

	// DeleteAccount removes the account and, by cascade, its lessons.
	// Approval and registration records are cleaned up by the application
	// routine in registry.go, not here.
	DeleteAccount(ctx context.Context, id AccountID) error
}

// SettingsStore persists the single RateSettings record under
// RateSettingsKey. GetRateSettings returns (nil, nil) before first write.
type SettingsStore interface {
	GetRateSettings(ctx context.Context) (*RateSettings, error)
	SaveRateSettings(ctx context.Context, s RateSettings) error
}

type LessonStore interface {
	SaveLesson(ctx context.Context, l *Lesson) error
	GetLesson(ctx context.Context, id LessonID) (*Lesson, error)
	GetLessons(ctx context.Context, ids []LessonID) ([]*Lesson, error)
	ListLessonsByTeacher(ctx context.Context, teacherID AccountID) ([]*Lesson, error)
}

// InvoiceFilter narrows ListInvoices. Zero values mean "any".
type InvoiceFilter struct {
	Type      InvoiceType
	Status    InvoiceStatus
	TeacherID AccountID
	StudentID AccountID
}

type InvoiceStore interface {
	// SaveInvoice upserts; inserting a second invoice with an existing
	// number fails with ErrDuplicateInvoiceNumber.
	SaveInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)
	ListInvoices(ctx context.Context, f InvoiceFilter) ([]*Invoice, error)

	NumberSource // ListInvoiceNumbers for the numbering generator
}

// RegistryStore persists the account-adjacent records: approved emails,
// registration requests, invitations.
type RegistryStore interface {
	SaveApprovedEmail(ctx context.Context, rec ApprovedEmail) error
	GetApprovedEmail(ctx context.Context, email string) (*ApprovedEmail, error)
	DeleteApprovedEmail(ctx context.Context, email string) error

	SaveRegistrationRequest(ctx context.Context, req RegistrationRequest) error
	ListRegistrationRequests(ctx context.Context, email string) ([]RegistrationRequest, error)
	DeleteRegistrationRequests(ctx context.Context, email string) error

	SaveInvitation(ctx context.Context, inv Invitation) error
	GetInvitation(ctx context.Context, token string) (*Invitation, error)
	DeleteInvitation(ctx context.Context, token string) error
}

// Store is the full persistence surface the domain needs.
type Store interface {
	AccountStore
	SettingsStore
	LessonStore
	InvoiceStore
	RegistryStore
}

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction rolls back; otherwise it commits.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
