// Package store provides an in-memory billing.Store implementation for
// tests and development.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cadenza/academy-billing/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	txMu sync.Mutex // serializes WithTx blocks

	accounts  map[billing.AccountID]*billing.Account
	emails    map[string]billing.AccountID
	settings  *billing.RateSettings
	lessons   map[billing.LessonID]*billing.Lesson
	invoices  map[billing.InvoiceID]*billing.Invoice
	numbers   map[string]billing.InvoiceID
	approved  map[string]billing.ApprovedEmail
	regs      map[string][]billing.RegistrationRequest
	invites   map[string]billing.Invitation
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[billing.AccountID]*billing.Account),
		emails:   make(map[string]billing.AccountID),
		lessons:  make(map[billing.LessonID]*billing.Lesson),
		invoices: make(map[billing.InvoiceID]*billing.Invoice),
		numbers:  make(map[string]billing.InvoiceID),
		approved: make(map[string]billing.ApprovedEmail),
		regs:     make(map[string][]billing.RegistrationRequest),
		invites:  make(map[string]billing.Invitation),
	}
}

var _ billing.TxStore = (*Memory)(nil)

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Memory) SaveAccount(_ context.Context, a *billing.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(a.Email)
	if owner, ok := m.emails[email]; ok && owner != a.ID {
		return billing.ErrDuplicateEmail
	}

	// An account changing email frees the old one.
	if prev, ok := m.accounts[a.ID]; ok && !strings.EqualFold(prev.Email, email) {
		delete(m.emails, strings.ToLower(prev.Email))
	}

	m.accounts[a.ID] = cloneAccount(a)
	m.emails[email] = a.ID
	return nil
}

func (m *Memory) GetAccount(_ context.Context, id billing.AccountID) (*billing.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.accounts[id]; ok {
		return cloneAccount(a), nil
	}
	return nil, nil
}

func (m *Memory) GetAccountByEmail(_ context.Context, email string) (*billing.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.emails[strings.ToLower(email)]; ok {
		return cloneAccount(m.accounts[id]), nil
	}
	return nil, nil
}

func (m *Memory) FindStudentByName(_ context.Context, firstName, lastName string) (*billing.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.accounts {
		if a.Role == billing.RoleStudent &&
			strings.EqualFold(a.FirstName, firstName) &&
			strings.EqualFold(a.LastName, lastName) {
			return cloneAccount(a), nil
		}
	}
	return nil, nil
}

func (m *Memory) ListAccounts(_ context.Context, role billing.Role) ([]*billing.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*billing.Account
	for _, a := range m.accounts {
		if role == "" || a.Role == role {
			out = append(out, cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *Memory) DeleteAccount(_ context.Context, id billing.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil
	}
	delete(m.emails, strings.ToLower(a.Email))
	delete(m.accounts, id)

	// Cascade: the account's lessons go with it.
	for lid, l := range m.lessons {
		if l.TeacherID == id || l.StudentID == id {
			delete(m.lessons, lid)
		}
	}
	return nil
}

// =============================================================================
// RATE SETTINGS
// =============================================================================

func (m *Memory) GetRateSettings(_ context.Context) (*billing.RateSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return nil, nil
	}
	s := *m.settings
	return &s, nil
}

func (m *Memory) SaveRateSettings(_ context.Context, s billing.RateSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

// =============================================================================
// LESSONS
// =============================================================================

func (m *Memory) SaveLesson(_ context.Context, l *billing.Lesson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lessons[l.ID] = cloneLesson(l)
	return nil
}

func (m *Memory) GetLesson(_ context.Context, id billing.LessonID) (*billing.Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if l, ok := m.lessons[id]; ok {
		return cloneLesson(l), nil
	}
	return nil, nil
}

func (m *Memory) GetLessons(_ context.Context, ids []billing.LessonID) ([]*billing.Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*billing.Lesson, 0, len(ids))
	for _, id := range ids {
		if l, ok := m.lessons[id]; ok {
			out = append(out, cloneLesson(l))
		}
	}
	return out, nil
}

func (m *Memory) ListLessonsByTeacher(_ context.Context, teacherID billing.AccountID) ([]*billing.Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*billing.Lesson
	for _, l := range m.lessons {
		if l.TeacherID == teacherID {
			out = append(out, cloneLesson(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	return out, nil
}

// =============================================================================
// INVOICES
// =============================================================================

func (m *Memory) SaveInvoice(_ context.Context, inv *billing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if owner, ok := m.numbers[inv.Number]; ok && owner != inv.ID {
		return billing.ErrDuplicateInvoiceNumber
	}
	m.invoices[inv.ID] = cloneInvoice(inv)
	m.numbers[inv.Number] = inv.ID
	return nil
}

func (m *Memory) GetInvoice(_ context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if inv, ok := m.invoices[id]; ok {
		return cloneInvoice(inv), nil
	}
	return nil, nil
}

func (m *Memory) ListInvoices(_ context.Context, f billing.InvoiceFilter) ([]*billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*billing.Invoice
	for _, inv := range m.invoices {
		if f.Type != "" && inv.Type != f.Type {
			continue
		}
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		if f.TeacherID != "" && inv.TeacherID != f.TeacherID {
			continue
		}
		if f.StudentID != "" && inv.StudentID != f.StudentID {
			continue
		}
		out = append(out, cloneInvoice(inv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *Memory) ListInvoiceNumbers(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for number := range m.numbers {
		if strings.HasPrefix(number, prefix) {
			out = append(out, number)
		}
	}
	sort.Strings(out)
	return out, nil
}

// =============================================================================
// REGISTRY
// =============================================================================

func (m *Memory) SaveApprovedEmail(_ context.Context, rec billing.ApprovedEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approved[strings.ToLower(rec.Email)] = rec
	return nil
}

func (m *Memory) GetApprovedEmail(_ context.Context, email string) (*billing.ApprovedEmail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.approved[strings.ToLower(email)]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *Memory) DeleteApprovedEmail(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.approved, strings.ToLower(email))
	return nil
}

func (m *Memory) SaveRegistrationRequest(_ context.Context, req billing.RegistrationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(req.Email)
	m.regs[key] = append(m.regs[key], req)
	return nil
}

func (m *Memory) ListRegistrationRequests(_ context.Context, email string) ([]billing.RegistrationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reqs := m.regs[strings.ToLower(email)]
	out := make([]billing.RegistrationRequest, len(reqs))
	copy(out, reqs)
	return out, nil
}

func (m *Memory) DeleteRegistrationRequests(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.regs, strings.ToLower(email))
	return nil
}

func (m *Memory) SaveInvitation(_ context.Context, inv billing.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites[inv.Token] = inv
	return nil
}

func (m *Memory) GetInvitation(_ context.Context, token string) (*billing.Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if inv, ok := m.invites[token]; ok {
		return &inv, nil
	}
	return nil, nil
}

func (m *Memory) DeleteInvitation(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.invites, token)
	return nil
}

// =============================================================================
// TRANSACTIONS - snapshot + rollback on error
// =============================================================================

// WithTx simulates a transaction with snapshot + rollback. Transactions are
// serialized against each other but individual reads still go through the
// regular RWMutex, matching how the SQLite store behaves under WAL.
func (m *Memory) WithTx(_ context.Context, fn func(billing.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restoreLocked(snapshot)
		m.mu.Unlock()
		return err
	}
	return nil
}

type memorySnapshot struct {
	accounts map[billing.AccountID]*billing.Account
	emails   map[string]billing.AccountID
	settings *billing.RateSettings
	lessons  map[billing.LessonID]*billing.Lesson
	invoices map[billing.InvoiceID]*billing.Invoice
	numbers  map[string]billing.InvoiceID
	approved map[string]billing.ApprovedEmail
	regs     map[string][]billing.RegistrationRequest
	invites  map[string]billing.Invitation
}

func (m *Memory) snapshotLocked() memorySnapshot {
	s := memorySnapshot{
		accounts: make(map[billing.AccountID]*billing.Account, len(m.accounts)),
		emails:   make(map[string]billing.AccountID, len(m.emails)),
		lessons:  make(map[billing.LessonID]*billing.Lesson, len(m.lessons)),
		invoices: make(map[billing.InvoiceID]*billing.Invoice, len(m.invoices)),
		numbers:  make(map[string]billing.InvoiceID, len(m.numbers)),
		approved: make(map[string]billing.ApprovedEmail, len(m.approved)),
		regs:     make(map[string][]billing.RegistrationRequest, len(m.regs)),
		invites:  make(map[string]billing.Invitation, len(m.invites)),
	}
	for k, v := range m.accounts {
		s.accounts[k] = cloneAccount(v)
	}
	for k, v := range m.emails {
		s.emails[k] = v
	}
	if m.settings != nil {
		cp := *m.settings
		s.settings = &cp
	}
	for k, v := range m.lessons {
		s.lessons[k] = cloneLesson(v)
	}
	for k, v := range m.invoices {
		s.invoices[k] = cloneInvoice(v)
	}
	for k, v := range m.numbers {
		s.numbers[k] = v
	}
	for k, v := range m.approved {
		s.approved[k] = v
	}
	for k, v := range m.regs {
		s.regs[k] = append([]billing.RegistrationRequest{}, v...)
	}
	for k, v := range m.invites {
		s.invites[k] = v
	}
	return s
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.accounts = s.accounts
	m.emails = s.emails
	m.settings = s.settings
	m.lessons = s.lessons
	m.invoices = s.invoices
	m.numbers = s.numbers
	m.approved = s.approved
	m.regs = s.regs
	m.invites = s.invites
}

// =============================================================================
// CLONING - keep callers from aliasing stored records
// =============================================================================

func cloneAccount(a *billing.Account) *billing.Account {
	cp := *a
	if a.Teacher != nil {
		t := *a.Teacher
		cp.Teacher = &t
	}
	if a.Student != nil {
		st := *a.Student
		cp.Student = &st
	}
	return &cp
}

func cloneLesson(l *billing.Lesson) *billing.Lesson {
	cp := *l
	if l.CompletedDate != nil {
		t := *l.CompletedDate
		cp.CompletedDate = &t
	}
	return &cp
}

func cloneInvoice(inv *billing.Invoice) *billing.Invoice {
	cp := *inv
	cp.LessonIDs = append([]billing.LessonID{}, inv.LessonIDs...)
	if inv.ApprovedAt != nil {
		t := *inv.ApprovedAt
		cp.ApprovedAt = &t
	}
	if inv.RejectedAt != nil {
		t := *inv.RejectedAt
		cp.RejectedAt = &t
	}
	if inv.LastEditedAt != nil {
		t := *inv.LastEditedAt
		cp.LastEditedAt = &t
	}
	return &cp
}
