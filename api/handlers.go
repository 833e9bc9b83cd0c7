/*
handlers.go - HTTP API handlers for the academy billing system

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain services.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                   List accounts (?role=)
    POST   /api/accounts                   Create account (management-direct)
    POST   /api/accounts/register          Self-registration (pending approval)
    GET    /api/accounts/{id}              Get account
    POST   /api/accounts/{id}/approve      Approve a pending account
    DELETE /api/accounts/{id}              Delete account + registry cleanup
    GET    /api/accounts/{id}/lessons      Lessons taught by / for the account

  Invitations:
    POST   /api/invitations                Issue an invitation token
    POST   /api/invitations/{token}/redeem Redeem into a pre-approved account

  Approved emails:
    DELETE /api/approved-emails/{email}    Revoke (cascades to the account)

  Rate settings:
    GET    /api/settings/rates             Current academy rates
    PUT    /api/settings/rates             Update academy rates

  Submission:
    POST   /api/teachers/{id}/submissions  Batch lesson submission

  Lessons:
    POST   /api/lessons                    Schedule a lesson (requested)
    GET    /api/lessons/{id}               Get lesson
    POST   /api/lessons/{id}/confirm       requested -> confirmed
    POST   /api/lessons/{id}/complete      confirmed -> completed
    POST   /api/lessons/{id}/cancel        requested/confirmed -> cancelled

  Invoices:
    GET    /api/invoices                   List (?type=&status=&teacher_id=&student_id=)
    POST   /api/invoices                   Management-initiated draft invoice
    GET    /api/invoices/{id}              Get with lessons
    POST   /api/invoices/{id}/submit       draft -> pending
    POST   /api/invoices/{id}/approve      pending -> approved
    POST   /api/invoices/{id}/reject       draft/pending -> rejected (reason required)
    POST   /api/invoices/{id}/pay          approved/overdue -> paid
    POST   /api/invoices/{id}/recalculate  Re-derive balance from lesson set
    POST   /api/invoices/{id}/lessons      Attach lessons
    DELETE /api/invoices/{id}/lessons/{lessonID}  Detach a lesson
    POST   /api/invoices/{id}/regenerate   Re-render and re-send the document

  Admin:
    POST   /api/admin/overdue-sweep        Run the overdue sweep now

ERROR HANDLING:
  Domain errors are mapped to HTTP status via the billing helpers:
  - 400: billing.IsClientError (validation, empty batch, missing reason)
  - 404: billing.IsNotFound
  - 409: billing.IsConflict (illegal transition, locked invoice, duplicates)
  - 500: everything else

SECURITY NOTE:
  No authentication middleware. The acting account comes from the
  X-Account-ID header (or the request body for invoice approval), and
  management-only operations verify it holds the right capability before
  proceeding. The header itself is trusted: front this with an
  authenticating proxy in production.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - overdue.go: The background overdue sweep
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cadenza/academy-billing/billing"
)

// InvitationTTL is how long an issued invitation token stays redeemable.
const InvitationTTL = 7 * 24 * time.Hour

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       billing.TxStore
	Accounts    *billing.AccountService
	Invoices    *billing.InvoiceService
	Submissions *billing.SubmissionService
	Logger      *zap.Logger
}

// NewHandler wires the domain services over one store.
func NewHandler(store billing.TxStore, notifier billing.Notifier, logger *zap.Logger) *Handler {
	return &Handler{
		Store:       store,
		Accounts:    billing.NewAccountService(store, logger),
		Invoices:    billing.NewInvoiceService(store, notifier, logger),
		Submissions: billing.NewSubmissionService(store, notifier, logger),
		Logger:      logger,
	}
}

// requireCapability loads the acting account named by the X-Account-ID
// header and verifies it may perform the operation. On failure it writes the
// response itself and returns false.
func (h *Handler) requireCapability(w http.ResponseWriter, r *http.Request, c billing.Capability) bool {
	id := billing.AccountID(r.Header.Get("X-Account-ID"))
	a, err := h.Store.GetAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load acting account", err)
		return false
	}
	if a == nil || !a.Can(c) {
		writeError(w, http.StatusForbidden, "Acting account may not perform this operation", nil)
		return false
	}
	return true
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns accounts, optionally filtered by role.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	role := billing.Role(r.URL.Query().Get("role"))
	if role != "" && !role.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown role", nil)
		return
	}

	accounts, err := h.Store.ListAccounts(r.Context(), role)
	if err != nil {
		writeDomainError(w, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAccount returns a single account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := billing.AccountID(chi.URLParam(r, "id"))

	a, err := h.Store.GetAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get account", err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(a))
}

// CreateAccount creates an account management-direct (approved immediately).
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	if !h.requireCapability(w, r, billing.CapManageAccounts) {
		return
	}

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	a, err := req.toAccount()
	if err != nil {
		writeDomainError(w, "Invalid account", err)
		return
	}

	createdBy := billing.AccountID(r.Header.Get("X-Account-ID"))
	created, err := h.Accounts.CreateAccount(r.Context(), a, createdBy)
	if err != nil {
		writeDomainError(w, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(created))
}

// Register is the self-registration path; the account stays unapproved until
// management reviews it.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	a, err := req.toAccount()
	if err != nil {
		writeDomainError(w, "Invalid account", err)
		return
	}

	created, err := h.Accounts.Register(r.Context(), a)
	if err != nil {
		writeDomainError(w, "Failed to register", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(created))
}

// ApproveAccount marks a pending account approved.
func (h *Handler) ApproveAccount(w http.ResponseWriter, r *http.Request) {
	if !h.requireCapability(w, r, billing.CapManageAccounts) {
		return
	}

	id := billing.AccountID(chi.URLParam(r, "id"))
	by := billing.AccountID(r.Header.Get("X-Account-ID"))

	a, err := h.Accounts.Approve(r.Context(), id, by)
	if err != nil {
		writeDomainError(w, "Failed to approve account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(a))
}

// DeleteAccount removes an account with full registry cleanup.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if !h.requireCapability(w, r, billing.CapManageAccounts) {
		return
	}

	id := billing.AccountID(chi.URLParam(r, "id"))

	if err := h.Accounts.DeleteAccount(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete account", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListAccountLessons returns all lessons where the account is the teacher.
func (h *Handler) ListAccountLessons(w http.ResponseWriter, r *http.Request) {
	id := billing.AccountID(chi.URLParam(r, "id"))

	lessons, err := h.Store.ListLessonsByTeacher(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to list lessons", err)
		return
	}

	dtos := make([]LessonDTO, len(lessons))
	for i, l := range lessons {
		dtos[i] = toLessonDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// INVITATION HANDLERS
// =============================================================================

// IssueInvitation mints a single-use pre-approval token for an email.
func (h *Handler) IssueInvitation(w http.ResponseWriter, r *http.Request) {
	if !h.requireCapability(w, r, billing.CapManageAccounts) {
		return
	}

	var req InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	by := billing.AccountID(r.Header.Get("X-Account-ID"))
	inv, err := h.Accounts.IssueInvitation(r.Context(), req.Email, billing.Role(req.Role), by, InvitationTTL)
	if err != nil {
		writeDomainError(w, "Failed to issue invitation", err)
		return
	}

	writeJSON(w, http.StatusCreated, InvitationDTO{
		Token:     inv.Token,
		Email:     inv.Email,
		Role:      string(inv.Role),
		ExpiresAt: inv.ExpiresAt.Format(time.RFC3339),
	})
}

// RedeemInvitation consumes a token and creates the pre-approved account.
func (h *Handler) RedeemInvitation(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	a, err := req.toAccount()
	if err != nil {
		writeDomainError(w, "Invalid account", err)
		return
	}

	created, err := h.Accounts.RedeemInvitation(r.Context(), token, a)
	if err != nil {
		writeDomainError(w, "Failed to redeem invitation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(created))
}

// RevokeApprovedEmail removes the approval record and, with it, the account.
func (h *Handler) RevokeApprovedEmail(w http.ResponseWriter, r *http.Request) {
	if !h.requireCapability(w, r, billing.CapManageAccounts) {
		return
	}

	email := chi.URLParam(r, "email")

	if err := h.Accounts.DeleteApprovedEmail(r.Context(), email); err != nil {
		writeDomainError(w, "Failed to revoke approved email", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// =============================================================================
// RATE SETTINGS HANDLERS
// =============================================================================

// GetRateSettings returns the academy-wide rates, materializing the defaults
// if no record exists yet.
func (h *Handler) GetRateSettings(w http.ResponseWriter, r *http.Request) {
	resolver := billing.NewRateResolver(h.Store)
	// Resolving for a throwaway online lesson forces the lazy default write.
	if _, _, err := resolver.Resolve(r.Context(), billing.LessonOnline, nil); err != nil {
		writeDomainError(w, "Failed to load rate settings", err)
		return
	}

	settings, err := h.Store.GetRateSettings(r.Context())
	if err != nil || settings == nil {
		writeDomainError(w, "Failed to load rate settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toRateSettingsDTO(*settings))
}

// UpdateRateSettings replaces the academy-wide rates. Existing lessons keep
// their locked rates.
func (h *Handler) UpdateRateSettings(w http.ResponseWriter, r *http.Request) {
	if !h.requireCapability(w, r, billing.CapManageRates) {
		return
	}

	var req RateSettingsDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	settings := billing.RateSettings{}
	for _, f := range []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"online_teacher_rate", req.OnlineTeacherRate, &settings.OnlineTeacherRate},
		{"online_student_rate", req.OnlineStudentRate, &settings.OnlineStudentRate},
		{"inperson_student_rate", req.InPersonStudentRate, &settings.InPersonStudentRate},
	} {
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid "+f.name, err)
			return
		}
		if !d.IsPositive() {
			writeError(w, http.StatusBadRequest, f.name+" must be greater than 0", nil)
			return
		}
		*f.dst = d
	}

	if err := h.Store.SaveRateSettings(r.Context(), settings); err != nil {
		writeDomainError(w, "Failed to save rate settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toRateSettingsDTO(settings))
}

// =============================================================================
// SUBMISSION HANDLER
// =============================================================================

// SubmitLessons runs the batch lesson submission for a teacher.
func (h *Handler) SubmitLessons(w http.ResponseWriter, r *http.Request) {
	teacherID := billing.AccountID(chi.URLParam(r, "id"))

	var req SubmitLessonsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var due *time.Time
	if req.DueDate != "" {
		t, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid due_date format (use YYYY-MM-DD)", err)
			return
		}
		due = &t
	}

	result, err := h.Submissions.SubmitLessons(r.Context(), teacherID, req.Lessons, due)
	if err != nil {
		writeDomainError(w, "Failed to submit lessons", err)
		return
	}

	resp := SubmissionResponseDTO{
		TeacherInvoice: toInvoiceDTO(result.TeacherInvoice),
		LessonsCreated: result.LessonsCreated,
		Warning:        result.Warning,
	}
	for _, inv := range result.StudentInvoices {
		resp.StudentInvoices = append(resp.StudentInvoices, toInvoiceDTO(inv))
	}
	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// LESSON HANDLERS
// =============================================================================

// ScheduleLesson books a lesson in requested status, locking both rates at
// today's settings.
func (h *Handler) ScheduleLesson(w http.ResponseWriter, r *http.Request) {
	if !h.requireCapability(w, r, billing.CapSubmitLessons) {
		return
	}

	var req ScheduleLessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	teacher, err := h.Store.GetAccount(r.Context(), billing.AccountID(req.TeacherID))
	if err != nil {
		writeDomainError(w, "Failed to load teacher", err)
		return
	}
	student, err := h.Store.GetAccount(r.Context(), billing.AccountID(req.StudentID))
	if err != nil {
		writeDomainError(w, "Failed to load student", err)
		return
	}
	if teacher == nil || student == nil {
		writeError(w, http.StatusNotFound, "Teacher or student not found", nil)
		return
	}

	duration, err := decimal.NewFromString(req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid duration", err)
		return
	}
	teacherRate, err := parseOptionalRate("teacher_rate", req.TeacherRate)
	if err != nil {
		writeDomainError(w, "Invalid lesson", err)
		return
	}
	studentRate, err := parseOptionalRate("student_rate", req.StudentRate)
	if err != nil {
		writeDomainError(w, "Invalid lesson", err)
		return
	}

	var scheduled time.Time
	if req.ScheduledDate != "" {
		scheduled, err = time.Parse("2006-01-02", req.ScheduledDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid scheduled_date format (use YYYY-MM-DD)", err)
			return
		}
	}

	lesson, err := billing.NewLesson(r.Context(), billing.LessonSpec{
		Teacher:       teacher,
		Student:       student,
		Type:          billing.LessonType(req.LessonType),
		Duration:      duration,
		TeacherRate:   teacherRate,
		StudentRate:   studentRate,
		ScheduledDate: scheduled,
		TeacherNotes:  req.Notes,
	}, billing.NewRateResolver(h.Store))
	if err != nil {
		writeDomainError(w, "Invalid lesson", err)
		return
	}

	if err := h.Store.SaveLesson(r.Context(), lesson); err != nil {
		writeDomainError(w, "Failed to save lesson", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLessonDTO(lesson))
}

// GetLesson returns one lesson.
func (h *Handler) GetLesson(w http.ResponseWriter, r *http.Request) {
	l, err := h.Store.GetLesson(r.Context(), billing.LessonID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get lesson", err)
		return
	}
	if l == nil {
		writeError(w, http.StatusNotFound, "Lesson not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toLessonDTO(l))
}

func (h *Handler) ConfirmLesson(w http.ResponseWriter, r *http.Request) {
	h.lessonTransition(w, r, (*billing.Lesson).Confirm)
}

func (h *Handler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	h.lessonTransition(w, r, (*billing.Lesson).Complete)
}

func (h *Handler) CancelLesson(w http.ResponseWriter, r *http.Request) {
	h.lessonTransition(w, r, (*billing.Lesson).Cancel)
}

func (h *Handler) lessonTransition(w http.ResponseWriter, r *http.Request, apply func(*billing.Lesson, time.Time) error) {
	if !h.requireCapability(w, r, billing.CapSubmitLessons) {
		return
	}

	lesson, err := h.Store.GetLesson(r.Context(), billing.LessonID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get lesson", err)
		return
	}
	if lesson == nil {
		writeError(w, http.StatusNotFound, "Lesson not found", nil)
		return
	}

	if err := apply(lesson, time.Now().UTC()); err != nil {
		writeDomainError(w, "Failed to update lesson", err)
		return
	}
	if err := h.Store.SaveLesson(r.Context(), lesson); err != nil {
		writeDomainError(w, "Failed to save lesson", err)
		return
	}
	writeJSON(w, http.StatusOK, toLessonDTO(lesson))
}

func parseOptionalRate(name string, s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, &billing.ValidationError{Field: name, Reason: "not a decimal number"}
	}
	return &d, nil
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// CreateInvoice opens a draft invoice on management's initiative, with an
// optional initial lesson set. Contrast with batch submission, which creates
// invoices directly in pending.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	if !h.requireCapability(w, r, billing.CapApproveInvoices) {
		return
	}

	var req CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var due *time.Time
	if req.DueDate != "" {
		t, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid due_date format (use YYYY-MM-DD)", err)
			return
		}
		due = &t
	}

	ids := make([]billing.LessonID, len(req.LessonIDs))
	for i, id := range req.LessonIDs {
		ids[i] = billing.LessonID(id)
	}

	inv, err := h.Invoices.Create(r.Context(), billing.CreateInvoiceInput{
		Type:      billing.InvoiceType(req.InvoiceType),
		PartyID:   billing.AccountID(req.PartyID),
		LessonIDs: ids,
		DueDate:   due,
		Notes:     req.Notes,
		CreatedBy: billing.AccountID(r.Header.Get("X-Account-ID")),
	})
	if err != nil {
		writeDomainError(w, "Failed to create invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(inv))
}

// ListInvoices returns invoices matching the query filters.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := billing.InvoiceFilter{
		Type:      billing.InvoiceType(q.Get("type")),
		Status:    billing.InvoiceStatus(q.Get("status")),
		TeacherID: billing.AccountID(q.Get("teacher_id")),
		StudentID: billing.AccountID(q.Get("student_id")),
	}

	invoices, err := h.Store.ListInvoices(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "Failed to list invoices", err)
		return
	}

	dtos := make([]InvoiceDTO, len(invoices))
	for i, inv := range invoices {
		dtos[i] = toInvoiceDTO(inv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetInvoice returns one invoice with its lesson details.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))

	inv, err := h.Store.GetInvoice(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get invoice", err)
		return
	}
	if inv == nil {
		writeError(w, http.StatusNotFound, "Invoice not found", nil)
		return
	}

	lessons, err := h.Store.GetLessons(r.Context(), inv.LessonIDs)
	if err != nil {
		writeDomainError(w, "Failed to load invoice lessons", err)
		return
	}

	lessonDTOs := make([]LessonDTO, len(lessons))
	for i, l := range lessons {
		lessonDTOs[i] = toLessonDTO(l)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"invoice": toInvoiceDTO(inv),
		"lessons": lessonDTOs,
	})
}

// SubmitInvoice moves a draft invoice into review.
func (h *Handler) SubmitInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Invoices.Submit(r.Context(), billing.InvoiceID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to submit invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// ApproveInvoice approves a pending invoice.
func (h *Handler) ApproveInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ApproverID string `json:"approver_id"`
	}
	// An empty body is allowed; a malformed one is not.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	inv, err := h.Invoices.Approve(r.Context(),
		billing.InvoiceID(chi.URLParam(r, "id")), billing.AccountID(req.ApproverID))
	if err != nil {
		writeDomainError(w, "Failed to approve invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// RejectInvoice rejects a draft or pending invoice; the reason is mandatory.
func (h *Handler) RejectInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RejecterID string `json:"rejecter_id"`
		Reason     string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	inv, err := h.Invoices.Reject(r.Context(),
		billing.InvoiceID(chi.URLParam(r, "id")), billing.AccountID(req.RejecterID), req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to reject invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// PayInvoice settles an approved or overdue invoice.
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Invoices.MarkPaid(r.Context(), billing.InvoiceID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to mark invoice paid", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// RecalculateInvoice re-derives an editable invoice's balance.
func (h *Handler) RecalculateInvoice(w http.ResponseWriter, r *http.Request) {
	by := billing.AccountID(r.Header.Get("X-Account-ID"))

	inv, err := h.Invoices.Recalculate(r.Context(), billing.InvoiceID(chi.URLParam(r, "id")), by)
	if err != nil {
		writeDomainError(w, "Failed to recalculate invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// AttachLessons adds lessons to an editable invoice.
func (h *Handler) AttachLessons(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LessonIDs []string `json:"lesson_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ids := make([]billing.LessonID, len(req.LessonIDs))
	for i, id := range req.LessonIDs {
		ids[i] = billing.LessonID(id)
	}

	by := billing.AccountID(r.Header.Get("X-Account-ID"))
	inv, err := h.Invoices.AttachLessons(r.Context(), billing.InvoiceID(chi.URLParam(r, "id")), ids, by)
	if err != nil {
		writeDomainError(w, "Failed to attach lessons", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// DetachLesson removes one lesson from an editable invoice.
func (h *Handler) DetachLesson(w http.ResponseWriter, r *http.Request) {
	by := billing.AccountID(r.Header.Get("X-Account-ID"))

	inv, err := h.Invoices.DetachLesson(r.Context(),
		billing.InvoiceID(chi.URLParam(r, "id")),
		billing.LessonID(chi.URLParam(r, "lessonID")), by)
	if err != nil {
		writeDomainError(w, "Failed to detach lesson", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// RegenerateInvoice re-renders and re-sends the invoice document.
func (h *Handler) RegenerateInvoice(w http.ResponseWriter, r *http.Request) {
	msg, err := h.Invoices.Regenerate(r.Context(), billing.InvoiceID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to regenerate invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent", "message": msg})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunOverdueSweep triggers the overdue sweep immediately.
func (h *Handler) RunOverdueSweep(w http.ResponseWriter, r *http.Request) {
	moved, err := h.Invoices.SweepOverdue(r.Context(), time.Now().UTC())
	if err != nil {
		writeDomainError(w, "Overdue sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "marked_overdue": moved})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps billing errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case err == nil:
		writeError(w, http.StatusInternalServerError, message, nil)
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case billing.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
