/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON wire representations, separate from domain types. Money fields go
  over the wire as decimal strings, never as floats.

SEE ALSO:
  - handlers.go: where these are read and written
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cadenza/academy-billing/billing"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type TeacherProfileDTO struct {
	HourlyRate  string `json:"hourly_rate"`
	Bio         string `json:"bio,omitempty"`
	Instruments string `json:"instruments,omitempty"`
}

type StudentProfileDTO struct {
	AssignedTeacher string `json:"assigned_teacher,omitempty"`
	ParentEmail     string `json:"parent_email,omitempty"`
	ParentPhone     string `json:"parent_phone,omitempty"`
}

type AccountDTO struct {
	ID        string             `json:"id"`
	Email     string             `json:"email"`
	FirstName string             `json:"first_name"`
	LastName  string             `json:"last_name"`
	Phone     string             `json:"phone,omitempty"`
	Address   string             `json:"address,omitempty"`
	Role      string             `json:"role"`
	Approved  bool               `json:"approved"`
	Teacher   *TeacherProfileDTO `json:"teacher,omitempty"`
	Student   *StudentProfileDTO `json:"student,omitempty"`
	CreatedAt string             `json:"created_at"`
}

func toAccountDTO(a *billing.Account) AccountDTO {
	dto := AccountDTO{
		ID:        string(a.ID),
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Phone:     a.Phone,
		Address:   a.Address,
		Role:      string(a.Role),
		Approved:  a.Approved,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
	if a.Teacher != nil {
		dto.Teacher = &TeacherProfileDTO{
			HourlyRate:  a.Teacher.HourlyRate.String(),
			Bio:         a.Teacher.Bio,
			Instruments: a.Teacher.Instruments,
		}
	}
	if a.Student != nil {
		dto.Student = &StudentProfileDTO{
			AssignedTeacher: string(a.Student.AssignedTeacher),
			ParentEmail:     a.Student.ParentEmail,
			ParentPhone:     a.Student.ParentPhone,
		}
	}
	return dto
}

// CreateAccountRequest covers management-direct creation, self-registration,
// and invitation redemption.
type CreateAccountRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	Role      string `json:"role"`

	HourlyRate  *string `json:"hourly_rate"` // teachers
	Bio         string  `json:"bio"`
	Instruments string  `json:"instruments"`

	AssignedTeacher string `json:"assigned_teacher"` // students
	ParentEmail     string `json:"parent_email"`
	ParentPhone     string `json:"parent_phone"`
}

func (r CreateAccountRequest) toAccount() (*billing.Account, error) {
	a := &billing.Account{
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Phone:     r.Phone,
		Address:   r.Address,
		Role:      billing.Role(r.Role),
	}
	switch a.Role {
	case billing.RoleTeacher:
		profile := &billing.TeacherProfile{Bio: r.Bio, Instruments: r.Instruments}
		if r.HourlyRate != nil {
			rate, err := decimal.NewFromString(*r.HourlyRate)
			if err != nil {
				return nil, &billing.ValidationError{Field: "hourly_rate", Reason: "not a decimal number"}
			}
			profile.HourlyRate = rate
		}
		a.Teacher = profile
	case billing.RoleStudent:
		a.Student = &billing.StudentProfile{
			AssignedTeacher: billing.AccountID(r.AssignedTeacher),
			ParentEmail:     r.ParentEmail,
			ParentPhone:     r.ParentPhone,
		}
	}
	return a, nil
}

type InviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type InvitationDTO struct {
	Token     string `json:"token"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
}

// =============================================================================
// RATE SETTINGS
// =============================================================================

type RateSettingsDTO struct {
	OnlineTeacherRate   string `json:"online_teacher_rate"`
	OnlineStudentRate   string `json:"online_student_rate"`
	InPersonStudentRate string `json:"inperson_student_rate"`
}

func toRateSettingsDTO(s billing.RateSettings) RateSettingsDTO {
	return RateSettingsDTO{
		OnlineTeacherRate:   s.OnlineTeacherRate.String(),
		OnlineStudentRate:   s.OnlineStudentRate.String(),
		InPersonStudentRate: s.InPersonStudentRate.String(),
	}
}

// =============================================================================
// LESSONS
// =============================================================================

type LessonDTO struct {
	ID            string `json:"id"`
	TeacherID     string `json:"teacher_id"`
	StudentID     string `json:"student_id"`
	LessonType    string `json:"lesson_type"`
	Duration      string `json:"duration"`
	TeacherRate   string `json:"teacher_rate"`
	StudentRate   string `json:"student_rate"`
	Status        string `json:"status"`
	ScheduledDate string `json:"scheduled_date"`
	CompletedDate string `json:"completed_date,omitempty"`
	TeacherNotes  string `json:"teacher_notes,omitempty"`
}

// ScheduleLessonRequest books a single lesson outside the batch submission
// flow. Rates are optional overrides; unset means resolve from settings.
type ScheduleLessonRequest struct {
	TeacherID     string  `json:"teacher_id"`
	StudentID     string  `json:"student_id"`
	LessonType    string  `json:"lesson_type"`
	Duration      string  `json:"duration"`
	TeacherRate   *string `json:"teacher_rate"`
	StudentRate   *string `json:"student_rate"`
	ScheduledDate string  `json:"scheduled_date"` // YYYY-MM-DD, optional
	Notes         string  `json:"notes"`
}

func toLessonDTO(l *billing.Lesson) LessonDTO {
	dto := LessonDTO{
		ID:            string(l.ID),
		TeacherID:     string(l.TeacherID),
		StudentID:     string(l.StudentID),
		LessonType:    string(l.Type),
		Duration:      l.Duration.String(),
		TeacherRate:   l.TeacherRate.String(),
		StudentRate:   l.StudentRate.String(),
		Status:        string(l.Status),
		ScheduledDate: l.ScheduledDate.Format("2006-01-02"),
		TeacherNotes:  l.TeacherNotes,
	}
	if l.CompletedDate != nil {
		dto.CompletedDate = l.CompletedDate.Format("2006-01-02")
	}
	return dto
}

// =============================================================================
// INVOICES
// =============================================================================

// CreateInvoiceRequest is the management-initiated draft invoice.
type CreateInvoiceRequest struct {
	InvoiceType string   `json:"invoice_type"`
	PartyID     string   `json:"party_id"`
	LessonIDs   []string `json:"lesson_ids"`
	DueDate     string   `json:"due_date"` // YYYY-MM-DD, optional
	Notes       string   `json:"notes"`
}

type InvoiceDTO struct {
	ID              string   `json:"id"`
	Number          string   `json:"number"`
	InvoiceType     string   `json:"invoice_type"`
	TeacherID       string   `json:"teacher_id,omitempty"`
	StudentID       string   `json:"student_id,omitempty"`
	LessonIDs       []string `json:"lesson_ids"`
	PaymentBalance  string   `json:"payment_balance"`
	Status          string   `json:"status"`
	DueDate         string   `json:"due_date,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	CreatedAt       string   `json:"created_at"`
	CreatedBy       string   `json:"created_by,omitempty"`
	ApprovedBy      string   `json:"approved_by,omitempty"`
	ApprovedAt      string   `json:"approved_at,omitempty"`
	RejectedBy      string   `json:"rejected_by,omitempty"`
	RejectedAt      string   `json:"rejected_at,omitempty"`
	RejectionReason string   `json:"rejection_reason,omitempty"`
	LastEditedBy    string   `json:"last_edited_by,omitempty"`
	LastEditedAt    string   `json:"last_edited_at,omitempty"`
}

func toInvoiceDTO(inv *billing.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		ID:              string(inv.ID),
		Number:          inv.Number,
		InvoiceType:     string(inv.Type),
		TeacherID:       string(inv.TeacherID),
		StudentID:       string(inv.StudentID),
		LessonIDs:       make([]string, 0, len(inv.LessonIDs)),
		PaymentBalance:  inv.PaymentBalance.String(),
		Status:          string(inv.Status),
		Notes:           inv.Notes,
		CreatedAt:       inv.CreatedAt.Format(time.RFC3339),
		CreatedBy:       string(inv.CreatedBy),
		ApprovedBy:      string(inv.ApprovedBy),
		RejectedBy:      string(inv.RejectedBy),
		RejectionReason: inv.RejectionReason,
		LastEditedBy:    string(inv.LastEditedBy),
	}
	for _, id := range inv.LessonIDs {
		dto.LessonIDs = append(dto.LessonIDs, string(id))
	}
	if !inv.DueDate.IsZero() {
		dto.DueDate = inv.DueDate.Format("2006-01-02")
	}
	if inv.ApprovedAt != nil {
		dto.ApprovedAt = inv.ApprovedAt.Format(time.RFC3339)
	}
	if inv.RejectedAt != nil {
		dto.RejectedAt = inv.RejectedAt.Format(time.RFC3339)
	}
	if inv.LastEditedAt != nil {
		dto.LastEditedAt = inv.LastEditedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmitLessonsRequest is the batch a teacher reports. Lesson entries reuse
// the domain's LessonReport wire format directly.
type SubmitLessonsRequest struct {
	Lessons []billing.LessonReport `json:"lessons"`
	DueDate string                 `json:"due_date"` // YYYY-MM-DD, optional
}

type SubmissionResponseDTO struct {
	TeacherInvoice  InvoiceDTO   `json:"teacher_invoice"`
	StudentInvoices []InvoiceDTO `json:"student_invoices"`
	LessonsCreated  int          `json:"lessons_created"`
	Warning         string       `json:"warning,omitempty"`
}
