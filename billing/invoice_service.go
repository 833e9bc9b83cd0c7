/*
invoice_service.go - Invoice workflow operations

PURPOSE:
  Thin orchestration over the Invoice state machine: load, apply the
  transition or edit, persist. Handlers and the overdue sweep call this
  instead of juggling store reads and entity methods themselves.

  All mutations re-persist through the store; content edits recalculate the
  balance from the invoice's current lesson set so the stored balance is
  derived, never trusted.
*/
package billing

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type InvoiceService struct {
	Store    TxStore
	Notifier Notifier
	Logger   *zap.Logger
	Now      func() time.Time
}

func NewInvoiceService(store TxStore, notifier Notifier, logger *zap.Logger) *InvoiceService {
	return &InvoiceService{
		Store:    store,
		Notifier: notifier,
		Logger:   logger,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *InvoiceService) get(ctx context.Context, id InvoiceID) (*Invoice, error) {
	inv, err := s.Store.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, &NotFoundError{Kind: "invoice", ID: string(id)}
	}
	return inv, nil
}

// CreateInvoiceInput is the management-initiated creation path. The invoice
// opens in draft; lessons are optional and can be attached or detached while
// it stays editable.
type CreateInvoiceInput struct {
	Type      InvoiceType
	PartyID   AccountID
	LessonIDs []LessonID
	DueDate   *time.Time // nil means the standard 14 days
	Notes     string
	CreatedBy AccountID
}

// Create opens a draft invoice for a party. Numbering, lesson attachment,
// and the balance all happen inside one transaction so concurrent creations
// cannot mint duplicate numbers.
func (s *InvoiceService) Create(ctx context.Context, in CreateInvoiceInput) (*Invoice, error) {
	var out *Invoice
	err := s.Store.WithTx(ctx, func(tx Store) error {
		party, err := tx.GetAccount(ctx, in.PartyID)
		if err != nil {
			return err
		}
		if party == nil {
			return &NotFoundError{Kind: "account", ID: string(in.PartyID)}
		}

		now := s.Now()
		due := now.AddDate(0, 0, StudentInvoiceDueDays)
		if in.DueDate != nil {
			due = *in.DueDate
		}

		number, err := NextInvoiceNumber(ctx, tx, now)
		if err != nil {
			return err
		}
		inv, err := NewInvoice(InvoiceSpec{
			Type:      in.Type,
			Party:     party,
			Number:    number,
			Status:    InvoiceDraft,
			DueDate:   due,
			CreatedBy: in.CreatedBy,
			Notes:     in.Notes,
		})
		if err != nil {
			return err
		}

		if len(in.LessonIDs) > 0 {
			lessons, err := tx.GetLessons(ctx, in.LessonIDs)
			if err != nil {
				return err
			}
			if len(lessons) != len(in.LessonIDs) {
				return &NotFoundError{Kind: "lesson", ID: "one or more of the requested lessons"}
			}
			if err := inv.AttachLessons(lessons, in.CreatedBy, now); err != nil {
				return err
			}
			if err := inv.Recalculate(lessons, in.CreatedBy, now); err != nil {
				return err
			}
		}
		out = inv
		return tx.SaveInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("draft invoice created",
		zap.String("number", out.Number), zap.String("by", string(in.CreatedBy)))
	return out, nil
}

// requireCapability checks that the acting account exists and holds the
// capability. Approvals and rejections are management decisions; the stamped
// account must be real and privileged, not whatever id arrived on the wire.
func (s *InvoiceService) requireCapability(ctx context.Context, id AccountID, c Capability, field string) error {
	a, err := s.Store.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if a == nil || !a.Can(c) {
		return &ValidationError{Field: field, Reason: "account may not perform this operation"}
	}
	return nil
}

// Submit moves a draft invoice into review.
func (s *InvoiceService) Submit(ctx context.Context, id InvoiceID) (*Invoice, error) {
	inv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := inv.Submit(); err != nil {
		return nil, err
	}
	return inv, s.Store.SaveInvoice(ctx, inv)
}

// Approve approves a pending invoice on behalf of a management account.
func (s *InvoiceService) Approve(ctx context.Context, id InvoiceID, by AccountID) (*Invoice, error) {
	if err := s.requireCapability(ctx, by, CapApproveInvoices, "approver_id"); err != nil {
		return nil, err
	}
	inv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := inv.Approve(by, s.Now()); err != nil {
		return nil, err
	}
	if err := s.Store.SaveInvoice(ctx, inv); err != nil {
		return nil, err
	}
	s.Logger.Info("invoice approved", zap.String("number", inv.Number), zap.String("by", string(by)))
	return inv, nil
}

// Reject rejects a draft or pending invoice. The reason is mandatory.
func (s *InvoiceService) Reject(ctx context.Context, id InvoiceID, by AccountID, reason string) (*Invoice, error) {
	if err := s.requireCapability(ctx, by, CapApproveInvoices, "rejecter_id"); err != nil {
		return nil, err
	}
	inv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := inv.Reject(by, reason, s.Now()); err != nil {
		return nil, err
	}
	if err := s.Store.SaveInvoice(ctx, inv); err != nil {
		return nil, err
	}
	s.Logger.Info("invoice rejected", zap.String("number", inv.Number), zap.String("reason", reason))
	return inv, nil
}

// MarkPaid settles an approved (or overdue) invoice.
func (s *InvoiceService) MarkPaid(ctx context.Context, id InvoiceID) (*Invoice, error) {
	inv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := inv.MarkPaid(); err != nil {
		return nil, err
	}
	return inv, s.Store.SaveInvoice(ctx, inv)
}

// Recalculate re-derives an editable invoice's balance from its current
// lesson set.
func (s *InvoiceService) Recalculate(ctx context.Context, id InvoiceID, by AccountID) (*Invoice, error) {
	inv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	lessons, err := s.Store.GetLessons(ctx, inv.LessonIDs)
	if err != nil {
		return nil, err
	}
	if err := inv.Recalculate(lessons, by, s.Now()); err != nil {
		return nil, err
	}
	return inv, s.Store.SaveInvoice(ctx, inv)
}

// AttachLessons adds lessons to an editable invoice and recomputes the
// balance, atomically.
func (s *InvoiceService) AttachLessons(ctx context.Context, id InvoiceID, lessonIDs []LessonID, by AccountID) (*Invoice, error) {
	var out *Invoice
	err := s.Store.WithTx(ctx, func(tx Store) error {
		inv, err := tx.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return &NotFoundError{Kind: "invoice", ID: string(id)}
		}

		added, err := tx.GetLessons(ctx, lessonIDs)
		if err != nil {
			return err
		}
		if len(added) != len(lessonIDs) {
			return &NotFoundError{Kind: "lesson", ID: "one or more of the requested lessons"}
		}

		now := s.Now()
		if err := inv.AttachLessons(added, by, now); err != nil {
			return err
		}
		all, err := tx.GetLessons(ctx, inv.LessonIDs)
		if err != nil {
			return err
		}
		if err := inv.Recalculate(all, by, now); err != nil {
			return err
		}
		out = inv
		return tx.SaveInvoice(ctx, inv)
	})
	return out, err
}

// DetachLesson removes one lesson from an editable invoice and recomputes
// the balance.
func (s *InvoiceService) DetachLesson(ctx context.Context, id InvoiceID, lessonID LessonID, by AccountID) (*Invoice, error) {
	var out *Invoice
	err := s.Store.WithTx(ctx, func(tx Store) error {
		inv, err := tx.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return &NotFoundError{Kind: "invoice", ID: string(id)}
		}

		now := s.Now()
		if err := inv.DetachLesson(lessonID, by, now); err != nil {
			return err
		}
		remaining, err := tx.GetLessons(ctx, inv.LessonIDs)
		if err != nil {
			return err
		}
		if err := inv.Recalculate(remaining, by, now); err != nil {
			return err
		}
		out = inv
		return tx.SaveInvoice(ctx, inv)
	})
	return out, err
}

// Regenerate re-renders and re-sends an invoice's document on management
// request, optionally to an override recipient. Like the submission-time
// notification this is best-effort: a failure comes back as a
// NotificationError, the invoice itself is untouched.
func (s *InvoiceService) Regenerate(ctx context.Context, id InvoiceID) (string, error) {
	inv, err := s.get(ctx, id)
	if err != nil {
		return "", err
	}
	lessons, err := s.Store.GetLessons(ctx, inv.LessonIDs)
	if err != nil {
		return "", err
	}
	recipient, err := s.Store.GetAccount(ctx, inv.PartyID())
	if err != nil {
		return "", err
	}
	if recipient == nil {
		return "", &NotFoundError{Kind: "account", ID: string(inv.PartyID())}
	}

	msg, err := s.Notifier.GenerateAndSend(ctx, inv, lessons, recipient)
	if err != nil {
		return "", &NotificationError{Stage: "send", Err: err}
	}
	return msg, nil
}

// SweepOverdue moves every past-due, unsettled invoice to overdue and
// returns how many moved. Called by the background scheduler.
func (s *InvoiceService) SweepOverdue(ctx context.Context, now time.Time) (int, error) {
	invoices, err := s.Store.ListInvoices(ctx, InvoiceFilter{})
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, inv := range invoices {
		if !inv.PastDue(now) {
			continue
		}
		if err := inv.MarkOverdue(); err != nil {
			// PastDue filters to non-terminal states, so a conflict here
			// means a concurrent settle; skip it.
			continue
		}
		if err := s.Store.SaveInvoice(ctx, inv); err != nil {
			return moved, err
		}
		s.Logger.Info("invoice marked overdue", zap.String("number", inv.Number))
		moved++
	}
	return moved, nil
}
