/*
registry.go - Account lifecycle: registration, approval, invitations,
              and cascade deletion

PURPOSE:
  Accounts enter the system three ways and leave through exactly one door:

    Register          self-registration, pending management approval
    RedeemInvitation  token issued by management, pre-approved
    CreateAccount     management-direct creation, auto-approved
    DeleteAccount     THE deletion entry point

CASCADE DELETION:
  A deleted account must take its ApprovedEmail record and its registration
  requests with it, and deleting an ApprovedEmail removes the matching
  account. Instead of two mutually-triggering hooks that have to disable
  each other to avoid recursing, both directions funnel into one explicit
  cleanup routine that runs inside a single transaction. There is nothing
  to re-enter.
*/
package billing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// REGISTRY RECORDS
// =============================================================================

// ApprovedEmail marks an email as vouched by management. Accounts whose
// email has an ApprovedEmail record authenticate-and-act; the record and the
// account live and die together.
type ApprovedEmail struct {
	Email      string
	ApprovedBy AccountID
	CreatedAt  time.Time
}

// RegistrationRequest records a self-registration awaiting review.
type RegistrationRequest struct {
	ID        string
	Email     string
	Role      Role
	FirstName string
	LastName  string
	CreatedAt time.Time
}

// Invitation is a single-use token entitling an email to a pre-approved
// account of the given role.
type Invitation struct {
	Token     string
	Email     string
	Role      Role
	IssuedBy  AccountID
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (i Invitation) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// =============================================================================
// ACCOUNT SERVICE
// =============================================================================

// AccountService owns account lifecycle operations.
type AccountService struct {
	Store  TxStore
	Logger *zap.Logger
	Now    func() time.Time
}

func NewAccountService(store TxStore, logger *zap.Logger) *AccountService {
	return &AccountService{Store: store, Logger: logger, Now: func() time.Time { return time.Now().UTC() }}
}

// CreateAccount is the management-direct path: the account is persisted
// approved, with an ApprovedEmail record.
func (s *AccountService) CreateAccount(ctx context.Context, a *Account, createdBy AccountID) (*Account, error) {
	if err := a.normalize(); err != nil {
		return nil, err
	}
	a.Approved = true
	return a, s.persistApproved(ctx, a, createdBy)
}

// Register is the self-registration path: the account is persisted
// unapproved (management accounts approve themselves by definition) and a
// registration request is recorded for the review queue.
func (s *AccountService) Register(ctx context.Context, a *Account) (*Account, error) {
	if err := a.normalize(); err != nil {
		return nil, err
	}
	if a.Role != RoleManagement {
		a.Approved = false
	}
	if a.ID == "" {
		a.ID = AccountID(uuid.NewString())
	}
	a.CreatedAt = s.Now()

	err := s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		return tx.SaveRegistrationRequest(ctx, RegistrationRequest{
			ID:        uuid.NewString(),
			Email:     a.Email,
			Role:      a.Role,
			FirstName: a.FirstName,
			LastName:  a.LastName,
			CreatedAt: a.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("account registered, pending approval",
		zap.String("email", a.Email), zap.String("role", string(a.Role)))
	return a, nil
}

// Approve marks a pending teacher/student approved and records the
// ApprovedEmail. The registration request, having served its purpose, is
// cleared.
func (s *AccountService) Approve(ctx context.Context, id AccountID, by AccountID) (*Account, error) {
	a, err := s.Store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, &NotFoundError{Kind: "account", ID: string(id)}
	}
	if a.Approved {
		return a, nil
	}
	a.Approved = true

	err = s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		if err := tx.SaveApprovedEmail(ctx, ApprovedEmail{Email: a.Email, ApprovedBy: by, CreatedAt: s.Now()}); err != nil {
			return err
		}
		return tx.DeleteRegistrationRequests(ctx, a.Email)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("account approved", zap.String("email", a.Email), zap.String("by", string(by)))
	return a, nil
}

// IssueInvitation mints a token entitling an email to a pre-approved account.
func (s *AccountService) IssueInvitation(ctx context.Context, email string, role Role, issuedBy AccountID, ttl time.Duration) (*Invitation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, &ValidationError{Field: "email", Reason: "must not be blank"}
	}
	if role != RoleTeacher && role != RoleStudent {
		return nil, &ValidationError{Field: "role", Reason: "invitations are for teachers and students"}
	}

	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generating invitation token: %w", err)
	}
	inv := Invitation{
		Token:     hex.EncodeToString(raw),
		Email:     email,
		Role:      role,
		IssuedBy:  issuedBy,
		ExpiresAt: s.Now().Add(ttl),
		CreatedAt: s.Now(),
	}
	if err := s.Store.SaveInvitation(ctx, inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// RedeemInvitation consumes a token and creates the pre-approved account.
func (s *AccountService) RedeemInvitation(ctx context.Context, token string, a *Account) (*Account, error) {
	inv, err := s.Store.GetInvitation(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, &NotFoundError{Kind: "invitation", ID: token}
	}
	if inv.Expired(s.Now()) {
		return nil, &ValidationError{Field: "token", Reason: "invitation expired"}
	}

	a.Email = inv.Email
	a.Role = inv.Role
	if err := a.normalize(); err != nil {
		return nil, err
	}
	a.Approved = true
	if a.ID == "" {
		a.ID = AccountID(uuid.NewString())
	}
	a.CreatedAt = s.Now()

	err = s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		if err := tx.SaveApprovedEmail(ctx, ApprovedEmail{Email: a.Email, ApprovedBy: inv.IssuedBy, CreatedAt: s.Now()}); err != nil {
			return err
		}
		return tx.DeleteInvitation(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("invitation redeemed", zap.String("email", a.Email), zap.String("role", string(a.Role)))
	return a, nil
}

// =============================================================================
// CASCADE DELETION - the single entry point
// =============================================================================

// DeleteAccount removes an account together with its ApprovedEmail record
// and registration requests, in one transaction. The storage layer cascades
// the account's lessons.
func (s *AccountService) DeleteAccount(ctx context.Context, id AccountID) error {
	a, err := s.Store.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if a == nil {
		return &NotFoundError{Kind: "account", ID: string(id)}
	}
	return s.deleteWithCleanup(ctx, a)
}

// DeleteApprovedEmail is the reverse direction of the legacy cascade:
// revoking an approved email removes the matching account too. Both
// directions share deleteWithCleanup, so there is no hook recursion to
// guard against.
func (s *AccountService) DeleteApprovedEmail(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	a, err := s.Store.GetAccountByEmail(ctx, email)
	if err != nil {
		return err
	}
	if a != nil {
		return s.deleteWithCleanup(ctx, a)
	}

	// No account: still clear the registry records.
	return s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.DeleteApprovedEmail(ctx, email); err != nil {
			return err
		}
		return tx.DeleteRegistrationRequests(ctx, email)
	})
}

func (s *AccountService) deleteWithCleanup(ctx context.Context, a *Account) error {
	err := s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.DeleteAccount(ctx, a.ID); err != nil {
			return err
		}
		if err := tx.DeleteApprovedEmail(ctx, a.Email); err != nil {
			return err
		}
		return tx.DeleteRegistrationRequests(ctx, a.Email)
	})
	if err != nil {
		return err
	}
	s.Logger.Info("account deleted with registry cleanup", zap.String("email", a.Email))
	return nil
}

func (s *AccountService) persistApproved(ctx context.Context, a *Account, by AccountID) error {
	if a.ID == "" {
		a.ID = AccountID(uuid.NewString())
	}
	a.CreatedAt = s.Now()
	return s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		return tx.SaveApprovedEmail(ctx, ApprovedEmail{Email: a.Email, ApprovedBy: by, CreatedAt: a.CreatedAt})
	})
}
