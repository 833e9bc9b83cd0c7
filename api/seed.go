/*
seed.go - Demo dataset for development

PURPOSE:
  Seeds a small, recognizable academy so the API is explorable immediately:
  one management account, two teachers, a couple of students, and one
  submitted lesson batch with its invoices. Idempotent: seeding an already
  seeded database is a no-op.

USAGE:
  Enabled with BILLING_SEED_DEMO=true. Development only.
*/
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/cadenza/academy-billing/billing"
)

const seedManagementEmail = "admin@cadenza-academy.test"

// SeedDemo loads the demo dataset through the same services the API uses.
func (h *Handler) SeedDemo(ctx context.Context) error {
	existing, err := h.Store.GetAccountByEmail(ctx, seedManagementEmail)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil // already seeded
	}

	admin, err := h.Accounts.CreateAccount(ctx, &billing.Account{
		Email:     seedManagementEmail,
		FirstName: "Maria",
		LastName:  "Fontaine",
		Role:      billing.RoleManagement,
	}, "")
	if err != nil {
		return fmt.Errorf("seeding management account: %w", err)
	}

	sarah, err := h.Accounts.CreateAccount(ctx, &billing.Account{
		Email:     "sarah.chen@cadenza-academy.test",
		FirstName: "Sarah",
		LastName:  "Chen",
		Role:      billing.RoleTeacher,
		Teacher: &billing.TeacherProfile{
			HourlyRate:  billing.MustDecimal("80"),
			Instruments: "piano,violin",
		},
	}, admin.ID)
	if err != nil {
		return fmt.Errorf("seeding teacher: %w", err)
	}

	_, err = h.Accounts.CreateAccount(ctx, &billing.Account{
		Email:     "diego.ramirez@cadenza-academy.test",
		FirstName: "Diego",
		LastName:  "Ramirez",
		Role:      billing.RoleTeacher,
		Teacher: &billing.TeacherProfile{
			HourlyRate:  billing.MustDecimal("95"),
			Instruments: "guitar",
		},
	}, admin.ID)
	if err != nil {
		return fmt.Errorf("seeding teacher: %w", err)
	}

	// One batch: two lessons for one student, one for another. Students are
	// auto-created by the submission path itself.
	lessonDate := time.Now().UTC().AddDate(0, 0, -3)
	_, err = h.Submissions.SubmitLessons(ctx, sarah.ID, []billing.LessonReport{
		{
			StudentName: "Alice Johnson",
			LessonType:  billing.LessonInPerson,
			Duration:    billing.MustDecimal("1.5"),
			Date:        lessonDate,
			Notes:       "Scales and first Burgmuller piece",
		},
		{
			StudentName: "Alice Johnson",
			LessonType:  billing.LessonOnline,
			Duration:    billing.MustDecimal("1"),
			Date:        lessonDate.AddDate(0, 0, 1),
		},
		{
			StudentName: "Ben Okafor",
			LessonType:  billing.LessonInPerson,
			Duration:    billing.MustDecimal("2"),
			Date:        lessonDate.AddDate(0, 0, 2),
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("seeding lesson batch: %w", err)
	}

	h.Logger.Info("demo dataset seeded")
	return nil
}
