/*
rates.go - Rate resolution for new lessons

PURPOSE:
  Determines the (teacher_rate, student_rate) pair to lock into a lesson at
  creation time.

RESOLUTION RULES:
  online:     teacher_rate = settings.OnlineTeacherRate
              student_rate = settings.OnlineStudentRate
  in_person:  teacher_rate = teacher's own HourlyRate
              student_rate = settings.InPersonStudentRate

RATE LOCKING:
  The resolver runs ONLY when a lesson is constructed with unset rate fields.
  It is never consulted again for an existing lesson, so later changes to
  RateSettings or a teacher's hourly rate cannot move money on lessons that
  already happened. "Unset" is an explicit nil pointer in LessonSpec, never a
  magic default value comparison.

LAZY DEFAULTS:
  If no RateSettings record exists yet, the resolver creates one with the
  documented defaults and persists it under the well-known key.
*/
package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// RateResolver resolves the dual rates for new lessons from the injected
// settings store. It holds no mutable state of its own.
type RateResolver struct {
	Settings SettingsStore
}

func NewRateResolver(settings SettingsStore) *RateResolver {
	return &RateResolver{Settings: settings}
}

// Resolve returns the (teacherRate, studentRate) pair for a new lesson of the
// given type taught by the given teacher.
func (r *RateResolver) Resolve(ctx context.Context, lessonType LessonType, teacher *Account) (decimal.Decimal, decimal.Decimal, error) {
	if !lessonType.Valid() {
		return decimal.Zero, decimal.Zero, &ValidationError{Field: "lesson_type", Reason: "unknown lesson type " + string(lessonType)}
	}

	settings, err := r.settings(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	switch lessonType {
	case LessonOnline:
		return settings.OnlineTeacherRate, settings.OnlineStudentRate, nil
	default: // in_person
		hourly := DefaultTeacherHourlyRate
		if teacher != nil && teacher.Teacher != nil && teacher.Teacher.HourlyRate.IsPositive() {
			hourly = teacher.Teacher.HourlyRate
		}
		return hourly, settings.InPersonStudentRate, nil
	}
}

// settings loads the single RateSettings record, creating it with defaults on
// first use.
func (r *RateResolver) settings(ctx context.Context) (RateSettings, error) {
	existing, err := r.Settings.GetRateSettings(ctx)
	if err != nil {
		return RateSettings{}, fmt.Errorf("loading rate settings: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}

	defaults := DefaultRateSettings()
	if err := r.Settings.SaveRateSettings(ctx, defaults); err != nil {
		return RateSettings{}, fmt.Errorf("initializing rate settings: %w", err)
	}
	return defaults, nil
}
