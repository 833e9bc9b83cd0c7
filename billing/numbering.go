/*
numbering.go - Human-readable invoice numbers

FORMAT:
  INV-{year}-{month}-{sequence}, e.g. INV-2026-08-0001

  The sequence is per year-month: the highest existing sequence for the
  month's prefix plus one, starting at 0001 for a fresh month. Uniqueness
  across all invoices is enforced by the storage layer; callers that race on
  the same prefix must serialize through the store's transaction support.

LEGACY TOLERANCE:
  Numbers with a non-numeric suffix (hand-entered legacy data) are skipped
  when scanning for the maximum, so a corrupt number degrades to restarting
  the sequence rather than failing the whole submission.

  Generated exactly once per invoice, at first save. Never regenerated.
*/
package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NumberSource lists the existing invoice numbers for a year-month prefix.
// Implemented by the invoice stores.
type NumberSource interface {
	ListInvoiceNumbers(ctx context.Context, prefix string) ([]string, error)
}

// InvoiceNumberPrefix returns the year-month prefix for a point in time,
// e.g. "INV-2026-08".
func InvoiceNumberPrefix(t time.Time) string {
	return fmt.Sprintf("INV-%04d-%02d", t.Year(), int(t.Month()))
}

// NextInvoiceNumber generates the next number for the month containing now.
func NextInvoiceNumber(ctx context.Context, src NumberSource, now time.Time) (string, error) {
	prefix := InvoiceNumberPrefix(now)
	existing, err := src.ListInvoiceNumbers(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("listing invoice numbers for %s: %w", prefix, err)
	}

	max := 0
	for _, number := range existing {
		suffix := strings.TrimPrefix(number, prefix+"-")
		seq, err := strconv.Atoi(suffix)
		if err != nil || seq < 0 {
			continue // malformed legacy number, skip
		}
		if seq > max {
			max = seq
		}
	}

	return fmt.Sprintf("%s-%04d", prefix, max+1), nil
}
