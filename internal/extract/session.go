package extract

import (
	"context"

	"github.com/dvloznov/console-reconciler/internal/domain"
	"github.com/dvloznov/console-reconciler/internal/logger"
)

// Session accumulates one extraction run. It is owned by a single Run call
// and is never shared between goroutines.
type Session struct {
	seen   map[string]struct{}
	groups map[string][]domain.TransactionRecord
	order  []string

	CurrentPage    int
	DuplicateCount int
	// MissingKeyCount counts rows dropped because they had no Order ID.
	MissingKeyCount int
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{
		seen:   make(map[string]struct{}),
		groups: make(map[string][]domain.TransactionRecord),
	}
}

// Merge adds rec unless its Order ID was already seen. It reports whether
// the record was added. Duplicates are counted, never an error.
func (s *Session) Merge(ctx context.Context, rec domain.TransactionRecord) bool {
	log := logger.FromContext(ctx)

	if rec.OrderID == "" {
		s.MissingKeyCount++
		log.Warn().Str("gateway", rec.Gateway).Int("page", s.CurrentPage).Msg("row without order id skipped")
		return false
	}
	if _, dup := s.seen[rec.OrderID]; dup {
		s.DuplicateCount++
		log.Warn().Str("order_id", rec.OrderID).Int("page", s.CurrentPage).Msg("duplicate order id skipped")
		return false
	}

	s.seen[rec.OrderID] = struct{}{}
	if _, ok := s.groups[rec.Gateway]; !ok {
		s.order = append(s.order, rec.Gateway)
	}
	s.groups[rec.Gateway] = append(s.groups[rec.Gateway], rec)
	return true
}

// Seen reports whether orderID was merged.
func (s *Session) Seen(orderID string) bool {
	_, ok := s.seen[orderID]
	return ok
}

// Gateways returns gateway names in first-seen order.
func (s *Session) Gateways() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Records returns a copy of the gateway's records in extraction order.
func (s *Session) Records(gateway string) []domain.TransactionRecord {
	recs := s.groups[gateway]
	out := make([]domain.TransactionRecord, len(recs))
	copy(out, recs)
	return out
}

// Len returns the number of merged records.
func (s *Session) Len() int {
	return len(s.seen)
}
