// Package aggregate derives read-only views over the request collection:
// dashboard counters and monthly report sequences. Nothing is cached; every call
// reads the store afresh.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"ewastePickup/internal/apperr"
	"ewastePickup/models"
)

// Basis selects which timestamp places a request in a report month.
type Basis string

const (
	BasisCreated   Basis = "created"
	BasisCompleted Basis = "completed"
)

// ParseBasis accepts "created" or "completed"; empty means created.
func ParseBasis(s string) (Basis, error) {
	switch b := Basis(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BasisCreated, nil
	case BasisCreated, BasisCompleted:
		return b, nil
	}
	return "", fmt.Errorf("unknown report basis %q", s)
}

// ErrConsumed is yielded when a report sequence is ranged over a second time.
var ErrConsumed = errors.New("report sequence already consumed")

// RequestLister is the slice of the request store aggregation reads from.
type RequestLister interface {
	ListAll(ctx context.Context) ([]models.PickupRequest, error)
}

type Service struct {
	requests RequestLister
	basis    Basis
}

func NewService(requests RequestLister, basis Basis) *Service {
	if basis == "" {
		basis = BasisCreated
	}
	return &Service{requests: requests, basis: basis}
}

// Basis reports which timestamp monthly reports filter on.
func (s *Service) Basis() Basis { return s.basis }

// DashboardStats counts every request by status in a single pass.
func (s *Service) DashboardStats(ctx context.Context) (models.DashboardStats, error) {
	all, err := s.requests.ListAll(ctx)
	if err != nil {
		return models.DashboardStats{}, err
	}
	var st models.DashboardStats
	for _, r := range all {
		st.Total++
		switch r.Status {
		case models.StatusPending:
			st.Pending++
		case models.StatusAssigned:
			st.Assigned++
		case models.StatusCompleted:
			st.Completed++
		case models.StatusCancelled:
			st.Cancelled++
		}
	}
	return st, nil
}

var monthRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ParseMonth parses a YYYY-MM string into the first instant of that UTC month.
func ParseMonth(month string) (time.Time, error) {
	if !monthRe.MatchString(month) {
		return time.Time{}, apperr.Validation("month must be YYYY-MM, got %q", month)
	}
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, apperr.Validation("month must be YYYY-MM, got %q", month)
	}
	return t.UTC(), nil
}

func (s *Service) stamp(r *models.PickupRequest) (time.Time, bool) {
	if s.basis == BasisCompleted {
		if r.CompletedAt == nil {
			return time.Time{}, false
		}
		return *r.CompletedAt, true
	}
	return r.CreatedAt, true
}

// MonthlyReport validates month immediately and returns a lazy sequence of the
// requests falling in it, ordered by id. The store is read on first iteration.
// The sequence is one-shot: ranging over it again yields ErrConsumed.
func (s *Service) MonthlyReport(ctx context.Context, month string) (iter.Seq2[models.PickupRequest, error], error) {
	start, err := ParseMonth(month)
	if err != nil {
		return nil, err
	}
	end := start.AddDate(0, 1, 0)
	var used atomic.Bool
	return func(yield func(models.PickupRequest, error) bool) {
		if used.Swap(true) {
			yield(models.PickupRequest{}, ErrConsumed)
			return
		}
		all, err := s.requests.ListAll(ctx)
		if err != nil {
			yield(models.PickupRequest{}, err)
			return
		}
		for _, r := range all {
			ts, ok := s.stamp(&r)
			if !ok {
				continue
			}
			ts = ts.UTC()
			if ts.Before(start) || !ts.Before(end) {
				continue
			}
			if !yield(r, nil) {
				return
			}
		}
	}, nil
}
