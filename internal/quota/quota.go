// Package quota limits conversational queries per user and role.
package quota

import (
	"context"
	"strings"

	"repolens/internal/apperr"
	"repolens/internal/store"
)

// Unlimited is returned as the remaining count when a role has no limit.
const Unlimited = -1

// Limiter checks and consumes a user's query allowance. Counts live in a
// store.CounterStore so they survive restarts when the store does.
type Limiter struct {
	counters     store.CounterStore
	defaultLimit int
	perRole      map[string]int
}

// NewLimiter uses defaultLimit for roles missing from perRole. A limit of
// zero or less means unlimited.
func NewLimiter(counters store.CounterStore, defaultLimit int, perRole map[string]int) *Limiter {
	roles := make(map[string]int, len(perRole))
	for role, n := range perRole {
		roles[normalizeRole(role)] = n
	}
	return &Limiter{counters: counters, defaultLimit: defaultLimit, perRole: roles}
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func (l *Limiter) Limit(role string) int {
	if n, ok := l.perRole[normalizeRole(role)]; ok {
		return n
	}
	return l.defaultLimit
}

// Remaining reports how many queries userID has left without consuming one.
func (l *Limiter) Remaining(ctx context.Context, userID, role string) (int, error) {
	limit := l.Limit(role)
	if limit <= 0 {
		return Unlimited, nil
	}
	used, err := l.counters.GetUsageCounter(ctx, userID)
	if err != nil {
		return 0, err
	}
	return max(limit-used, 0), nil
}

// Check fails with QuotaExceeded when userID has no queries left. It does not
// consume one.
func (l *Limiter) Check(ctx context.Context, userID, role string) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.New(apperr.CodeInvalidArgument, "user id is required")
	}
	left, err := l.Remaining(ctx, userID, role)
	if err != nil {
		return err
	}
	if left == 0 {
		limit := l.Limit(role)
		return apperr.Newf(apperr.CodeQuotaExceeded, "user %s used %d of %d queries", userID, limit, limit)
	}
	return nil
}

// Consume takes one query from userID's allowance and returns what is left.
// It fails with QuotaExceeded once the count has reached the role's limit.
func (l *Limiter) Consume(ctx context.Context, userID, role string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, apperr.New(apperr.CodeInvalidArgument, "user id is required")
	}
	limit := l.Limit(role)
	if limit > 0 {
		used, err := l.counters.GetUsageCounter(ctx, userID)
		if err != nil {
			return 0, err
		}
		if used >= limit {
			return 0, apperr.Newf(apperr.CodeQuotaExceeded, "user %s used %d of %d queries", userID, used, limit)
		}
	}
	used, err := l.counters.IncrementUsageCounter(ctx, userID)
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		return Unlimited, nil
	}
	// Concurrent callers can pass the read above together; the increment decides.
	if used > limit {
		return 0, apperr.Newf(apperr.CodeQuotaExceeded, "user %s used %d of %d queries", userID, limit, limit)
	}
	return limit - used, nil
}
