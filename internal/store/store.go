// Package store persists finished analyses and per-user usage counters.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"repolens/internal/apperr"
	"repolens/internal/artifact"
)

// DocumentStore keeps one composite analysis per (repository URL, user ID).
// Get reports a missing document with an apperr NotFound.
type DocumentStore interface {
	Get(ctx context.Context, repoURL, userID string) (artifact.CompositeAnalysis, error)
	Put(ctx context.Context, repoURL, userID string, doc artifact.CompositeAnalysis) error
}

// CounterStore keeps a monotonically increasing usage count per user.
type CounterStore interface {
	IncrementUsageCounter(ctx context.Context, userID string) (int, error)
	GetUsageCounter(ctx context.Context, userID string) (int, error)
}

type Store interface {
	DocumentStore
	CounterStore
}

func normalizeKey(repoURL, userID string) (string, string) {
	return strings.TrimRight(strings.TrimSpace(repoURL), "/"), strings.TrimSpace(userID)
}

func docKey(repoURL, userID string) string {
	u, id := normalizeKey(repoURL, userID)
	return id + "\x00" + u
}

// urlHash is a stable, path-safe name for a repository URL.
func urlHash(repoURL string) string {
	sum := sha256.Sum256([]byte(repoURL))
	return hex.EncodeToString(sum[:16])
}

func errNotFound(repoURL, userID string) error {
	return apperr.Newf(apperr.CodeNotFound, "no analysis for %s (user %q)", repoURL, userID)
}

type combined struct {
	DocumentStore
	CounterStore
}

// Combine serves documents from docs and counters from counters, e.g. S3 for
// documents and Postgres for counters.
func Combine(docs DocumentStore, counters CounterStore) Store {
	return combined{DocumentStore: docs, CounterStore: counters}
}
