// Package cache stores executed result sets keyed by the statement that
// produced them, so repeated questions skip the database entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

type Entry struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// ResultCache is best-effort: Get misses on any backend failure and Put
// never reports one. The pipeline works identically with or without it.
type ResultCache interface {
	Get(ctx context.Context, sqlText string) (Entry, bool)
	Put(ctx context.Context, sqlText string, entry Entry)
}

// Key derives the cache key from the normalized statement text. Case is
// preserved because quoted identifiers are case-sensitive.
func Key(sqlText string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sqlText)))
	return "queryloom:result:" + hex.EncodeToString(sum[:])
}
