// Package sessions maps Slack threads to Claude CLI continuation tokens.
package sessions

import "github.com/haasonsaas/claudebridge/pkg/models"

// Store holds the continuation token issued for each thread.
//
// A token, once recorded for a key, is never replaced: SetIfAbsent keeps the
// first session established for a thread.
type Store interface {
	// Get returns the token for key, if any.
	Get(key models.ThreadKey) (string, bool)
	// SetIfAbsent records token for key unless one is already present.
	// It reports whether the token was stored.
	SetIfAbsent(key models.ThreadKey, token string) bool
	// Len returns the number of threads with a token.
	Len() int
}
