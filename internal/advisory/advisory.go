// Package advisory holds model.Advisor implementations that need no network.
package advisory

import (
	"context"

	"cryptoagent/internal/model"
)

// Neutral always votes neutral. Debug mode uses it so the advisory strategy
// never fires without a live vote source.
type Neutral struct{}

var _ model.Advisor = Neutral{}

// Vote returns a single neutral vote.
func (Neutral) Vote(ctx context.Context, _ string) (model.Vote, error) {
	return model.Vote{Neutral: 1}, ctx.Err()
}

// Fixed returns the same vote for every symbol.
type Fixed model.Vote

// Vote returns f.
func (f Fixed) Vote(ctx context.Context, _ string) (model.Vote, error) {
	return model.Vote(f), ctx.Err()
}
