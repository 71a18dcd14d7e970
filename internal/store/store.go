// Package store defines the durable agent state and its persistence port.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"cryptoagent/internal/indicator"
	"cryptoagent/internal/model"
)

// StateVersion is the current State schema version.
const StateVersion = 1

// State is everything the agent needs to resume after a restart.
type State struct {
	Version int                       `json:"version"`
	SavedAt time.Time                 `json:"saved_at"`
	Lots    []model.Lot               `json:"lots"`
	Series  *indicator.EngineSnapshot `json:"series"`

	// Realized is the realised profit per instrument since the first run.
	Realized map[string]decimal.Decimal `json:"realized,omitempty"`
}

// Store loads state once at startup and saves it after every cycle.
// Load returns (nil, nil) when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, st *State) error
	Close() error
}
