// Package store defines the persistence interface for the contracts
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing). Unlike the teacher's
// per-row market/ledger schema, this engine's durable unit is the whole
// snapshot document spec.md §6 describes: every market's resting orders
// and positions, every account's balances and portfolio, and the id
// mapper's state, written and read as one object.
package store

import (
	"context"

	"github.com/atmx/contracts-engine/internal/engine"
	"github.com/atmx/contracts-engine/internal/idmap"
	"github.com/atmx/contracts-engine/internal/model"
)

// Document is the full persisted state of the engine: the three
// top-level keys spec.md's snapshot format names, assembled by the
// Coordinator's owner (cmd/server) from the Engine, Ledger, and idmap
// Mapper it holds.
type Document struct {
	Markets  []engine.MarketState `json:"engine.markets"`
	Accounts []model.Account      `json:"economy"`
	Mapper   idmap.State          `json:"mapper"`
}

// Store persists and retrieves the whole-engine snapshot document.
type Store interface {
	// SaveSnapshot durably writes the current engine state, replacing
	// whatever was previously saved.
	SaveSnapshot(ctx context.Context, doc Document) error

	// LoadSnapshot returns the most recently saved snapshot. ok is false
	// if nothing has ever been saved.
	LoadSnapshot(ctx context.Context) (doc Document, ok bool, err error)
}
