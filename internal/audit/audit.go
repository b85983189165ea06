// Package audit implements the engine's stateless post-mutation invariant
// checks, grounded on the Python prototype's SystemAuditor
// (src/orderbook/audit.py): conservation of contracts and registry
// integrity, plus an informational total of system cash that is reported,
// not checked. The Coordinator runs a full audit after every place,
// cancel, and settle command while its debug audit is on (the default);
// a failure here means state has already gone
// corrupt and trading should halt, not that the triggering command should
// be retried.
package audit

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/contracts-engine/internal/engine"
	"github.com/atmx/contracts-engine/internal/ledger"
)

// Failure describes one violated invariant. RunFull returns every
// violation it finds rather than stopping at the first, so an operator
// can see the full extent of the corruption.
type Failure struct {
	Check   string
	Message string
}

func (f Failure) String() string { return fmt.Sprintf("%s: %s", f.Check, f.Message) }

// Auditor runs invariant checks against a live Engine and Ledger. It
// holds no state of its own.
type Auditor struct {
	engine *engine.Engine
	ledger *ledger.Ledger
}

// New returns an Auditor bound to the given engine and ledger.
func New(e *engine.Engine, l *ledger.Ledger) *Auditor {
	return &Auditor{engine: e, ledger: l}
}

// RunFull runs every invariant check and returns every failure found. A
// nil/empty result means the system is sound.
func (a *Auditor) RunFull() []Failure {
	var failures []Failure
	failures = append(failures, a.auditPositions()...)
	failures = append(failures, a.auditRegistry()...)
	// Cash has no independent ground truth to compare against in this
	// engine (no separate "total minted" ledger), so there is no cash
	// check here; TotalSystemCash only reports the total, mirroring the
	// prototype's own stated optimization-for-later.
	return failures
}

// TotalSystemCash reports total available+locked cash across every
// account. It is informational, not a pass/fail check: this engine keeps
// no independent "total minted" ledger to compare it against, mirroring
// the prototype's own _audit_cash, which only ever prints the total.
func (a *Auditor) TotalSystemCash() decimal.Decimal {
	return a.ledger.TotalCash()
}

// auditPositions checks that every market's net position across all
// users sums to zero: every long has a matching short, per spec's
// contract-conservation invariant.
func (a *Auditor) auditPositions() []Failure {
	var failures []Failure
	for _, marketId := range a.engine.AllMarkets() {
		book, ok := a.engine.GetBook(marketId)
		if !ok {
			continue
		}
		var total int64
		for _, qty := range book.Positions() {
			total += qty
		}
		if total != 0 {
			failures = append(failures, Failure{
				Check:   "positions",
				Message: fmt.Sprintf("market %v unbalanced: net %d", marketId, total),
			})
		}
	}
	return failures
}

// auditRegistry checks that the engine's global order registry agrees
// with what each market's book actually has resting, by comparing the
// summed quantity on both sides.
func (a *Auditor) auditRegistry() []Failure {
	var failures []Failure
	for _, marketId := range a.engine.AllMarkets() {
		book, ok := a.engine.GetBook(marketId)
		if !ok {
			continue
		}
		var bookVolume int64
		for _, order := range book.RestingOrders() {
			bookVolume += order.Quantity
		}
		registryVolume := a.engine.RegistryQuantitySum(marketId)
		if bookVolume != registryVolume {
			failures = append(failures, Failure{
				Check: "registry",
				Message: fmt.Sprintf("market %v mismatch: book=%d registry=%d",
					marketId, bookVolume, registryVolume),
			})
		}
	}
	return failures
}
