package racebot

import (
	"context"
	"fmt"
	"time"

	"github.com/equinox-racing/racebot/internal/aptos"
	"github.com/equinox-racing/racebot/internal/aptos/bcs"
	"github.com/equinox-racing/racebot/internal/buildinfo"
	"github.com/equinox-racing/racebot/internal/logging"
	"golang.org/x/sync/semaphore"
)

// Submitter builds, signs, submits and waits for a transaction from the
// operator account.
type Submitter interface {
	SubmitAndWait(ctx context.Context, payload aptos.EntryFunction) (aptos.Transaction, error)
}

// Dispatcher sends advance_race and execute_quick_race. The operator account
// has one sequence number, so at most one transaction is in flight at a time.
type Dispatcher struct {
	contract  Contract
	submitter Submitter
	cooldown  *CooldownTable
	timeout   time.Duration
	now       func() time.Time

	sem *semaphore.Weighted
}

func NewDispatcher(contract Contract, submitter Submitter, cooldown *CooldownTable, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		contract:  contract,
		submitter: submitter,
		cooldown:  cooldown,
		timeout:   timeout,
		now:       time.Now,
		sem:       semaphore.NewWeighted(1),
	}
}

// Advance moves a started race forward one round. The cooldown table is
// written only after the transaction committed successfully.
func (d *Dispatcher) Advance(ctx context.Context, raceID uint64) (aptos.Transaction, error) {
	txn, err := d.dispatch(ctx, ActionAdvance, raceID)
	if err != nil {
		return txn, err
	}

	d.cooldown.Record(raceID, d.now())
	return txn, nil
}

// ExecuteQuick starts a quick race whose start time has passed.
func (d *Dispatcher) ExecuteQuick(ctx context.Context, raceID uint64) (aptos.Transaction, error) {
	return d.dispatch(ctx, ActionExecuteQuick, raceID)
}

func (d *Dispatcher) dispatch(ctx context.Context, action Action, raceID uint64) (aptos.Transaction, error) {
	logger := logging.FromContext(ctx).Named("dispatcher")

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return aptos.Transaction{}, &TransactionError{Action: action, RaceID: raceID, Err: fmt.Errorf("wait for submission slot: %w", err)}
	}
	defer d.sem.Release(1)

	// Shutdown must not start new submissions, but one that started is
	// allowed to confirm within the timeout.
	if err := ctx.Err(); err != nil {
		return aptos.Transaction{}, &TransactionError{Action: action, RaceID: raceID, Err: err}
	}

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	payload := aptos.EntryFunction{
		Function: d.contract.Function(action.function()),
		Args:     [][]byte{bcs.SerializeU64(raceID)},
	}

	txn, err := d.submitter.SubmitAndWait(txCtx, payload)
	if err != nil {
		logger.Errorw("transaction failed", "action", action.String(), "race_id", raceID, "tx", txn.Hash, "error", err)
		return txn, &TransactionError{Action: action, RaceID: raceID, Hash: txn.Hash, Err: err}
	}

	logger.Infow("transaction committed", "action", action.String(), "race_id", raceID, "tx", txn.Hash, "version", txn.Version,
		"explorer", fmt.Sprintf(buildinfo.AptosExplorerTx, txn.Hash))
	return txn, nil
}
