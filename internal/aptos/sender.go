package aptos

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/equinox-racing/racebot/internal/logging"
)

type SenderOptions struct {
	MaxGasAmount uint64
	GasUnitPrice uint64
	// Expiration is how long after signing the node may still accept the
	// transaction.
	Expiration time.Duration
}

// VMStatusError is returned for a transaction committed with a failed status.
type VMStatusError struct {
	Hash     string
	VMStatus string
}

func (e *VMStatusError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.Hash, e.VMStatus)
}

// Sender builds, signs, submits and waits for entry function transactions
// from one account. It reads the sequence number from the node on every
// call, so callers must not run two submissions at once.
type Sender struct {
	client  *Client
	account *Account
	opts    SenderOptions
	now     func() time.Time

	mtx     sync.Mutex
	chainID uint8
}

func NewSender(client *Client, account *Account, opts SenderOptions) *Sender {
	return &Sender{client: client, account: account, opts: opts, now: time.Now}
}

func (s *Sender) Account() *Account {
	return s.account
}

// SubmitAndWait returns the committed transaction. A transaction that was
// committed but aborted is reported as *VMStatusError.
func (s *Sender) SubmitAndWait(ctx context.Context, payload EntryFunction) (Transaction, error) {
	logger := logging.FromContext(ctx).Named("aptos.sender")

	raw, err := s.build(ctx, payload)
	if err != nil {
		return Transaction{}, fmt.Errorf("build transaction: %w", err)
	}

	pending, err := s.client.SubmitTransaction(ctx, raw.Sign(s.account))
	if err != nil {
		return Transaction{}, err
	}

	logger.Debugf("submitted %s seq=%d hash=%s", payload.Function, raw.SequenceNumber, pending.Hash)

	txn, err := s.client.WaitForTransaction(ctx, pending.Hash)
	if err != nil {
		return txn, err
	}

	if !txn.Success {
		return txn, &VMStatusError{Hash: txn.Hash, VMStatus: txn.VMStatus}
	}

	return txn, nil
}

func (s *Sender) build(ctx context.Context, payload EntryFunction) (RawTransaction, error) {
	chainID, err := s.chain(ctx)
	if err != nil {
		return RawTransaction{}, err
	}

	info, err := s.client.Account(ctx, s.account.Address())
	if err != nil {
		return RawTransaction{}, err
	}

	seq, err := info.Sequence()
	if err != nil {
		return RawTransaction{}, err
	}

	return RawTransaction{
		Sender:                  s.account.Address(),
		SequenceNumber:          seq,
		Payload:                 payload,
		MaxGasAmount:            s.opts.MaxGasAmount,
		GasUnitPrice:            s.opts.GasUnitPrice,
		ExpirationTimestampSecs: uint64(s.now().Add(s.opts.Expiration).Unix()),
		ChainID:                 chainID,
	}, nil
}

func (s *Sender) chain(ctx context.Context) (uint8, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.chainID != 0 {
		return s.chainID, nil
	}

	info, err := s.client.LedgerInfo(ctx)
	if err != nil {
		return 0, err
	}

	s.chainID = info.ChainID
	return s.chainID, nil
}
