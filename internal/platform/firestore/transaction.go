package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

// TxFunc runs inside a Firestore transaction. Reads must happen before
// writes, per the Firestore transaction contract.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption customises transaction behaviour.
type TxOption func(*txConfig)

type txConfig struct {
	attempts int
	timeout  time.Duration
}

// WithTxAttempts caps the optimistic-concurrency retries.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout bounds the whole transaction, retries included.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// RunTransaction executes fn within a Firestore transaction, applying the
// default attempt cap and deadline unless the caller already carries a
// tighter one.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	runCtx := ctx
	if cfg.timeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > cfg.timeout {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, cfg.timeout)
			defer cancel()
		}
	}

	var txOpts []firestore.TransactionOption
	if cfg.attempts > 0 {
		txOpts = append(txOpts, firestore.MaxAttempts(cfg.attempts))
	}

	return WrapError("transaction", client.RunTransaction(runCtx, fn, txOpts...))
}
