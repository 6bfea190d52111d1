package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// CredentialSaver persists a rotated credential pair for a storage account.
// The CLI glue implements this by sealing the pair and writing it to the
// catalog in one statement.
type CredentialSaver interface {
	SaveCredentials(ctx context.Context, accountID int64, creds *Credentials) error
}

// Coordinator wraps outbound provider calls with the refresh-and-retry-once
// policy. The state machine is:
//
//	call → ErrAuthExpired → refresh (at most once) → persist → retry once
//	     → ErrAuthExpired again → ErrAuthTerminal
//
// Any other error passes through untouched. Refresh is never attempted when
// the gateway holds no refresh credential.
type Coordinator struct {
	saver  CredentialSaver
	logger *slog.Logger
}

// NewCoordinator creates a Coordinator. saver may be nil in tests, in which
// case rotated credentials are adopted in memory but not persisted.
func NewCoordinator(saver CredentialSaver, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{saver: saver, logger: logger}
}

// Call executes op through the refresh-and-retry-once policy for operations
// that return only an error.
func (c *Coordinator) Call(ctx context.Context, accountID int64, gw Gateway, op func(context.Context) error) error {
	_, err := Do(ctx, c, accountID, gw, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})

	return err
}

// Do executes op through the refresh-and-retry-once policy, returning op's
// value. It is the generic form of Call for operations that produce a result
// (listing pages, quota snapshots).
func Do[T any](ctx context.Context, c *Coordinator, accountID int64, gw Gateway, op func(context.Context) (T, error)) (T, error) {
	v, err := op(ctx)
	if err == nil || !errors.Is(err, ErrAuthExpired) {
		return v, err
	}

	var zero T

	if !gw.CurrentCredentials().CanRefresh() {
		c.logger.Warn("credentials expired and no refresh token present",
			slog.Int64("account_id", accountID),
			slog.String("provider", gw.Name()),
		)

		return zero, fmt.Errorf("account %d: %w", accountID, ErrAuthTerminal)
	}

	c.logger.Info("credentials expired, refreshing",
		slog.Int64("account_id", accountID),
		slog.String("provider", gw.Name()),
	)

	rotated, refreshErr := gw.Refresh(ctx)
	if refreshErr != nil {
		return zero, fmt.Errorf("account %d: refresh failed: %w", accountID, errors.Join(ErrAuthTerminal, refreshErr))
	}

	if c.saver != nil {
		if saveErr := c.saver.SaveCredentials(ctx, accountID, rotated); saveErr != nil {
			// A rotated-but-unpersisted refresh token can orphan the account
			// on providers that invalidate the old one. Fail loudly.
			return zero, fmt.Errorf("account %d: persisting rotated credentials: %w", accountID, saveErr)
		}
	}

	v, err = op(ctx)
	if errors.Is(err, ErrAuthExpired) {
		// Refreshed token still rejected. Terminal — never loop.
		return zero, fmt.Errorf("account %d: still unauthorized after refresh: %w", accountID, ErrAuthTerminal)
	}

	return v, err
}
