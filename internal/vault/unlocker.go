package vault

import (
	"context"
	"fmt"
)

// Database is the connection a Vault unlocks.
// *database.Connection satisfies it.
type Database interface {
	Executor
	IsDatabaseReady(ctx context.Context) bool
}

// Unlocker ties a Vault to one database connection.
//
// The first successful Unlock applies the key and runs AfterUnlock.
// Later calls only check the passphrase, so the same request can be
// replayed to obtain a fresh access token.
type Unlocker struct {
	Vault *Vault
	DB    Database

	// AfterUnlock runs once the database answers queries, e.g. migrations.
	// It runs on every successful unlock and must be idempotent.
	AfterUnlock func(ctx context.Context) error
}

// Unlock verifies passphrase and makes the database usable.
func (u *Unlocker) Unlock(ctx context.Context, passphrase string) error {
	if u.Vault.Initialized() && u.DB.IsDatabaseReady(ctx) {
		if _, err := u.Vault.DeriveKey(passphrase); err != nil {
			return err
		}
	} else {
		if err := u.Vault.Unlock(ctx, passphrase, u.DB); err != nil {
			return err
		}
		if !u.DB.IsDatabaseReady(ctx) {
			return ErrStillLocked
		}
	}

	if u.AfterUnlock != nil {
		if err := u.AfterUnlock(ctx); err != nil {
			return fmt.Errorf("after unlock: %w", err)
		}
	}
	return nil
}
