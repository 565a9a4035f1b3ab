package shieldsdk

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyInitialized = errors.New("client already initialized")
	ErrNotInitialized     = errors.New("client not initialized")
	ErrLocked             = errors.New("client is locked")
	ErrMissingPayer       = errors.New("missing payer, shield needs a signer")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrEmptyInbox         = errors.New("no received utxos to merge")
)

// StaleTreeError is returned when a transaction is still built against an
// outdated tree after the local mirror was refreshed.
type StaleTreeError struct {
	Action string
	Err    error
}

func (e StaleTreeError) Error() string {
	return fmt.Sprintf("%s failed after merkle tree refresh: %s", e.Action, e.Err)
}

func (e StaleTreeError) Unwrap() error {
	return e.Err
}
