package repository

import "errors"

var (
	// ErrDuplicate signals that a unique pair already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrHasPayments signals that a record is referenced by recorded payments.
	ErrHasPayments = errors.New("record has payments")
	// ErrNotPending signals that an obligation left the pending state.
	ErrNotPending = errors.New("obligation is not pending")
)
