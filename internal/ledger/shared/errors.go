package shared

import "errors"

var (
	// ErrValidation indicates malformed or missing input, including unresolvable references.
	ErrValidation = errors.New("ledger: validation failed")
	// ErrUnbalancedEntry indicates debits != credits, or a line with both or neither side set.
	ErrUnbalancedEntry = errors.New("ledger: journal lines must balance")
	// ErrInvalidState indicates the operation is illegal for the current lifecycle state.
	ErrInvalidState = errors.New("ledger: operation not allowed in current state")
	// ErrConflict indicates deletion or mutation blocked by existing children or references.
	ErrConflict = errors.New("ledger: conflicting references exist")
	// ErrNotFound indicates a missing entity.
	ErrNotFound = errors.New("ledger: not found")
	// ErrSourceAlreadyLinked indicates an idempotent replay of an already-posted source.
	ErrSourceAlreadyLinked = errors.New("ledger: source already linked to a journal entry")
	// ErrSourceConflict indicates the source link unique constraint fired.
	ErrSourceConflict = errors.New("ledger: source link conflict")
)
