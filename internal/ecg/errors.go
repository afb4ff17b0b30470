package ecg

import (
	"errors"
	"fmt"
)

// ErrOutOfOrder signals that an append violated the strictly-increasing
// sequence / non-decreasing timestamp invariant. This is a programming
// contract between the controller and the buffer, not a data problem, so it
// is propagated up rather than recovered from. The buffer is left unchanged.
var ErrOutOfOrder = errors.New("sample out of order")

// ConfigError describes a rejected configuration value. The previous
// configuration stays in effect.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// ExportError wraps an export I/O failure together with the attempted
// sequence range so the caller can retry.
type ExportError struct {
	SeqStart uint64
	SeqEnd   uint64
	Err      error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export of range [%d,%d] failed: %v", e.SeqStart, e.SeqEnd, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }
