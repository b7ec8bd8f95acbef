package blocksum

import "errors"

const Namespace = "blocksum"

var (
	ErrInvalidConfig   = errors.New(Namespace + ": invalid configuration")
	ErrCancelled       = errors.New(Namespace + ": pipeline cancelled")
	ErrReadFailed      = errors.New(Namespace + ": block read failed")
	ErrSizeMismatch    = errors.New(Namespace + ": input size changed while reading")
	ErrHashFailed      = errors.New(Namespace + ": block hashing failed")
	ErrEmitFailed      = errors.New(Namespace + ": result emission failed")
	ErrInvalidSequence = errors.New(Namespace + ": sequence outside of the admissible range")
	ErrIncomplete      = errors.New(Namespace + ": pipeline finished without emitting every block")
	ErrShutdownTimeout = errors.New(Namespace + ": pipeline roles did not stop within the shutdown timeout")
)
