package blocksum

import (
	"errors"
	"fmt"
)

// BlockMetaError exposes the sequence number of the block a failure belongs to.
type BlockMetaError interface {
	error
	Unwrap() error
	Sequence() uint64
}

type blockError struct {
	err error
	seq uint64
}

func newBlockError(err error, seq uint64) error {
	if err == nil {
		return nil
	}
	return &blockError{err: err, seq: seq}
}

func (e *blockError) Error() string    { return fmt.Sprintf("block %d: %s", e.seq, e.err.Error()) }
func (e *blockError) Unwrap() error    { return e.err }
func (e *blockError) Sequence() uint64 { return e.seq }

func (e *blockError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "block(seq=%d): %+v", e.seq, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// ExtractSequence returns the sequence number of the failing block if err carries one.
func ExtractSequence(err error) (uint64, bool) {
	var bme BlockMetaError
	if errors.As(err, &bme) {
		return bme.Sequence(), true
	}
	return 0, false
}
