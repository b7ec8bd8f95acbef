package blocksum

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// LineWriter is an Emitter that renders each result as "<seq> <digest>\n".
// Output is buffered; call Flush once the run is over, successful or not.
type LineWriter struct {
	w   *bufio.Writer
	enc Encoding
	buf []byte
}

// NewLineWriter returns a LineWriter writing to w with the given digest encoding.
func NewLineWriter(w io.Writer, enc Encoding) *LineWriter {
	return &LineWriter{w: bufio.NewWriter(w), enc: enc}
}

// Emit writes one line. Calls are serialized by the OrderedSink.
func (lw *LineWriter) Emit(seq uint64, d Digest) error {
	lw.buf = strconv.AppendUint(lw.buf[:0], seq, 10)
	lw.buf = append(lw.buf, ' ')
	lw.buf = append(lw.buf, lw.enc.Encode(d)...)
	lw.buf = append(lw.buf, '\n')
	_, err := lw.w.Write(lw.buf)
	return err
}

// Flush writes any buffered lines to the underlying writer.
func (lw *LineWriter) Flush() error { return lw.w.Flush() }

// ParseLine parses a line produced by LineWriter, with or without the trailing newline.
func ParseLine(line string, enc Encoding) (uint64, Digest, error) {
	line = strings.TrimSuffix(line, "\n")
	seqText, digestText, ok := strings.Cut(line, " ")
	if !ok {
		return 0, Digest{}, fmt.Errorf("malformed line %q: want \"<seq> <digest>\"", line)
	}
	seq, err := strconv.ParseUint(seqText, 10, 64)
	if err != nil {
		return 0, Digest{}, fmt.Errorf("malformed sequence in %q: %w", line, err)
	}
	d, err := enc.Decode(digestText)
	if err != nil {
		return 0, Digest{}, fmt.Errorf("malformed digest in %q: %w", line, err)
	}
	return seq, d, nil
}
