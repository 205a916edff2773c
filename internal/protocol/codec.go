package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrMalformed marks a record that split correctly on the delimiter but did
// not decode; the stream itself is still usable.
var ErrMalformed = errors.New("malformed message record")

// maxRecordSize bounds a single record so a misbehaving client cannot grow
// the scan buffer without limit.
const maxRecordSize = 64 * 1024

// Decoder reads newline-delimited JSON records, buffering partial reads.
type Decoder struct {
	scanner *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxRecordSize)
	return &Decoder{scanner: scanner}
}

// Decode returns the next client message. A record that fails to unmarshal
// yields an error wrapping ErrMalformed; io.EOF signals an orderly close.
func (d *Decoder) Decode() (ClientMessage, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg ClientMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return msg, nil
	}
	if err := d.scanner.Err(); err != nil {
		return ClientMessage{}, err
	}
	return ClientMessage{}, io.EOF
}

// Encoder writes one JSON record per line. Encode is safe for concurrent use
// so the session goroutine and the broadcaster can share one connection.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.w.Write(data)
	return err
}
