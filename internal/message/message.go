// Package message holds the parsed form of an RFC 5322 message moving
// through the delivery pipeline: an ordered header block plus an opaque
// body payload.
package message

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/emersion/go-message/textproto"
)

// ErrMissingHeader indicates a message lacking one of the required
// From/To/Date fields.
var ErrMissingHeader = errors.New("missing required header")

// Message is a parsed mail message. Header preserves field order and
// permits duplicate field names; Body is carried byte-for-byte.
type Message struct {
	Header textproto.Header
	Body   []byte
}

// Parse splits raw bytes into header and body.
func Parse(raw []byte) (*Message, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	hdr, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	return &Message{Header: hdr, Body: body}, nil
}

// CheckRequired verifies the fields a message must carry to be
// deliverable. A message failing this check is discarded whole, never
// partially delivered.
func (m *Message) CheckRequired() error {
	for _, name := range []string{"From", "To", "Date"} {
		if m.Header.Get(name) == "" {
			return fmt.Errorf("%w: %s", ErrMissingHeader, name)
		}
	}
	return nil
}

// WriteTo serializes the message in wire form: header block, blank
// line, body.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, m.Header); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}
	buf.Write(m.Body)
	return buf.WriteTo(w)
}

// Bytes returns the serialized message, as appended to destinations.
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
