package ami

import (
	"bufio"
	"io"
	"strings"
	"sync/atomic"
)

const readBufferSize = 64 << 10

// Decoder frames a byte stream into Messages.
type Decoder struct {
	r         *bufio.Reader
	malformed atomic.Int64

	// OnMalformed, when set, is called with every dropped line.
	OnMalformed func(line string)
}

// NewDecoder returns a decoder reading from r. A *bufio.Reader is used as-is
// so that callers can share buffered state with it.
func NewDecoder(r io.Reader) *Decoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, readBufferSize)
	}
	return &Decoder{r: br}
}

// Decode returns the next non-empty message. A block cut short by the end of
// the stream is discarded. Every read failure is returned as *TransportError.
func (d *Decoder) Decode() (Message, error) {
	msg := Message{}
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			return nil, &TransportError{Op: "read", Err: err}
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			if len(msg) > 0 {
				return msg, nil
			}
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			d.malformed.Add(1)
			if d.OnMalformed != nil {
				d.OnMalformed(line)
			}
			continue
		}
		msg.Set(key, strings.TrimSpace(value))
	}
}

// Malformed returns the number of lines dropped so far.
func (d *Decoder) Malformed() int64 {
	return d.malformed.Load()
}

// Encoder serializes outbound blocks.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the action as one block.
func (e *Encoder) Encode(a Action) error {
	return e.EncodeFields(a.lines())
}

// EncodeFields writes the fields in order followed by the terminating blank
// line, in a single write. Values are flattened to one line.
func (e *Encoder) EncodeFields(fields []Field) error {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f.Key)
		b.WriteString(": ")
		b.WriteString(flatten(f.Value))
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	if _, err := io.WriteString(e.w, b.String()); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func flatten(v string) string {
	if strings.ContainsAny(v, "\r\n") {
		return lineBreaks.Replace(v)
	}
	return v
}
