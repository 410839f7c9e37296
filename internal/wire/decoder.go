package wire

import (
	"bytes"
	"fmt"
	"io"
)

// DefaultMaxComment is the largest comment payload kept by a Decoder unless
// WithMaxComment says otherwise.
const DefaultMaxComment = 1023

// Packet is one decoded item: either a Frame or a Comment.
type Packet interface {
	packet()
}

func (Frame) packet()   {}
func (Comment) packet() {}

// Comment is a non-MIDI text message multiplexed on the wire.
type Comment struct {
	Text string
	// Length is the payload length announced on the wire. It is larger than
	// len(Text) when the payload was truncated or contained a NUL byte.
	Length    int
	Truncated bool
}

func (c Comment) String() string {
	if c.Truncated {
		return fmt.Sprintf("%s [truncated from %d bytes]", c.Text, c.Length)
	}
	return c.Text
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxComment bounds the number of comment payload bytes kept. Bytes past
// the bound are still consumed from the stream.
func WithMaxComment(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxComment = n
		}
	}
}

// Decoder turns a raw serial byte stream into frames and comments.
//
// The wire has no delimiter: a byte with the high bit set is always a status
// byte and data bytes never have it. A status byte arriving before the
// current frame is complete abandons that frame and starts a new one, so a
// frame handed out never mixes bytes of two messages. The status slot
// survives between frames, which means data bytes that follow a complete
// frame are captured under the previous status.
//
// Decoder is not safe for concurrent use.
type Decoder struct {
	r          io.ByteReader
	buf        Frame
	aligned    bool
	maxComment int
}

func NewDecoder(r io.ByteReader, opts ...Option) *Decoder {
	d := &Decoder{r: r, maxComment: DefaultMaxComment}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next blocks until a complete Frame or Comment has been read. Errors from
// the byte source are returned as is; a partially read frame is discarded.
func (d *Decoder) Next() (Packet, error) {
	if !d.aligned {
		if err := d.align(); err != nil {
			return nil, err
		}
	}

	i := 1
	for i < 3 {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}

		if isStatus(b) {
			// resync: a status byte always restarts capture
			d.buf[0] = b
			i = 1
			continue
		}

		d.buf[i] = b
		switch {
		case i == 2:
			i = 3
		case twoByte(d.buf[0]):
			d.buf[2] = 0
			i = 3
		default:
			i = 2
		}
	}

	if d.buf.isComment() {
		return d.readComment()
	}
	return d.buf, nil
}

// align discards bytes until the first status byte.
func (d *Decoder) align() error {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return err
		}
		if isStatus(b) {
			d.buf[0] = b
			d.aligned = true
			return nil
		}
	}
}

func (d *Decoder) readComment() (Packet, error) {
	// The status slot now holds the comment marker, not a usable running
	// status; realign on the next status byte.
	d.aligned = false

	n, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	length := int(n)
	keep := min(length, d.maxComment)

	payload := make([]byte, 0, keep)
	for j := 0; j < length; j++ {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if j < keep {
			payload = append(payload, b)
		}
	}

	if k := bytes.IndexByte(payload, 0); k >= 0 {
		payload = payload[:k]
	}
	return Comment{Text: string(payload), Length: length, Truncated: length > keep}, nil
}
