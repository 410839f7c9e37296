package wire

import "fmt"

const (
	StatusMask  = 0x80
	TypeMask    = 0xF0
	ChannelMask = 0x0F
	DataMask    = 0x7F

	TypeProgramChange   = 0xC0
	TypeChannelPressure = 0xD0

	// CommentStatus followed by two zero bytes opens a comment frame:
	//
	//	[0xFF][0x00][0x00][LEN][payload...]
	CommentStatus = 0xFF
)

// Frame is one channel-voice message as it travels on the serial wire.
// Program Change and Channel Pressure only use the first two bytes; the third
// slot is meaningless for them and never transmitted.
type Frame [3]byte

func (f Frame) Status() byte  { return f[0] }
func (f Frame) Type() byte    { return f[0] & TypeMask }
func (f Frame) Channel() byte { return f[0] & ChannelMask }

// Len is the number of bytes the frame occupies on the wire.
func (f Frame) Len() int {
	if twoByte(f[0]) {
		return 2
	}
	return 3
}

// Bytes builds the on-wire representation:
//
//	[STATUS|CH][DATA1]          program change, channel pressure
//	[STATUS|CH][DATA1][DATA2]   everything else
func (f Frame) Bytes() []byte {
	out := []byte{f[0], f[1] & DataMask, f[2] & DataMask}
	return out[:f.Len()]
}

func (f Frame) String() string {
	if f.Len() == 2 {
		return fmt.Sprintf("%02X %02X", f[0], f[1])
	}
	return fmt.Sprintf("%02X %02X %02X", f[0], f[1], f[2])
}

func (f Frame) isComment() bool {
	return f[0] == CommentStatus && f[1] == 0 && f[2] == 0
}

func twoByte(status byte) bool {
	t := status & TypeMask
	return t == TypeProgramChange || t == TypeChannelPressure
}

func isStatus(b byte) bool { return b&StatusMask != 0 }
