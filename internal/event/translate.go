package event

import (
	"errors"
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/chase3718/ttymidi/internal/wire"
)

// ErrUnknownMessage is returned for events that have no wire or bus form.
var ErrUnknownMessage = errors.New("unknown MIDI message")

const (
	typeNoteOff         = 0x80
	typeNoteOn          = 0x90
	typePolyPressure    = 0xA0
	typeControlChange   = 0xB0
	typeProgramChange   = 0xC0
	typeChannelPressure = 0xD0
	typePitchBend       = 0xE0

	bendCenter = 8192
)

// FromFrame decodes a serial frame. Status classes outside 0x80..0xE0 give
// Unknown.
func FromFrame(f wire.Frame) Event {
	ch := f.Channel()
	d1, d2 := f[1]&wire.DataMask, f[2]&wire.DataMask

	switch f.Type() {
	case typeNoteOff:
		return NoteOff{Channel: ch, Key: d1, Velocity: d2}
	case typeNoteOn:
		return NoteOn{Channel: ch, Key: d1, Velocity: d2}
	case typePolyPressure:
		return PolyPressure{Channel: ch, Key: d1, Pressure: d2}
	case typeControlChange:
		return ControlChange{Channel: ch, Controller: d1, Value: d2}
	case typeProgramChange:
		return ProgramChange{Channel: ch, Program: d1}
	case typeChannelPressure:
		return ChannelPressure{Channel: ch, Pressure: d1}
	case typePitchBend:
		v := int(d1) | int(d2)<<7
		return PitchBend{Channel: ch, Value: int16(v - bendCenter)}
	}
	return Unknown{Status: f[0], Data1: f[1], Data2: f[2]}
}

// ToFrame encodes an event for the serial wire. Use Frame.Bytes to get the
// 2 or 3 bytes that are actually transmitted.
func ToFrame(e Event) (wire.Frame, error) {
	switch e := e.(type) {
	case NoteOff:
		return frame(typeNoteOff, e.Channel, e.Key, e.Velocity), nil
	case NoteOn:
		return frame(typeNoteOn, e.Channel, e.Key, e.Velocity), nil
	case PolyPressure:
		return frame(typePolyPressure, e.Channel, e.Key, e.Pressure), nil
	case ControlChange:
		return frame(typeControlChange, e.Channel, e.Controller, e.Value), nil
	case ProgramChange:
		return frame(typeProgramChange, e.Channel, e.Program, 0), nil
	case ChannelPressure:
		return frame(typeChannelPressure, e.Channel, e.Pressure, 0), nil
	case PitchBend:
		v := int(e.Value) + bendCenter
		return frame(typePitchBend, e.Channel, uint8(v&0x7F), uint8(v>>7)), nil
	}
	return wire.Frame{}, fmt.Errorf("%w: %v", ErrUnknownMessage, e)
}

func frame(typ, ch, d1, d2 uint8) wire.Frame {
	return wire.Frame{typ | ch&wire.ChannelMask, d1 & wire.DataMask, d2 & wire.DataMask}
}

// ToMessage converts an event into the bus library's message form.
func ToMessage(e Event) (gomidi.Message, error) {
	switch e := e.(type) {
	case NoteOff:
		return gomidi.NoteOffVelocity(e.Channel, e.Key, e.Velocity), nil
	case NoteOn:
		return gomidi.NoteOn(e.Channel, e.Key, e.Velocity), nil
	case PolyPressure:
		return gomidi.PolyAfterTouch(e.Channel, e.Key, e.Pressure), nil
	case ControlChange:
		return gomidi.ControlChange(e.Channel, e.Controller, e.Value), nil
	case ProgramChange:
		return gomidi.ProgramChange(e.Channel, e.Program), nil
	case ChannelPressure:
		return gomidi.AfterTouch(e.Channel, e.Pressure), nil
	case PitchBend:
		return gomidi.Pitchbend(e.Channel, e.Value), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownMessage, e)
}

// FromMessage converts a bus message. It reports false for messages that are
// not channel-voice messages (sysex, clock, ...).
func FromMessage(msg gomidi.Message) (Event, bool) {
	var ch, a, b uint8
	var rel int16
	var abs uint16

	switch {
	case msg.GetNoteOn(&ch, &a, &b):
		return NoteOn{Channel: ch, Key: a, Velocity: b}, true
	case msg.GetNoteOff(&ch, &a, &b):
		return NoteOff{Channel: ch, Key: a, Velocity: b}, true
	case msg.GetPolyAfterTouch(&ch, &a, &b):
		return PolyPressure{Channel: ch, Key: a, Pressure: b}, true
	case msg.GetControlChange(&ch, &a, &b):
		return ControlChange{Channel: ch, Controller: a, Value: b}, true
	case msg.GetProgramChange(&ch, &a):
		return ProgramChange{Channel: ch, Program: a}, true
	case msg.GetAfterTouch(&ch, &a):
		return ChannelPressure{Channel: ch, Pressure: a}, true
	case msg.GetPitchBend(&ch, &rel, &abs):
		return PitchBend{Channel: ch, Value: rel}, true
	}
	return nil, false
}
