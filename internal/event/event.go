// Package event holds the MIDI channel-voice events exchanged with the host
// bus and their translation to and from serial wire frames.
package event

import "fmt"

// Event is one of NoteOff, NoteOn, PolyPressure, ControlChange,
// ProgramChange, ChannelPressure, PitchBend or Unknown.
type Event interface {
	// Chan is the MIDI channel, 0..15.
	Chan() uint8
	String() string
	event()
}

type NoteOff struct {
	Channel, Key, Velocity uint8
}

type NoteOn struct {
	Channel, Key, Velocity uint8
}

// PolyPressure is polyphonic key pressure (aftertouch on a single key).
type PolyPressure struct {
	Channel, Key, Pressure uint8
}

type ControlChange struct {
	Channel, Controller, Value uint8
}

type ProgramChange struct {
	Channel, Program uint8
}

// ChannelPressure is monophonic aftertouch.
type ChannelPressure struct {
	Channel, Pressure uint8
}

// PitchBend carries a signed bend value in -8192..8191, 0 being centered.
type PitchBend struct {
	Channel uint8
	Value   int16
}

// Unknown is a frame whose status does not name a channel-voice message.
// It is never sent to the bus.
type Unknown struct {
	Status, Data1, Data2 uint8
}

func (e NoteOff) Chan() uint8         { return e.Channel }
func (e NoteOn) Chan() uint8          { return e.Channel }
func (e PolyPressure) Chan() uint8    { return e.Channel }
func (e ControlChange) Chan() uint8   { return e.Channel }
func (e ProgramChange) Chan() uint8   { return e.Channel }
func (e ChannelPressure) Chan() uint8 { return e.Channel }
func (e PitchBend) Chan() uint8       { return e.Channel }
func (e Unknown) Chan() uint8         { return e.Status & 0x0F }

func (NoteOff) event()         {}
func (NoteOn) event()          {}
func (PolyPressure) event()    {}
func (ControlChange) event()   {}
func (ProgramChange) event()   {}
func (ChannelPressure) event() {}
func (PitchBend) event()       {}
func (Unknown) event()         {}

func (e NoteOff) String() string {
	return fmt.Sprintf("Note off           %03d %03d %03d", e.Channel, e.Key, e.Velocity)
}

func (e NoteOn) String() string {
	return fmt.Sprintf("Note on            %03d %03d %03d", e.Channel, e.Key, e.Velocity)
}

func (e PolyPressure) String() string {
	return fmt.Sprintf("Pressure change    %03d %03d %03d", e.Channel, e.Key, e.Pressure)
}

func (e ControlChange) String() string {
	return fmt.Sprintf("Controller change  %03d %03d %03d", e.Channel, e.Controller, e.Value)
}

func (e ProgramChange) String() string {
	return fmt.Sprintf("Program change     %03d %03d", e.Channel, e.Program)
}

func (e ChannelPressure) String() string {
	return fmt.Sprintf("Channel pressure   %03d %03d", e.Channel, e.Pressure)
}

func (e PitchBend) String() string {
	return fmt.Sprintf("Pitch bend         %03d %05d", e.Channel, e.Value)
}

func (e Unknown) String() string {
	return fmt.Sprintf("0x%X Unknown MIDI cmd   %03d %03d %03d", e.Status&0xF0, e.Chan(), e.Data1, e.Data2)
}
