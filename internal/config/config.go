// Package config holds the bridge settings: defaults, an optional JSON file
// and command line flags, in increasing order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chase3718/ttymidi/internal/serialport"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const (
	DefaultDevice   = "/dev/ttyUSB0"
	DefaultBaudRate = 31250 // MIDI
	DefaultName     = "ttymidi"
)

// Duration is a time.Duration written as "100ms" in JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds everything needed to run one bridge.
type Config struct {
	Device      string   `json:"serialDevice,omitempty"`
	BaudRate    int      `json:"baudRate,omitempty"`
	Backend     string   `json:"backend,omitempty"`
	Name        string   `json:"name,omitempty"`
	Verbose     bool     `json:"verbose,omitempty"`
	Quiet       bool     `json:"quiet,omitempty"`
	PrintOnly   bool     `json:"printOnly,omitempty"`
	PollTimeout Duration `json:"pollTimeout,omitempty"`
}

// Default returns /dev/ttyUSB0 at 31250 baud on the native backend, client
// name "ttymidi" and a 100ms poll timeout.
func Default() *Config {
	return &Config{
		Device:      DefaultDevice,
		BaudRate:    DefaultBaudRate,
		Backend:     serialport.BackendNative,
		Name:        DefaultName,
		PollTimeout: Duration(100 * time.Millisecond),
	}
}

// Load reads a JSON config file over the defaults. Fields missing from the
// file keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}
	return cfg, nil
}

// Bind registers the command line flags on fs, using c's current values as
// defaults. Each long flag also has a one-letter alias.
func (c *Config) Bind(fs *flag.FlagSet) {
	str := func(p *string, long, short, usage string) {
		fs.StringVar(p, long, *p, usage)
		fs.StringVar(p, short, *p, usage+" (shorthand)")
	}
	boolean := func(p *bool, long, short, usage string) {
		fs.BoolVar(p, long, *p, usage)
		fs.BoolVar(p, short, *p, usage+" (shorthand)")
	}

	str(&c.Device, "serialdevice", "s", "serial device to use")
	fs.IntVar(&c.BaudRate, "baudrate", c.BaudRate, "serial port baud rate")
	fs.IntVar(&c.BaudRate, "b", c.BaudRate, "serial port baud rate (shorthand)")
	boolean(&c.Verbose, "verbose", "v", "for debugging: produce verbose output")
	boolean(&c.PrintOnly, "printonly", "p", "super debugging: print values read from serial, and do nothing else")
	boolean(&c.Quiet, "quiet", "q", "don't produce any output, even when the print command is sent")
	str(&c.Name, "name", "n", "name of the MIDI client")
	fs.StringVar(&c.Backend, "backend", c.Backend, "serial backend: native (any baud rate) or posix (standard rates only)")
	fs.Var((*durationFlag)(&c.PollTimeout), "poll", "MIDI input poll timeout")
}

type durationFlag Duration

func (d *durationFlag) String() string { return time.Duration(*d).String() }

func (d *durationFlag) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = durationFlag(v)
	return nil
}

// Parse builds a config from command line arguments. With -config, the file
// is loaded first and flags given on the command line override it.
func Parse(name string, args []string) (*Config, error) {
	cfg, err := parse(name, Default(), args)
	if err != nil {
		return nil, err
	}
	if cfg.path != "" {
		file, err := Load(cfg.path)
		if err != nil {
			return nil, err
		}
		if cfg, err = parse(name, file, args); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg.Config, nil
}

type parsed struct {
	*Config
	path string
}

func parse(name string, base *Config, args []string) (parsed, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	base.Bind(fs)
	p := parsed{Config: base}
	fs.StringVar(&p.path, "config", "", "JSON config file; flags override its values")
	if err := fs.Parse(args); err != nil {
		return parsed{}, err
	}
	if fs.NArg() > 0 {
		return parsed{}, fmt.Errorf("%w: unexpected arguments %q", ErrInvalid, fs.Args())
	}
	return p, nil
}

// Validate checks the values that can be checked without touching devices.
func (c *Config) Validate() error {
	switch {
	case c.Device == "":
		return fmt.Errorf("%w: serial device is required", ErrInvalid)
	case c.BaudRate <= 0:
		return fmt.Errorf("%w: baud rate must be positive, got %d", ErrInvalid, c.BaudRate)
	case c.Backend != serialport.BackendNative && c.Backend != serialport.BackendPOSIX:
		return fmt.Errorf("%w: unknown serial backend %q", ErrInvalid, c.Backend)
	case c.Name == "":
		return fmt.Errorf("%w: client name is required", ErrInvalid)
	case c.PollTimeout <= 0:
		return fmt.Errorf("%w: poll timeout must be positive", ErrInvalid)
	}
	return nil
}
