package ktransport

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// PTT keys and unkeys the transmitter, the capability the teacher's
// src/ptt.go exposes through RTS/DTR/parallel-port/GPIO/Hamlib back ends.
// This module implements only the GPIO line case (GPIOPTT); RTS/DTR
// serial control lines, a parallel printer port and Hamlib PTT are not
// implemented (the Hamlib binding here only cycles squelch).
type PTT interface {
	Key(on bool) error
	Close() error
}

// GPIOPTT keys PTT via a GPIO character-device line, the modern
// replacement for the teacher's sysfs "export_gpio" dance (src/ptt.go),
// grounded in the teacher's own note that "a better solution... is the
// new gpiod approach."
type GPIOPTT struct {
	line   *gpiocdev.Line
	invert bool
}

// OpenGPIOPTT requests offset on chip (e.g. "gpiochip0", 17) as an output
// line for PTT keying. invert matches the teacher's PTT invert flag for
// active-low keying circuits.
func OpenGPIOPTT(chip string, offset int, invert bool) (*GPIOPTT, error) {
	initial := 0
	if invert {
		initial = 1
	}
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(initial), gpiocdev.WithConsumer("samoyed-ptt"))
	if err != nil {
		return nil, fmt.Errorf("ktransport: request PTT line %s:%d: %w", chip, offset, err)
	}
	return &GPIOPTT{line: line, invert: invert}, nil
}

// Key asserts (on=true) or de-asserts PTT.
func (p *GPIOPTT) Key(on bool) error {
	v := 0
	if on != p.invert {
		v = 1
	}
	return p.line.SetValue(v)
}

// Close releases the GPIO line, returning it to its default state.
func (p *GPIOPTT) Close() error {
	return p.line.Close()
}
