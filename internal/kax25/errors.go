package kax25

import "errors"

// ErrAddressInvalid reports an AX.25 address field whose decoded
// callsign contains a non-printable character, per spec.md §4.2 and §7.
var ErrAddressInvalid = errors.New("kax25: invalid address")

// ErrFrameTooShort reports a frame too short to contain even a
// destination and source address plus control byte.
var ErrFrameTooShort = errors.New("kax25: frame too short")

// ErrNoExtensionBit reports an address field list that was exhausted
// without finding the extension bit that marks the final address.
var ErrNoExtensionBit = errors.New("kax25: no extension bit found in address field")
