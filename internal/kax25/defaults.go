package kax25

import "time"

// Connected-mode defaults from spec.md §4.6 and §5, named after the
// teacher's AX25_*_DEFAULT constants.
const (
	ConnectTimeoutDefault = 3 * time.Second
	ConnectRetryDefault   = 5

	RetransmitBaseDefault   = 8 * time.Second
	RetransmitJitterDefault = 2 * time.Second
	RetransmitMaxDefault    = 4

	RXHoldoffDefault = 3 * time.Second

	CarrierSenseTickDefault = 200 * time.Millisecond
	CarrierSenseCapDefault  = 2 * time.Second

	AckHoldoffDefault = 1500 * time.Millisecond

	RetransmitWorkerTick = 500 * time.Millisecond
)
