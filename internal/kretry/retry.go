// Package kretry implements the outbound APRS message retry engine:
// two-tier fast/slow resend scheduling driven off whether a message has
// been observed digipeated, per spec.md §4.9.
//
// Grounded in the scheduling shape of the teacher's retransmit worker
// (src/dlq.go's dead-letter retry loop) generalized from a single retry
// tier to spec.md's fast/slow split, since the teacher has no APRS
// message-ack concept of its own.
package kretry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Defaults from spec.md §4.9.
const (
	FastIntervalDefault = 20 * time.Second
	SlowIntervalDefault = 600 * time.Second
	MaxRetriesDefault   = 3
	SchedulerTick       = 5 * time.Second
)

// Sender transmits a message's text toward ToCall. The engine calls this
// both for the initial send and every resend.
type Sender interface {
	SendMessage(toCall, text string) error
}

// Outcome is the terminal state callback fired exactly once per message,
// for UI/logging layers to observe delivery confirmation or failure.
type Outcome func(msgID string, acked bool)

// Message tracks one outbound APRS message (or ack) through its retry
// lifecycle.
type Message struct {
	ToCall string
	Text   string
	MsgID  string // empty for ack messages, per spec.md §4.9

	SentAt     time.Time
	Retries    int
	Digipeated bool
	Acked      bool
	Failed     bool
}

// Engine owns the set of outstanding outbound messages and resends them
// on the fast/slow schedule.
type Engine struct {
	mu       sync.Mutex
	messages map[string]*Message // keyed by MsgID; ack messages use a synthetic key
	sender   Sender
	log      *log.Logger

	fastInterval time.Duration
	slowInterval time.Duration
	maxRetries   int

	onOutcome Outcome
	seq       int
}

// New constructs an Engine. Zero durations/maxRetries fall back to the
// spec.md §4.9 defaults.
func New(sender Sender, fastInterval, slowInterval time.Duration, maxRetries int, onOutcome Outcome, logger *log.Logger) *Engine {
	if fastInterval == 0 {
		fastInterval = FastIntervalDefault
	}
	if slowInterval == 0 {
		slowInterval = SlowIntervalDefault
	}
	if maxRetries == 0 {
		maxRetries = MaxRetriesDefault
	}
	return &Engine{
		messages:     make(map[string]*Message),
		sender:       sender,
		log:          logger,
		fastInterval: fastInterval,
		slowInterval: slowInterval,
		maxRetries:   maxRetries,
		onOutcome:    onOutcome,
	}
}

// Send submits a new outbound message with a generated msgID, sends it
// immediately, and registers it for retry tracking.
func (e *Engine) Send(toCall, text string) (msgID string, err error) {
	e.mu.Lock()
	e.seq++
	msgID = fmt.Sprintf("%d", e.seq%1000)
	e.mu.Unlock()
	return msgID, e.enqueue(toCall, text, msgID)
}

// SendAck submits an ack-message (msg_id omitted, per spec.md §4.9): it
// is retried like any other message but never expects an ack of its own.
func (e *Engine) SendAck(toCall, ackedMsgID string) error {
	text := "ack" + ackedMsgID
	return e.enqueue(toCall, text, "")
}

func (e *Engine) enqueue(toCall, text, msgID string) error {
	key := trackingKey(toCall, msgID)
	m := &Message{ToCall: toCall, Text: text, MsgID: msgID, SentAt: time.Now()}

	e.mu.Lock()
	e.messages[key] = m
	e.mu.Unlock()

	return e.sender.SendMessage(toCall, text)
}

// trackingKey disambiguates ack messages (empty MsgID) by destination
// and the time of the call, since multiple unacked acks to different
// callsigns must not collide in the map.
func trackingKey(toCall, msgID string) string {
	if msgID == "" {
		return "ack:" + toCall + ":" + time.Now().String()
	}
	return toCall + ":" + msgID
}

// HandleIncomingAck processes a received message whose text begins with
// "ack<msg_id>" and whose destination is our own callsign, marking the
// matching outbound message Acked (terminal), per spec.md §4.9.
func (e *Engine) HandleIncomingAck(fromCall, text string) {
	if !strings.HasPrefix(text, "ack") {
		return
	}
	ackedID := strings.TrimSpace(text[3:])

	e.mu.Lock()
	defer e.mu.Unlock()
	for key, m := range e.messages {
		if m.MsgID == ackedID && m.ToCall == fromCall && !m.Acked {
			m.Acked = true
			delete(e.messages, key)
			if e.onOutcome != nil {
				e.onOutcome(m.MsgID, true)
			}
			return
		}
	}
}

// MarkDigipeated flags every outstanding message to toCall carrying
// msgID as having been observed digipeated — proof it reached the
// network, which switches it from the fast retry tier to the slow one.
func (e *Engine) MarkDigipeated(toCall, msgID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range e.messages {
		if m.MsgID == msgID && m.ToCall == toCall {
			m.Digipeated = true
		}
	}
}

// Run starts the retry scheduler and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(SchedulerTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// tick resends every outstanding message whose retry interval has
// elapsed, and marks failed messages that have exhausted maxRetries,
// per spec.md §4.9's scheduling rule.
func (e *Engine) tick() {
	now := time.Now()

	e.mu.Lock()
	var toResend []*Message
	var toFail []string
	for key, m := range e.messages {
		if m.Acked || m.Failed {
			continue
		}
		interval := e.fastInterval
		if m.Digipeated {
			interval = e.slowInterval
		}
		if now.Sub(m.SentAt) < interval {
			continue
		}
		if m.Retries >= e.maxRetries {
			m.Failed = true
			toFail = append(toFail, key)
			continue
		}
		m.Retries++
		m.SentAt = now
		toResend = append(toResend, m)
	}
	e.mu.Unlock()

	for _, key := range toFail {
		e.mu.Lock()
		m := e.messages[key]
		delete(e.messages, key)
		e.mu.Unlock()
		if m != nil && e.onOutcome != nil {
			e.onOutcome(m.MsgID, false)
		}
		if e.log != nil && m != nil {
			e.log.Warn("message delivery failed, retry budget exhausted", "to", m.ToCall, "msg_id", m.MsgID)
		}
	}

	for _, m := range toResend {
		if err := e.sender.SendMessage(m.ToCall, m.Text); err != nil && e.log != nil {
			e.log.Error("resend failed", "to", m.ToCall, "msg_id", m.MsgID, "err", err)
		}
	}
}

// Outstanding returns a snapshot of every message still being tracked,
// for status/diagnostic queries.
func (e *Engine) Outstanding() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Message, 0, len(e.messages))
	for _, m := range e.messages {
		out = append(out, *m)
	}
	return out
}
