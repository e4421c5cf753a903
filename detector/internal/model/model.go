// Package model holds the values that flow through the detection pipeline.
package model

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/airhawk/common/macaddr"
)

// DeauthMessage is the message recorded for every deauthentication sighting.
const DeauthMessage = "DeAuthentication"

// ErrSignalUnparseable reports a signal field that is missing or not an integer.
var ErrSignalUnparseable = errors.New("signal strength unparseable")

// FrameKind identifies the management frame a DetectedEvent came from.
type FrameKind string

const KindDeauth FrameKind = "deauth"

// Signal is a received signal strength in dBm. Raw keeps the text as captured
// so unparseable values ("?") can still be logged verbatim.
type Signal struct {
	Value int
	Valid bool
	Raw   string
}

// ParseSignal parses a dBm reading. Missing and "?" readings, as well as
// anything that is not an integer, return an invalid Signal and
// ErrSignalUnparseable.
func ParseSignal(raw string) (Signal, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "?" {
		return Signal{Raw: "?"}, ErrSignalUnparseable
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return Signal{Raw: s}, ErrSignalUnparseable
	}
	return Signal{Value: v, Valid: true, Raw: s}, nil
}

// SignalOf builds a valid Signal from an integer reading.
func SignalOf(dbm int) Signal {
	return Signal{Value: dbm, Valid: true, Raw: strconv.Itoa(dbm)}
}

func (s Signal) String() string {
	if s.Valid {
		return strconv.Itoa(s.Value)
	}
	if s.Raw == "" {
		return "?"
	}
	return s.Raw
}

// Channel is a Wi-Fi channel number, or Unknown.
type Channel struct {
	Number int
	Known  bool
}

// MinChannel and MaxChannel bound the channel numbers accepted from a DS
// Parameter Set element.
const (
	MinChannel = 1
	MaxChannel = 196
)

// UnknownChannel is the zero Channel.
var UnknownChannel = Channel{}

// ChannelOf returns a known channel, or UnknownChannel if n is out of range.
func ChannelOf(n int) Channel {
	if n < MinChannel || n > MaxChannel {
		return UnknownChannel
	}
	return Channel{Number: n, Known: true}
}

func (c Channel) String() string {
	if !c.Known {
		return "Unknown"
	}
	return strconv.Itoa(c.Number)
}

// DetectedEvent is one qualifying captured frame.
type DetectedEvent struct {
	TransmitterMAC macaddr.MAC
	Signal         Signal
	Channel        Channel
	Kind           FrameKind
	ObservedAt     time.Time
}

// LogEvent is what the local store and the ledger record for a DetectedEvent
// that passed the dedup check.
type LogEvent struct {
	ID       string    `json:"id"`
	MAC      string    `json:"mac"`
	Signal   string    `json:"signal"`
	Channel  string    `json:"channel"`
	Message  string    `json:"message"`
	LoggedAt time.Time `json:"logged_at"`
}

// NewLogEvent builds the LogEvent for ev with a fresh time-ordered ID.
func NewLogEvent(ev DetectedEvent, now time.Time) LogEvent {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return LogEvent{
		ID:       id.String(),
		MAC:      ev.TransmitterMAC.String(),
		Signal:   ev.Signal.String(),
		Channel:  ev.Channel.String(),
		Message:  DeauthMessage,
		LoggedAt: now.UTC(),
	}
}

// LedgerRecord is a LogEvent as appended to the ledger, signed so tampering
// is detectable.
type LedgerRecord struct {
	LogEvent
	Signature string `json:"signature"`
}
