// Package capture turns captured 802.11 frames into DetectedEvents and
// delivers frames from the configured source.
package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/telhawk-systems/airhawk/common/macaddr"
	"github.com/telhawk-systems/airhawk/detector/internal/model"
)

// 802.11 frame type and subtype numbers.
const (
	TypeManagement    = 0
	SubtypeDeauth     = 12
	ElementDSParamSet = 3
)

// Element is one 802.11 information element. Info is base64 in JSON.
type Element struct {
	ID   int    `json:"id"`
	Info []byte `json:"info"`
}

// Frame is the parsed form of a captured frame as published by the capture
// collaborator.
type Frame struct {
	Type       int       `json:"type"`
	Subtype    int       `json:"subtype"`
	Addr1      string    `json:"addr1,omitempty"`
	Addr2      string    `json:"addr2,omitempty"`
	Addr3      string    `json:"addr3,omitempty"`
	Signal     RawSignal `json:"dbm_antsignal,omitempty"`
	Elements   []Element `json:"elements,omitempty"`
	ReasonCode int       `json:"reason_code,omitempty"`
	CapturedAt time.Time `json:"captured_at,omitzero"`
}

// RawSignal is the radiotap antenna signal as captured. Capture tools emit
// it as a number, a string, or "?" when the driver does not report it.
type RawSignal string

func (s *RawSignal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = RawSignal(str)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("dbm_antsignal: %w", err)
		}
		*s = RawSignal(n.String())
	}
	return nil
}

func (s RawSignal) MarshalJSON() ([]byte, error) {
	if n, err := strconv.Atoi(string(s)); err == nil {
		return []byte(strconv.Itoa(n)), nil
	}
	return json.Marshal(string(s))
}

// IsDeauth reports whether f is a management deauthentication frame.
func (f Frame) IsDeauth() bool {
	return f.Type == TypeManagement && f.Subtype == SubtypeDeauth
}

// ParseFrame decodes one JSON frame.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// Classify extracts a DetectedEvent from a deauthentication frame. It
// returns false for any other frame and for frames whose transmitter address
// is not a valid MAC. An unparseable signal or missing channel does not
// reject the frame.
func Classify(f Frame, now time.Time) (model.DetectedEvent, bool) {
	if !f.IsDeauth() {
		return model.DetectedEvent{}, false
	}
	mac, err := macaddr.Parse(f.Addr2)
	if err != nil {
		return model.DetectedEvent{}, false
	}

	sig, _ := model.ParseSignal(string(f.Signal))

	observed := f.CapturedAt
	if observed.IsZero() {
		observed = now
	}

	return model.DetectedEvent{
		TransmitterMAC: mac,
		Signal:         sig,
		Channel:        ChannelFromElements(f.Elements),
		Kind:           model.KindDeauth,
		ObservedAt:     observed,
	}, true
}

// ChannelFromElements reads the channel from the first DS Parameter Set
// element. Absence, an empty element or an out-of-range value is Unknown.
func ChannelFromElements(elems []Element) model.Channel {
	for _, e := range elems {
		if e.ID != ElementDSParamSet {
			continue
		}
		if len(e.Info) == 0 {
			return model.UnknownChannel
		}
		return model.ChannelOf(int(e.Info[0]))
	}
	return model.UnknownChannel
}
