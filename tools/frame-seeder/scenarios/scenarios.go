// Package scenarios generates synthetic 802.11 frames in the JSON form the
// detector reads from capture files and the capture.frames.dot11 subject.
package scenarios

import (
	"slices"
	"time"
)

// 802.11 numbers used by the generated frames.
const (
	TypeManagement    = 0
	TypeData          = 2
	SubtypeBeacon     = 8
	SubtypeDeauth     = 12
	ElementSSID       = 0
	ElementDSParamSet = 3

	Broadcast = "ff:ff:ff:ff:ff:ff"
)

// Element is one information element; Info is base64 in JSON.
type Element struct {
	ID   int    `json:"id"`
	Info []byte `json:"info"`
}

// Frame mirrors the detector's captured-frame wire format.
type Frame struct {
	Type       int       `json:"type"`
	Subtype    int       `json:"subtype"`
	Addr1      string    `json:"addr1,omitempty"`
	Addr2      string    `json:"addr2,omitempty"`
	Addr3      string    `json:"addr3,omitempty"`
	Signal     any       `json:"dbm_antsignal,omitempty"`
	Elements   []Element `json:"elements,omitempty"`
	ReasonCode int       `json:"reason_code,omitempty"`
	CapturedAt time.Time `json:"captured_at,omitzero"`
}

// IsDeauth reports whether f is a management deauthentication frame.
func (f Frame) IsDeauth() bool {
	return f.Type == TypeManagement && f.Subtype == SubtypeDeauth
}

// Config parameterizes a scenario run.
type Config struct {
	Now   time.Time
	Count int
	// NoiseRatio is the share of non-deauth frames mixed into random traffic.
	NoiseRatio float64
}

// Scenario produces a sequence of frames.
type Scenario interface {
	Name() string
	Description() string
	Generate(cfg Config) []Frame
}

var registry = make(map[string]Scenario)

// Register adds s to the registry.
func Register(s Scenario) {
	registry[s.Name()] = s
}

// Get retrieves a scenario by name.
func Get(name string) (Scenario, bool) {
	s, ok := registry[name]
	return s, ok
}

// List returns the registered scenario names, sorted.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Deauth builds a broadcast deauthentication frame from transmitter with the
// given signal (an int dBm, a string, or nil for none) and channel (0 omits
// the DS Parameter Set element).
func Deauth(transmitter string, signal any, channel int, at time.Time) Frame {
	f := Frame{
		Type:       TypeManagement,
		Subtype:    SubtypeDeauth,
		Addr1:      Broadcast,
		Addr2:      transmitter,
		Addr3:      transmitter,
		Signal:     signal,
		ReasonCode: 7,
		CapturedAt: at.UTC(),
	}
	if channel > 0 {
		f.Elements = []Element{{ID: ElementDSParamSet, Info: []byte{byte(channel)}}}
	}
	return f
}
