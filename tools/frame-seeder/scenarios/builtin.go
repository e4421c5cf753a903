package scenarios

import (
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

func init() {
	Register(&fixed{
		name:        "weak",
		description: "Distant attacker 11:22:33:44:55:66 at -75 dBm on channel 6 (logged only)",
		mac:         "11:22:33:44:55:66",
		signal:      -75,
		channel:     6,
	})
	Register(&fixed{
		name:        "strong",
		description: "Nearby attacker DE:AD:BE:EF:00:01 at -35 dBm on channel 11 (blocked)",
		mac:         "DE:AD:BE:EF:00:01",
		signal:      -35,
		channel:     11,
	})
	Register(both{})
	Register(random{})
}

// fixed repeats one attacker's frame Count times.
type fixed struct {
	name        string
	description string
	mac         string
	signal      int
	channel     int
}

func (s *fixed) Name() string        { return s.name }
func (s *fixed) Description() string { return s.description }

func (s *fixed) Generate(cfg Config) []Frame {
	n := max(cfg.Count, 1)
	frames := make([]Frame, 0, n)
	for i := range n {
		frames = append(frames, Deauth(s.mac, s.signal, s.channel, cfg.Now.Add(time.Duration(i)*time.Millisecond)))
	}
	return frames
}

// both replays the weak then the strong attacker.
type both struct{}

func (both) Name() string        { return "both" }
func (both) Description() string { return "Weak attacker followed by strong attacker" }

func (both) Generate(cfg Config) []Frame {
	weak, _ := Get("weak")
	strong, _ := Get("strong")
	frames := weak.Generate(cfg)
	cfg.Now = cfg.Now.Add(time.Second)
	return append(frames, strong.Generate(cfg)...)
}

// random mixes deauths from fake transmitters with beacon and data noise.
type random struct{}

func (random) Name() string { return "random" }
func (random) Description() string {
	return "Deauths from random MACs with random signal and channel, plus noise frames"
}

func (random) Generate(cfg Config) []Frame {
	frames := make([]Frame, 0, cfg.Count)
	for i := range cfg.Count {
		at := cfg.Now.Add(time.Duration(i) * 10 * time.Millisecond)
		if cfg.NoiseRatio > 0 && gofakeit.Float64Range(0, 1) < cfg.NoiseRatio {
			frames = append(frames, noise(at))
			continue
		}
		frames = append(frames, Deauth(gofakeit.MacAddress(), randomSignal(), gofakeit.Number(1, 165), at))
	}
	return frames
}

// randomSignal is usually an int, sometimes a string, occasionally "?".
func randomSignal() any {
	dbm := gofakeit.Number(-95, -20)
	switch r := gofakeit.Number(0, 19); {
	case r == 0:
		return "?"
	case r < 5:
		return strconv.Itoa(dbm)
	default:
		return dbm
	}
}

func noise(at time.Time) Frame {
	mac := gofakeit.MacAddress()
	if gofakeit.Bool() {
		elems := []Element{
			{ID: ElementSSID, Info: []byte(gofakeit.Word())},
			{ID: ElementDSParamSet, Info: []byte{byte(gofakeit.Number(1, 13))}},
		}
		return Frame{
			Type:       TypeManagement,
			Subtype:    SubtypeBeacon,
			Addr1:      Broadcast,
			Addr2:      mac,
			Addr3:      mac,
			Signal:     gofakeit.Number(-90, -30),
			Elements:   elems,
			CapturedAt: at.UTC(),
		}
	}
	return Frame{
		Type:       TypeData,
		Subtype:    0,
		Addr1:      gofakeit.MacAddress(),
		Addr2:      mac,
		Signal:     gofakeit.Number(-90, -30),
		CapturedAt: at.UTC(),
	}
}
