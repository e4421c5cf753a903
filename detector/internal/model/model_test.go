package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/airhawk/common/macaddr"
)

func TestParseSignal(t *testing.T) {
	tests := []struct {
		raw     string
		want    Signal
		wantErr bool
	}{
		{raw: "-35", want: Signal{Value: -35, Valid: true, Raw: "-35"}},
		{raw: " -75 ", want: Signal{Value: -75, Valid: true, Raw: "-75"}},
		{raw: "0", want: Signal{Value: 0, Valid: true, Raw: "0"}},
		{raw: "?", want: Signal{Raw: "?"}, wantErr: true},
		{raw: "", want: Signal{Raw: "?"}, wantErr: true},
		{raw: "-35dBm", want: Signal{Raw: "-35dBm"}, wantErr: true},
		{raw: "strong", want: Signal{Raw: "strong"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseSignal(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSignalUnparseable)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignalString(t *testing.T) {
	assert.Equal(t, "-49", SignalOf(-49).String())
	assert.Equal(t, "?", Signal{}.String())
	assert.Equal(t, "junk", Signal{Raw: "junk"}.String())
}

func TestChannelOf(t *testing.T) {
	assert.Equal(t, Channel{Number: 6, Known: true}, ChannelOf(6))
	assert.Equal(t, Channel{Number: 196, Known: true}, ChannelOf(196))
	assert.Equal(t, UnknownChannel, ChannelOf(0))
	assert.Equal(t, UnknownChannel, ChannelOf(197))

	assert.Equal(t, "11", ChannelOf(11).String())
	assert.Equal(t, "Unknown", UnknownChannel.String())
}

func TestNewLogEvent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	ev := DetectedEvent{
		TransmitterMAC: macaddr.MustParse("11:22:33:44:55:66"),
		Signal:         SignalOf(-75),
		Channel:        ChannelOf(6),
		Kind:           KindDeauth,
		ObservedAt:     now,
	}

	le := NewLogEvent(ev, now)

	id, err := uuid.Parse(le.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, "11:22:33:44:55:66", le.MAC)
	assert.Equal(t, "-75", le.Signal)
	assert.Equal(t, "6", le.Channel)
	assert.Equal(t, DeauthMessage, le.Message)
	assert.Equal(t, time.UTC, le.LoggedAt.Location())
	assert.True(t, le.LoggedAt.Equal(now))
}
