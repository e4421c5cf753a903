package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		line string
		want Request
	}{
		{"AA:BB:CC:DD:EE:FF\n", Request{Verb: VerbBlock, Arg: "AA:BB:CC:DD:EE:FF", Raw: "AA:BB:CC:DD:EE:FF"}},
		{"  aa:bb:cc:dd:ee:ff  ", Request{Verb: VerbBlock, Arg: "aa:bb:cc:dd:ee:ff", Raw: "aa:bb:cc:dd:ee:ff"}},
		{"UNBLOCK AA:BB:CC:DD:EE:FF", Request{Verb: VerbUnblock, Arg: "AA:BB:CC:DD:EE:FF", Raw: "UNBLOCK AA:BB:CC:DD:EE:FF"}},
		{"unblock aa:bb:cc:dd:ee:ff", Request{Verb: VerbUnblock, Arg: "aa:bb:cc:dd:ee:ff", Raw: "unblock aa:bb:cc:dd:ee:ff"}},
		{"UNBLOCK", Request{Verb: VerbUnblock, Arg: "UNBLOCK", Raw: "UNBLOCK"}},
		{"LIST", Request{Verb: VerbList, Raw: "LIST"}},
		{"list extra", Request{Verb: VerbList, Raw: "list extra"}},
		{"CHECK 11:22:33:44:55:66", Request{Verb: VerbCheck, Arg: "11:22:33:44:55:66", Raw: "CHECK 11:22:33:44:55:66"}},
		{"CHECK", Request{Verb: VerbCheck, Arg: "CHECK", Raw: "CHECK"}},
		// unknown verbs fall through to block with the whole line
		{"DROP 11:22:33:44:55:66", Request{Verb: VerbBlock, Arg: "DROP 11:22:33:44:55:66", Raw: "DROP 11:22:33:44:55:66"}},
		{"garbage", Request{Verb: VerbBlock, Arg: "garbage", Raw: "garbage"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRequest(tt.line))
		})
	}
}

func TestRequestLine_RoundTrip(t *testing.T) {
	for _, req := range []Request{
		{Verb: VerbBlock, Arg: "aa:bb:cc:dd:ee:ff"},
		{Verb: VerbUnblock, Arg: "aa:bb:cc:dd:ee:ff"},
		{Verb: VerbCheck, Arg: "aa:bb:cc:dd:ee:ff"},
		{Verb: VerbList},
	} {
		parsed := ParseRequest(req.Line())
		assert.Equal(t, req.Verb, parsed.Verb)
		assert.Equal(t, req.Arg, parsed.Arg)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "Blocked MAC: de:ad:be:ef:00:01", FormatBlocked("de:ad:be:ef:00:01"))
	assert.Equal(t, "MAC de:ad:be:ef:00:01 already blocked (total: 3)", FormatAlreadyBlocked("de:ad:be:ef:00:01", 3))
	assert.Equal(t, "Invalid MAC address format: ZZ:top", FormatInvalid("ZZ:top"))
	assert.Equal(t, "Removed aa:bb:cc:dd:ee:ff from blocklist", FormatRemoved("aa:bb:cc:dd:ee:ff"))
	assert.Equal(t, "MAC aa:bb:cc:dd:ee:ff not in blocklist", FormatNotInBlocklist("aa:bb:cc:dd:ee:ff"))
	assert.Equal(t, "Blocked MACs (2): aa:aa:aa:aa:aa:aa, bb:bb:bb:bb:bb:bb", FormatList([]string{"aa:aa:aa:aa:aa:aa", "bb:bb:bb:bb:bb:bb"}))
	assert.Equal(t, "Blocked MACs (0): ", FormatList(nil))
	assert.Equal(t, "MAC aa:bb:cc:dd:ee:ff: BLOCKED", FormatCheck("aa:bb:cc:dd:ee:ff", true))
	assert.Equal(t, "MAC aa:bb:cc:dd:ee:ff: NOT BLOCKED", FormatCheck("aa:bb:cc:dd:ee:ff", false))
}

func TestParseResponse(t *testing.T) {
	mac := "aa:bb:cc:dd:ee:ff"
	tests := []struct {
		line string
		want Response
	}{
		{FormatBlocked(mac) + "\n", Response{Kind: KindBlocked, MAC: mac}},
		{FormatAlreadyBlocked(mac, 7), Response{Kind: KindAlreadyBlocked, MAC: mac, Total: 7}},
		{FormatInvalid("DROP x y"), Response{Kind: KindInvalid, Input: "DROP x y"}},
		{FormatRemoved(mac), Response{Kind: KindRemoved, MAC: mac}},
		{FormatNotInBlocklist(mac), Response{Kind: KindNotInBlocklist, MAC: mac}},
		{FormatCheck(mac, true), Response{Kind: KindCheckBlocked, MAC: mac}},
		{FormatCheck(mac, false), Response{Kind: KindCheckNotBlocked, MAC: mac}},
		{FormatList([]string{mac, "bb:bb:bb:bb:bb:bb"}), Response{Kind: KindList, Total: 2, MACs: []string{mac, "bb:bb:bb:bb:bb:bb"}}},
		{FormatList(nil) + "\n", Response{Kind: KindList, MACs: []string{}}},
		{"Blocked MACs (0):", Response{Kind: KindList, MACs: []string{}}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseResponse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResponse_Unrecognized(t *testing.T) {
	for _, line := range []string{
		"",
		"hello",
		"MAC aa:bb:cc:dd:ee:ff: MAYBE",
		"MAC aa:bb:cc:dd:ee:ff already blocked (total: x)",
		"Blocked MACs (3): aa:aa:aa:aa:aa:aa",
		"Blocked MACs (n): ",
	} {
		_, err := ParseResponse(line)
		assert.ErrorIs(t, err, ErrUnrecognized, line)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "check_not_blocked", KindCheckNotBlocked.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
