package messaging

import "strings"

// Subject constants for the AirHawk message bus.
// Follow the pattern: {domain}.{resource}.{detail}
const (
	// SubjectCaptureFrames carries parsed 802.11 frames from capture sensors.
	SubjectCaptureFrames = "capture.frames.dot11"

	// SubjectLedgerDeauth prefixes ledger records; the MAC hex is appended.
	SubjectLedgerDeauth = "ledger.deauth"

	// SubjectBlocklistChanged is published by the enforcer after each mutation.
	SubjectBlocklistChanged = "enforcer.blocklist.changed"
)

// StreamDeauthLedger is the JetStream stream holding ledger records.
const StreamDeauthLedger = "DEAUTH_LEDGER"

// LedgerSubject returns the subject for one MAC's ledger records.
// The MAC is lowercased and its colons removed: ledger.deauth.deadbeef0001
func LedgerSubject(mac string) string {
	return SubjectLedgerDeauth + "." + strings.ToLower(strings.ReplaceAll(mac, ":", ""))
}
