// Package protocol defines the line-oriented text protocol spoken by the
// enforcer: one newline-terminated request line, one newline-terminated
// response line.
//
//	<MAC>           block MAC (any unrecognized first token lands here)
//	UNBLOCK <MAC>   remove MAC from the blocklist
//	LIST            enumerate blocked MACs
//	CHECK <MAC>     membership test
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Verb identifies a request kind.
type Verb string

const (
	VerbBlock   Verb = "BLOCK"
	VerbUnblock Verb = "UNBLOCK"
	VerbList    Verb = "LIST"
	VerbCheck   Verb = "CHECK"
)

// Request is a parsed request line.
type Request struct {
	Verb Verb
	// Arg is the MAC argument exactly as sent (not yet validated).
	Arg string
	// Raw is the trimmed request line.
	Raw string
}

// ParseRequest splits a request line. The first whitespace-separated token is
// matched case-insensitively against UNBLOCK, LIST and CHECK; anything else is
// a block request whose argument is the whole trimmed line. UNBLOCK or CHECK
// without an argument take the whole line as argument, which then fails MAC
// validation.
func ParseRequest(line string) Request {
	raw := strings.TrimSpace(line)
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return Request{Verb: VerbBlock, Raw: raw}
	}

	arg := raw
	if len(parts) > 1 {
		arg = parts[1]
	}

	switch Verb(strings.ToUpper(parts[0])) {
	case VerbUnblock:
		return Request{Verb: VerbUnblock, Arg: arg, Raw: raw}
	case VerbList:
		return Request{Verb: VerbList, Raw: raw}
	case VerbCheck:
		return Request{Verb: VerbCheck, Arg: arg, Raw: raw}
	default:
		return Request{Verb: VerbBlock, Arg: raw, Raw: raw}
	}
}

// Line encodes r as a request line without the trailing newline.
func (r Request) Line() string {
	switch r.Verb {
	case VerbBlock:
		return r.Arg
	case VerbList:
		return string(VerbList)
	default:
		return string(r.Verb) + " " + r.Arg
	}
}

// Response texts.

func FormatBlocked(mac string) string {
	return "Blocked MAC: " + mac
}

func FormatAlreadyBlocked(mac string, total int) string {
	return fmt.Sprintf("MAC %s already blocked (total: %d)", mac, total)
}

// FormatInvalid echoes the offending input verbatim.
func FormatInvalid(input string) string {
	return "Invalid MAC address format: " + input
}

func FormatRemoved(mac string) string {
	return "Removed " + mac + " from blocklist"
}

func FormatNotInBlocklist(mac string) string {
	return "MAC " + mac + " not in blocklist"
}

// FormatList renders the blocklist; macs should already be sorted.
func FormatList(macs []string) string {
	return fmt.Sprintf("Blocked MACs (%d): %s", len(macs), strings.Join(macs, ", "))
}

func FormatCheck(mac string, blocked bool) string {
	if blocked {
		return "MAC " + mac + ": BLOCKED"
	}
	return "MAC " + mac + ": NOT BLOCKED"
}

// Kind classifies a response line.
type Kind int

const (
	KindUnknown Kind = iota
	KindBlocked
	KindAlreadyBlocked
	KindInvalid
	KindRemoved
	KindNotInBlocklist
	KindList
	KindCheckBlocked
	KindCheckNotBlocked
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindBlocked:         "blocked",
	KindAlreadyBlocked:  "already_blocked",
	KindInvalid:         "invalid_mac",
	KindRemoved:         "removed",
	KindNotInBlocklist:  "not_in_blocklist",
	KindList:            "list",
	KindCheckBlocked:    "check_blocked",
	KindCheckNotBlocked: "check_not_blocked",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Response is a parsed response line.
type Response struct {
	Kind  Kind
	MAC   string   // Blocked, AlreadyBlocked, Removed, NotInBlocklist, Check*
	Total int      // AlreadyBlocked, List
	MACs  []string // List
	Input string   // Invalid
}

// ErrUnrecognized is returned by ParseResponse for lines that match no known
// response shape.
var ErrUnrecognized = errors.New("unrecognized response")

// ParseResponse classifies a response line (trailing newline optional).
func ParseResponse(line string) (Response, error) {
	line = strings.TrimRight(line, "\r\n")

	switch {
	case strings.HasPrefix(line, "Blocked MAC: "):
		return Response{Kind: KindBlocked, MAC: strings.TrimPrefix(line, "Blocked MAC: ")}, nil

	case strings.HasPrefix(line, "Invalid MAC address format: "):
		return Response{Kind: KindInvalid, Input: strings.TrimPrefix(line, "Invalid MAC address format: ")}, nil

	case strings.HasPrefix(line, "Removed ") && strings.HasSuffix(line, " from blocklist"):
		mac := strings.TrimSuffix(strings.TrimPrefix(line, "Removed "), " from blocklist")
		return Response{Kind: KindRemoved, MAC: mac}, nil

	case strings.HasPrefix(line, "Blocked MACs ("):
		return parseList(line)

	case strings.HasPrefix(line, "MAC "):
		return parseMACLine(line)
	}

	return Response{}, fmt.Errorf("%w: %q", ErrUnrecognized, line)
}

func parseList(line string) (Response, error) {
	rest := strings.TrimPrefix(line, "Blocked MACs (")
	countText, list, ok := strings.Cut(rest, "): ")
	if !ok {
		// "Blocked MACs (0): " may arrive with its trailing space trimmed
		countText, ok = strings.CutSuffix(rest, "):")
		if !ok {
			return Response{}, fmt.Errorf("%w: %q", ErrUnrecognized, line)
		}
	}
	total, err := strconv.Atoi(countText)
	if err != nil {
		return Response{}, fmt.Errorf("%w: bad count in %q", ErrUnrecognized, line)
	}

	macs := []string{}
	if list = strings.TrimSpace(list); list != "" {
		macs = strings.Split(list, ", ")
	}
	if len(macs) != total {
		return Response{}, fmt.Errorf("%w: count %d does not match %d entries", ErrUnrecognized, total, len(macs))
	}
	return Response{Kind: KindList, Total: total, MACs: macs}, nil
}

func parseMACLine(line string) (Response, error) {
	rest := strings.TrimPrefix(line, "MAC ")

	// NOT BLOCKED must be tested first: it also ends in "BLOCKED".
	if mac, ok := strings.CutSuffix(rest, ": NOT BLOCKED"); ok {
		return Response{Kind: KindCheckNotBlocked, MAC: mac}, nil
	}
	if mac, ok := strings.CutSuffix(rest, ": BLOCKED"); ok {
		return Response{Kind: KindCheckBlocked, MAC: mac}, nil
	}
	if mac, ok := strings.CutSuffix(rest, " not in blocklist"); ok {
		return Response{Kind: KindNotInBlocklist, MAC: mac}, nil
	}
	if mac, totalText, ok := strings.Cut(rest, " already blocked (total: "); ok {
		total, err := strconv.Atoi(strings.TrimSuffix(totalText, ")"))
		if err != nil || !strings.HasSuffix(totalText, ")") {
			return Response{}, fmt.Errorf("%w: bad total in %q", ErrUnrecognized, line)
		}
		return Response{Kind: KindAlreadyBlocked, MAC: mac, Total: total}, nil
	}
	return Response{}, fmt.Errorf("%w: %q", ErrUnrecognized, line)
}
