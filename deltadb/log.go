package deltadb

import (
	"fmt"
	"strconv"
	"strings"

	"catalogd.dev/jx"
)

// eventKind is one of the seven letters of the log grammar.
type eventKind byte

const (
	evCreate eventKind = 'C'
	evMerge  eventKind = 'M'
	evUpdate eventKind = 'U'
	evRemove eventKind = 'R'
	evDelete eventKind = 'D'
	evTime   eventKind = 'T'
	evDelta  eventKind = 't'
)

func isEventLetter(b byte) bool {
	switch eventKind(b) {
	case evCreate, evMerge, evUpdate, evRemove, evDelete, evTime, evDelta:
		return true
	}
	return false
}

// event is one decoded log line.
type event struct {
	Kind    eventKind
	Key     string
	Name    string // U/R field name
	Payload string // raw JX text for C/M/U; unparsed
	Seconds int64  // T (absolute) or t (delta)
}

// eventLine formats one data event (C, M, U, R, D) as a log line.
func eventLine(kind eventKind, key, name, payload string) string {
	switch kind {
	case evCreate, evMerge:
		return fmt.Sprintf("%c %s %s\n", kind, key, payload)
	case evUpdate:
		return fmt.Sprintf("%c %s %s %s\n", kind, key, name, payload)
	case evRemove:
		return fmt.Sprintf("%c %s %s\n", kind, key, name)
	case evDelete:
		return fmt.Sprintf("%c %s\n", kind, key)
	default:
		return ""
	}
}

// parseEvent decodes one log line (without its trailing newline). It
// never fails hard: malformed lines come back as an error so the
// caller can log-and-skip, per spec.md's "corrupt lines are logged and
// skipped, never fatal."
func parseEvent(line string) (event, error) {
	if line == "" {
		return event{}, fmt.Errorf("empty line")
	}
	kind := eventKind(line[0])
	rest := strings.TrimPrefix(line[1:], " ")
	switch kind {
	case evTime, evDelta:
		n, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
		if err != nil {
			return event{}, fmt.Errorf("bad time marker: %w", err)
		}
		return event{Kind: kind, Seconds: n}, nil
	case evCreate, evMerge:
		key, payload, ok := cutSpace(rest)
		if !ok {
			return event{}, fmt.Errorf("missing payload")
		}
		return event{Kind: kind, Key: key, Payload: payload}, nil
	case evUpdate:
		key, rem, ok := cutSpace(rest)
		if !ok {
			return event{}, fmt.Errorf("missing field name")
		}
		name, payload, ok := cutSpace(rem)
		if !ok {
			return event{}, fmt.Errorf("missing payload")
		}
		return event{Kind: kind, Key: key, Name: name, Payload: payload}, nil
	case evRemove:
		key, name, ok := cutSpace(rest)
		if !ok {
			return event{}, fmt.Errorf("missing field name")
		}
		return event{Kind: kind, Key: key, Name: name}, nil
	case evDelete:
		key := strings.TrimSpace(rest)
		if key == "" {
			return event{}, fmt.Errorf("missing key")
		}
		return event{Kind: kind, Key: key}, nil
	default:
		return event{}, fmt.Errorf("unknown event letter %q", line[0])
	}
}

// cutSpace splits s at its first space, like strings.Cut(s, " ") but
// named for readability at call sites above.
func cutSpace(s string) (before, after string, found bool) {
	return strings.Cut(s, " ")
}

// parseJXPayload parses a log event's payload in static mode, so the
// record contents are never mistaken for operators/symbols.
func parseJXPayload(payload string) (*jx.Value, error) {
	v, errs := jx.ParseStatic([]byte(payload), jx.ModePermissive)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%s", errs[0].Message)
	}
	return v, nil
}
