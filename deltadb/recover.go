package deltadb

import (
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"catalogd.dev/jx"
)

// EventHandler receives decoded log events during replay. A single
// interface serves both live recovery (Table mutates its own map
// directly) and historical directory replay (Query maintains its own
// private table plus output logic) — the two parallel handler shapes
// in the original are unified here.
type EventHandler interface {
	HandleCreate(key string, obj *jx.Value)
	HandleMerge(key string, fields *jx.Value)
	HandleUpdate(key, name string, val *jx.Value)
	HandleRemove(key, name string)
	HandleDelete(key string)
	HandleTime(t time.Time)
}

// recover_ rebuilds tb's in-memory table to its state at time at, from
// the checkpoint plus log of at's UTC day. Named with a trailing
// underscore to avoid shadowing the builtin recover.
func recover_(tb *Table, at time.Time) error {
	year, yday := yearDay(at)
	ckpt, err := loadCheckpoint(tb.logDir, year, yday, tb.ckptCache)
	if err != nil {
		return err
	}
	for k, v := range ckpt {
		tb.records[k] = v
		tb.order = append(tb.order, k)
	}
	path := logPath(tb.logDir, year, yday)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	_, err = replayLog(path, at.Unix(), tableHandler{tb})
	return err
}

// tableHandler adapts Table's map mutations to the EventHandler
// interface for use during recovery, where events apply unconditionally
// (no filter, no output).
type tableHandler struct{ tb *Table }

func (h tableHandler) HandleCreate(key string, obj *jx.Value) {
	h.tb.records[key] = obj
	h.tb.order = append(h.tb.order, key)
}

func (h tableHandler) HandleMerge(key string, fields *jx.Value) {
	old, ok := h.tb.records[key]
	if !ok {
		h.tb.records[key] = fields
		h.tb.order = append(h.tb.order, key)
		return
	}
	h.tb.records[key] = jx.Merge(old, fields)
}

func (h tableHandler) HandleUpdate(key, name string, val *jx.Value) {
	rec, ok := h.tb.records[key]
	if !ok {
		rec = &jx.Value{Kind: jx.KindObject}
		h.tb.records[key] = rec
		h.tb.order = append(h.tb.order, key)
	}
	rec.Set(name, val)
}

func (h tableHandler) HandleRemove(key, name string) {
	if rec, ok := h.tb.records[key]; ok {
		rec.Delete(name)
	}
}

func (h tableHandler) HandleDelete(key string) {
	delete(h.tb.records, key)
	for i, k := range h.tb.order {
		if k == key {
			h.tb.order = append(h.tb.order[:i], h.tb.order[i+1:]...)
			break
		}
	}
}

func (h tableHandler) HandleTime(t time.Time) {}

// replayLog reads path line by line, dispatching each decoded event to
// handler, stopping at the first time marker strictly after until
// (Unix seconds). Corrupt lines are logged and skipped, never fatal.
// Returns true if replay stopped early due to the until bound.
func replayLog(path string, until int64, handler EventHandler) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var current int64
	var pending []string
	next := func() (string, bool) {
		if len(pending) > 0 {
			l := pending[0]
			pending = pending[1:]
			return l, true
		}
		if sc.Scan() {
			return sc.Text(), true
		}
		return "", false
	}

	for {
		line, ok := next()
		if !ok {
			break
		}
		if line == "" {
			continue
		}
		if stop := applyLine(line, &current, until, handler, &pending); stop {
			return true, sc.Err()
		}
	}
	return false, sc.Err()
}

// applyLine decodes and dispatches one line, pushing any
// bogus-suffix-recovered remainder back onto pending for the next
// iteration. Returns true if replay should stop (time marker > until).
func applyLine(line string, current *int64, until int64, handler EventHandler, pending *[]string) bool {
	ev, err := parseEvent(line)
	if err != nil {
		logrus.WithField("line", line).WithError(err).Debug("deltadb: corrupt log line, skipping")
		return false
	}

	// Historical bug workaround: an "R key name" line whose name ends
	// in a valid event-type letter with no space actually means the
	// original writer omitted a newline before the next event. Split
	// the bogus suffix off, apply the corrected R, then reconsider the
	// remainder as a new event.
	if ev.Kind == evRemove {
		if corrected, rest, ok := splitBogusR(ev.Name); ok {
			handler.HandleRemove(ev.Key, corrected)
			*pending = append([]string{rest}, *pending...)
			return false
		}
	}

	switch ev.Kind {
	case evTime:
		if ev.Seconds > until {
			return true
		}
		*current = ev.Seconds
		handler.HandleTime(time.Unix(ev.Seconds, 0).UTC())
	case evDelta:
		*current += ev.Seconds
		if *current > until {
			return true
		}
		handler.HandleTime(time.Unix(*current, 0).UTC())
	case evCreate:
		obj, err := parseJXPayload(ev.Payload)
		if err != nil {
			logrus.WithField("key", ev.Key).WithError(err).Debug("deltadb: corrupt create payload")
			return false
		}
		handler.HandleCreate(ev.Key, obj)
	case evMerge:
		obj, err := parseJXPayload(ev.Payload)
		if err != nil {
			logrus.WithField("key", ev.Key).WithError(err).Debug("deltadb: corrupt merge payload")
			return false
		}
		handler.HandleMerge(ev.Key, obj)
	case evUpdate:
		val, err := parseJXPayload(ev.Payload)
		if err != nil {
			logrus.WithField("key", ev.Key).WithError(err).Debug("deltadb: corrupt update payload")
			return false
		}
		handler.HandleUpdate(ev.Key, ev.Name, val)
	case evRemove:
		handler.HandleRemove(ev.Key, ev.Name)
	case evDelete:
		handler.HandleDelete(ev.Key)
	}
	return false
}

// splitBogusR detects the "R key name<LETTER> rest-of-next-event"
// corruption (spec'd workaround for a missing-newline bug): name
// containing an embedded space whose first word ends in a valid event
// letter. Returns the corrected name and the reconstructed next line.
func splitBogusR(name string) (corrected, nextLine string, ok bool) {
	idx := strings.IndexByte(name, ' ')
	if idx < 0 {
		return name, "", false
	}
	word0 := name[:idx]
	if word0 == "" {
		return name, "", false
	}
	last := word0[len(word0)-1]
	if !isEventLetter(last) {
		return name, "", false
	}
	return word0[:len(word0)-1], string(last) + name[idx:], true
}
