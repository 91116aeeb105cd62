// Package deltadb implements the temporal key-value store behind the
// catalog: an in-memory table of JX records backed by a per-day
// append-only log plus checkpoint files, with merge-delta logging and
// point-in-time recovery.
package deltadb

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"catalogd.dev/deltadb/ckptcache"
	"catalogd.dev/jx"
)

// churnFields are excluded from delta computation because they change
// on every heartbeat and would otherwise force an M event per update.
var churnFields = map[string]bool{"lastheardfrom": true, "uptime": true}

// Table is the in-memory key -> JX object store plus its log/checkpoint
// state. A single goroutine is expected to own the mutators (Insert,
// Remove, Flush); Lookup/Keys/Len take a read lock so HTTP handlers can
// read concurrently without racing the writer goroutine.
type Table struct {
	mu sync.RWMutex

	records map[string]*jx.Value
	order   []string // insertion order, for stable iteration

	logDir   string
	snapshot bool // read-only; rejects mutators

	logFile     *os.File
	logYear     int
	logYDay     int
	lastLogTime int64

	log *logrus.Entry

	now func() time.Time // overridable for tests

	ckptCache *ckptcache.Cache // optional, set via WithCheckpointCache
}

// Option configures optional Table behavior at Open/OpenSnapshot time.
type Option func(*Table)

// WithCheckpointCache routes checkpoint reads/writes through cache,
// so repeated historical queries over the same day skip re-parsing its
// .ckpt file, and a fresh checkpoint invalidates the cached entry.
func WithCheckpointCache(cache *ckptcache.Cache) Option {
	return func(t *Table) { t.ckptCache = cache }
}

// Open creates logDir if missing and recovers the table to the current
// time.
func Open(logDir string, log *logrus.Entry, opts ...Option) (*Table, error) {
	return open(logDir, log, time.Now(), false, opts)
}

// OpenSnapshot builds a read-only table reconstructed at t. Mutators
// return an error.
func OpenSnapshot(logDir string, log *logrus.Entry, t time.Time, opts ...Option) (*Table, error) {
	return open(logDir, log, t, true, opts)
}

func open(logDir string, log *logrus.Entry, at time.Time, snapshot bool, opts []Option) (*Table, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("deltadb: create log dir: %w", err)
	}
	tb := &Table{
		records:  make(map[string]*jx.Value),
		logDir:   logDir,
		log:      log,
		now:      time.Now,
		snapshot: snapshot,
	}
	for _, opt := range opts {
		opt(tb)
	}
	if err := recover_(tb, at); err != nil {
		return nil, err
	}
	if !snapshot {
		year, yday := yearDay(at)
		tb.logYear, tb.logYDay = year, yday
		f, err := openLogAppend(logDir, year, yday)
		if err != nil {
			return nil, fmt.Errorf("deltadb: open log: %w", err)
		}
		tb.logFile = f
	}
	return tb, nil
}

func yearDay(t time.Time) (year, yday int) {
	u := t.UTC()
	return u.Year(), u.YearDay() - 1
}

func dayDir(root string, year int) string {
	return filepath.Join(root, fmt.Sprintf("%04d", year))
}

func logPath(root string, year, yday int) string {
	return filepath.Join(dayDir(root, year), fmt.Sprintf("%d.log", yday))
}

func ckptPath(root string, year, yday int) string {
	return filepath.Join(dayDir(root, year), fmt.Sprintf("%d.ckpt", yday))
}

func openLogAppend(root string, year, yday int) (*os.File, error) {
	if err := os.MkdirAll(dayDir(root, year), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(logPath(root, year, yday), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// Close flushes and releases the open log file. Safe to call on a
// snapshot table (no-op).
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.logFile == nil {
		return nil
	}
	err := t.logFile.Close()
	t.logFile = nil
	return err
}

// Lookup returns a non-owning reference to the record at key.
func (t *Table) Lookup(key string) (*jx.Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.records[key]
	return v, ok
}

// Len reports the number of live records.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Keys returns the table's keys in insertion order.
func (t *Table) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Range calls fn once per (key, record) pair in insertion order. fn
// must not mutate the table.
func (t *Table) Range(fn func(key string, v *jx.Value)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, k := range t.order {
		fn(k, t.records[k])
	}
}

// Snapshot returns a shallow copy of the live key set in insertion
// order (the same result as Keys). The records themselves are not
// copied; Lookup returns the live values.
func (t *Table) Snapshot() []string { return t.Keys() }

func (t *Table) sortedKeys() []string {
	ks := t.Keys()
	sort.Strings(ks)
	return ks
}

// Insert installs obj under key, consuming it. If key already exists
// the prior value is diffed (excluding churn fields) and a minimal
// M/R event pair is logged instead of a full C record.
func (t *Table) Insert(key string, obj *jx.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snapshot {
		return fmt.Errorf("deltadb: insert on a read-only snapshot")
	}
	if err := t.rotateLocked(t.now()); err != nil {
		return err
	}
	old, existed := t.records[key]
	if !existed {
		if err := t.emitLocked(eventLine(evCreate, key, "", jx.Print(obj))); err != nil {
			return err
		}
		t.records[key] = obj
		t.order = append(t.order, key)
		return nil
	}
	merge, removed := diff(old, obj, churnFields)
	var lines []string
	if len(merge.Obj) > 0 {
		lines = append(lines, eventLine(evMerge, key, "", jx.Print(merge)))
	}
	for _, name := range removed {
		lines = append(lines, eventLine(evRemove, key, name, ""))
	}
	if len(lines) > 0 {
		if err := t.emitLocked(lines...); err != nil {
			return err
		}
	}
	t.records[key] = obj
	return nil
}

// diff computes the fields of neu that are new or changed relative to
// old (as a merge object) and the fields of old absent from neu (as a
// removed-field list), both excluding names in exclude.
func diff(old, neu *jx.Value, exclude map[string]bool) (merge *jx.Value, removed []string) {
	merge = &jx.Value{Kind: jx.KindObject}
	for _, key := range neu.Keys() {
		if exclude[key] {
			continue
		}
		nv, _ := neu.Get(key)
		if ov, ok := old.Get(key); ok && ov.Equal(nv) {
			continue
		}
		merge.Set(key, nv.Copy())
	}
	for _, key := range old.Keys() {
		if exclude[key] {
			continue
		}
		if _, ok := neu.Get(key); !ok {
			removed = append(removed, key)
		}
	}
	return merge, removed
}

// Remove deletes key, logging a D event, and returns the removed value.
func (t *Table) Remove(key string) (*jx.Value, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snapshot {
		return nil, fmt.Errorf("deltadb: remove on a read-only snapshot")
	}
	old, ok := t.records[key]
	if !ok {
		return nil, nil
	}
	if err := t.rotateLocked(t.now()); err != nil {
		return nil, err
	}
	if err := t.emitLocked(eventLine(evDelete, key, "", "")); err != nil {
		return nil, err
	}
	delete(t.records, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return old, nil
}

// Flush fsyncs the current log file.
func (t *Table) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.logFile == nil {
		return nil
	}
	if err := t.logFile.Sync(); err != nil {
		t.log.WithError(err).Warn("deltadb: fflush failed")
		return err
	}
	return nil
}

// rotateLocked switches to a new day's log file when now's UTC day
// differs from the file currently open, writing out a checkpoint for
// the day that just ended first. Caller must hold t.mu.
func (t *Table) rotateLocked(now time.Time) error {
	year, yday := yearDay(now)
	if t.logFile != nil && year == t.logYear && yday == t.logYDay {
		return nil
	}
	if t.logFile != nil {
		if err := writeCheckpoint(t.logDir, t.logYear, t.logYDay, t.records); err != nil {
			t.log.WithError(err).Warn("deltadb: checkpoint write failed")
		}
		if t.ckptCache != nil {
			if err := t.ckptCache.Invalidate(t.logYear, t.logYDay); err != nil {
				t.log.WithError(err).Warn("deltadb: checkpoint cache invalidate failed")
			}
		}
		t.logFile.Close()
	}
	f, err := openLogAppend(t.logDir, year, yday)
	if err != nil {
		return fmt.Errorf("deltadb: open log: %w", err)
	}
	t.logFile = f
	t.logYear, t.logYDay = year, yday
	t.lastLogTime = 0
	return nil
}

// emitLocked writes a time marker (if due) followed by lines. Caller
// must hold t.mu and must not be a snapshot table.
func (t *Table) emitLocked(lines ...string) error {
	now := t.now().Unix()
	var timeLine string
	if t.lastLogTime == 0 {
		timeLine = fmt.Sprintf("T %d\n", now)
		t.lastLogTime = now
	} else if now > t.lastLogTime {
		timeLine = fmt.Sprintf("t %d\n", now-t.lastLogTime)
		t.lastLogTime = now
	}
	if timeLine != "" {
		if _, err := t.logFile.WriteString(timeLine); err != nil {
			return err
		}
	}
	for _, l := range lines {
		if _, err := t.logFile.WriteString(l); err != nil {
			return err
		}
	}
	return nil
}
