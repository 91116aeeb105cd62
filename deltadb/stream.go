package deltadb

import (
	"fmt"
	"os"
	"time"

	"catalogd.dev/jx"
)

// RunReplay drives q over the checkpoint-plus-logs on disk at logDir,
// from t0 through t1 inclusive: it installs t0's day checkpoint
// (subject to Filter), then feeds each subsequent day's log through
// Query as an EventHandler, stopping at the first time marker past t1
// or after five consecutive missing day logs, per spec.md §4.7/§7.
func (q *Query) RunReplay(logDir string, t0, t1 time.Time) error {
	q.initAccumulators()

	y0, d0 := yearDay(t0)
	ckpt, err := readCheckpoint(logDir, y0, d0)
	if err != nil {
		return err
	}
	for k, v := range ckpt {
		if !q.passes(q.Filter, v) {
			continue
		}
		q.table[k] = v
		q.order = append(q.order, k)
	}

	cur := time.Date(t0.UTC().Year(), time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d0)
	missing := 0
	for !cur.After(t1) {
		year, yday := yearDay(cur)
		path := logPath(logDir, year, yday)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			missing++
			if missing >= 5 {
				break
			}
			cur = cur.AddDate(0, 0, 1)
			continue
		}
		missing = 0
		stopped, err := replayLog(path, t1.Unix(), q)
		if err != nil {
			return err
		}
		if stopped {
			break
		}
		cur = cur.AddDate(0, 0, 1)
	}
	return nil
}

// The remaining methods make *Query satisfy EventHandler, so RunReplay
// can feed it directly to replayLog: Filter is applied at ingest (a
// record that never matches never enters q.table; mutation events
// against a key that isn't present are dropped on the floor), Where is
// applied at each emission tick in tick().

func (q *Query) removeOrder(key string) {
	for i, k := range q.order {
		if k == key {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

func (q *Query) emitDeferredTime() {
	if !q.haveDeferred {
		return
	}
	fmt.Fprintf(q.w, "T %d\n", q.deferredTime)
	q.haveDeferred = false
}

func (q *Query) echo(line string) {
	if line == "" {
		return
	}
	q.emitDeferredTime()
	fmt.Fprint(q.w, line)
}

func (q *Query) HandleCreate(key string, obj *jx.Value) {
	if !q.passes(q.Filter, obj) {
		return
	}
	if _, ok := q.table[key]; !ok {
		q.order = append(q.order, key)
	}
	q.table[key] = obj
	if q.Display == DisplayStream {
		q.echo(eventLine(evCreate, key, "", jx.Print(obj)))
	}
}

func (q *Query) HandleMerge(key string, fields *jx.Value) {
	old, ok := q.table[key]
	if !ok {
		return
	}
	merged := jx.Merge(old, fields)
	if !q.passes(q.Filter, merged) {
		delete(q.table, key)
		q.removeOrder(key)
		if q.Display == DisplayStream {
			q.echo(eventLine(evDelete, key, "", ""))
		}
		return
	}
	q.table[key] = merged
	if q.Display == DisplayStream {
		q.echo(eventLine(evMerge, key, "", jx.Print(fields)))
	}
}

func (q *Query) HandleUpdate(key, name string, val *jx.Value) {
	rec, ok := q.table[key]
	if !ok {
		return
	}
	rec.Set(name, val)
	if q.Display == DisplayStream {
		q.echo(eventLine(evUpdate, key, name, jx.Print(val)))
	}
}

func (q *Query) HandleRemove(key, name string) {
	rec, ok := q.table[key]
	if !ok {
		return
	}
	rec.Delete(name)
	if q.Display == DisplayStream {
		q.echo(eventLine(evRemove, key, name, ""))
	}
}

func (q *Query) HandleDelete(key string) {
	if _, ok := q.table[key]; !ok {
		return
	}
	delete(q.table, key)
	q.removeOrder(key)
	if q.Display == DisplayStream {
		q.echo(eventLine(evDelete, key, "", ""))
	}
}

func (q *Query) HandleTime(t time.Time) {
	q.deferredTime = t.Unix()
	q.haveDeferred = true
	if q.Display != DisplayStream {
		q.tick(t)
	}
}

// tick evaluates the query's where/output/reductions against the
// current replay table state at time t. SPATIAL accumulators are
// rebuilt from scratch every tick; GLOBAL and TEMPORAL persist across
// ticks and are only cleared once their value has been emitted.
func (q *Query) tick(t time.Time) error {
	q.spatial = make([]*reductionAcc, len(q.Reductions))
	for i := range q.Reductions {
		q.spatial[i] = newReductionAcc()
	}

	var matched []*jx.Value
	for _, key := range q.order {
		rec := q.table[key]
		if !q.passes(q.Where, rec) {
			continue
		}
		switch q.Display {
		case DisplayExprs:
			if err := q.emitExprs(t, rec); err != nil {
				return err
			}
		case DisplayObjects:
			matched = append(matched, rec)
		case DisplayReduce:
			q.foldReductions(key, rec)
		}
	}

	switch q.Display {
	case DisplayObjects:
		return q.emitObjects(t, matched)
	case DisplayReduce:
		if err := q.emitReductions(t); err != nil {
			return err
		}
		q.global = make([]*reductionAcc, len(q.Reductions))
		for i := range q.Reductions {
			q.global[i] = newReductionAcc()
		}
		q.temporal = make(map[string][]*reductionAcc)
	}
	return nil
}
