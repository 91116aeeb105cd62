package deltadb

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"catalogd.dev/jx"
)

// DisplayMode selects a Query's output shape, per spec.md §4.7.
type DisplayMode int

const (
	DisplayStream DisplayMode = iota
	DisplayExprs
	DisplayObjects
	DisplayReduce
)

// Query is a configured pipeline over a data source: the live table
// (RunSnapshot), or a historical log stream (RunReplay, see stream.go).
// filter/where/output/reductions/display mirror spec.md §4.7 exactly.
type Query struct {
	Filter     *jx.Value
	Where      *jx.Value
	Output     []*jx.Value
	Reductions []Reduction
	Display    DisplayMode
	EpochMode  bool
	Opts       jx.EvalOptions

	w io.Writer

	// private table used by directory replay (stream.go); RunSnapshot
	// reads an existing *Table instead.
	table map[string]*jx.Value
	order []string

	spatial  []*reductionAcc
	global   []*reductionAcc
	temporal map[string][]*reductionAcc

	deferredTime int64
	haveDeferred bool
}

// NewQuery returns a Query that writes its output to w.
func NewQuery(w io.Writer) *Query {
	q := &Query{w: w, Opts: jx.DefaultEvalOptions(), table: make(map[string]*jx.Value)}
	return q
}

func (q *Query) initAccumulators() {
	q.spatial = make([]*reductionAcc, len(q.Reductions))
	q.global = make([]*reductionAcc, len(q.Reductions))
	for i := range q.Reductions {
		q.spatial[i] = newReductionAcc()
		q.global[i] = newReductionAcc()
	}
	q.temporal = make(map[string][]*reductionAcc)
}

func (q *Query) passes(expr *jx.Value, obj *jx.Value) bool {
	if expr == nil {
		return true
	}
	v := jx.Eval(expr, obj, q.Opts)
	if v.IsError() {
		return false
	}
	return v.Truthy()
}

func (q *Query) timeString(t time.Time) string {
	if q.EpochMode {
		return strconv.FormatInt(t.Unix(), 10)
	}
	return t.UTC().Format(time.RFC3339)
}

// RunSnapshot evaluates the query once against the contents of tb at
// "now" — the point-in-time code path of the deltadb-query command. The
// HTTP handlers in catalog/api read the table directly instead.
func (q *Query) RunSnapshot(tb *Table, now time.Time) error {
	q.initAccumulators()
	var matched []*jx.Value

	tb.Range(func(key string, rec *jx.Value) {
		if !q.passes(q.Filter, rec) || !q.passes(q.Where, rec) {
			return
		}
		switch q.Display {
		case DisplayExprs:
			q.emitExprs(now, rec)
		case DisplayObjects:
			matched = append(matched, rec)
		case DisplayReduce:
			q.foldReductions(key, rec)
		}
	})

	switch q.Display {
	case DisplayObjects:
		return q.emitObjects(now, matched)
	case DisplayReduce:
		return q.emitReductions(now)
	}
	return nil
}

func (q *Query) emitExprs(t time.Time, rec *jx.Value) error {
	line := q.timeString(t)
	for _, expr := range q.Output {
		v := jx.Eval(expr, rec, q.Opts)
		line += "\t" + jx.Print(v)
	}
	_, err := fmt.Fprintln(q.w, line)
	return err
}

func (q *Query) emitObjects(t time.Time, recs []*jx.Value) error {
	arr := &jx.Value{Kind: jx.KindArray}
	for _, r := range recs {
		arr.Array = append(arr.Array, jx.Item{Value: r})
	}
	_, err := fmt.Fprintf(q.w, "[ %s, %s ]\n", q.timeString(t), jx.Print(arr))
	return err
}

func (q *Query) foldReductions(key string, rec *jx.Value) {
	for i, r := range q.Reductions {
		v := jx.Eval(r.Expr, rec, q.Opts)
		if v.IsError() {
			continue
		}
		switch r.Scope {
		case ScopeSpatial:
			q.spatial[i].update(v)
		case ScopeGlobal:
			q.global[i].update(v)
		case ScopeTemporal:
			accs, ok := q.temporal[key]
			if !ok {
				accs = make([]*reductionAcc, len(q.Reductions))
				for j := range accs {
					accs[j] = newReductionAcc()
				}
				q.temporal[key] = accs
			}
			accs[i].update(v)
		}
	}
}

func (q *Query) emitReductions(t time.Time) error {
	line := q.timeString(t)
	for i, r := range q.Reductions {
		switch r.Scope {
		case ScopeSpatial:
			line += "\t" + jx.Print(q.spatial[i].value(r.Type))
		case ScopeGlobal:
			line += "\t" + jx.Print(q.global[i].value(r.Type))
		}
	}
	if _, err := fmt.Fprintln(q.w, line); err != nil {
		return err
	}
	if len(q.temporal) == 0 {
		return nil
	}
	keys := make([]string, 0, len(q.temporal))
	for k := range q.temporal {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	obj := &jx.Value{Kind: jx.KindObject}
	for _, k := range keys {
		accs := q.temporal[k]
		row := &jx.Value{Kind: jx.KindArray}
		for i, r := range q.Reductions {
			if r.Scope != ScopeTemporal {
				continue
			}
			row.Array = append(row.Array, jx.Item{Value: accs[i].value(r.Type)})
		}
		obj.Set(k, row)
	}
	_, err := fmt.Fprintf(q.w, "%s\t%s\n", q.timeString(t), jx.Print(obj))
	return err
}
