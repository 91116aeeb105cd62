package deltadb

import (
	"crypto/sha1"
	"encoding/hex"

	"catalogd.dev/jx"
)

// ReductionType is one of the aggregator kinds a Reduction applies.
type ReductionType int

const (
	ReduceCount ReductionType = iota
	ReduceSum
	ReduceFirst
	ReduceLast
	ReduceMin
	ReduceMax
	ReduceAvg
	ReduceInc
	ReduceUnique
)

// Scope controls when and how a Reduction's accumulator resets.
type Scope int

const (
	// ScopeSpatial resets at the start of every emission tick and
	// folds every record currently in the table.
	ScopeSpatial Scope = iota
	// ScopeTemporal is maintained per record key across ticks and
	// reset at emission; its output is an object keyed by record key.
	ScopeTemporal
	// ScopeGlobal accumulates across ticks, reset at emission.
	ScopeGlobal
)

// Reduction is one configured aggregator: an expression evaluated per
// input object, a type, and a scope.
type Reduction struct {
	Name  string
	Type  ReductionType
	Expr  *jx.Value
	Scope Scope
}

// reductionAcc accumulates one Reduction's running state.
type reductionAcc struct {
	count      int64
	sum        float64
	first      *jx.Value
	last       *jx.Value
	hasMin     bool
	min        float64
	hasMax     bool
	max        float64
	uniqueSeen map[string]bool
	unique     []*jx.Value
}

func newReductionAcc() *reductionAcc {
	return &reductionAcc{uniqueSeen: make(map[string]bool)}
}

// update folds one evaluated value into the accumulator. Non-numeric
// values are cast to 1.0 so COUNT behaves naturally over arbitrary
// record fields.
func (a *reductionAcc) update(raw *jx.Value) {
	v := 1.0
	switch raw.Kind {
	case jx.KindInt:
		v = float64(raw.Int)
	case jx.KindDouble:
		v = raw.Double
	}
	a.count++
	a.sum += v
	if a.first == nil {
		a.first = raw.Copy()
	}
	a.last = raw.Copy()
	if !a.hasMin || v < a.min {
		a.min, a.hasMin = v, true
	}
	if !a.hasMax || v > a.max {
		a.max, a.hasMax = v, true
	}
	digest := sha1.Sum([]byte(jx.Print(raw)))
	key := hex.EncodeToString(digest[:])
	if !a.uniqueSeen[key] {
		a.uniqueSeen[key] = true
		a.unique = append(a.unique, raw.Copy())
	}
}

// value renders the accumulator as the JX value appropriate to t.
func (a *reductionAcc) value(t ReductionType) *jx.Value {
	switch t {
	case ReduceCount:
		return jx.Int(a.count)
	case ReduceSum, ReduceInc:
		return jx.Double(a.sum)
	case ReduceAvg:
		if a.count == 0 {
			return jx.Double(0)
		}
		return jx.Double(a.sum / float64(a.count))
	case ReduceFirst:
		if a.first == nil {
			return jx.Null()
		}
		return a.first.Copy()
	case ReduceLast:
		if a.last == nil {
			return jx.Null()
		}
		return a.last.Copy()
	case ReduceMin:
		if !a.hasMin {
			return jx.Double(0)
		}
		return jx.Double(a.min)
	case ReduceMax:
		if !a.hasMax {
			return jx.Double(0)
		}
		return jx.Double(a.max)
	case ReduceUnique:
		out := &jx.Value{Kind: jx.KindArray}
		for _, v := range a.unique {
			out.Array = append(out.Array, jx.Item{Value: v.Copy()})
		}
		return out
	default:
		return jx.Null()
	}
}
