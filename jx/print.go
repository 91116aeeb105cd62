package jx

import (
	"fmt"
	"strconv"
	"strings"
)

// precedence mirrors the parser's levels, tightest first, used to
// decide when the printer must parenthesize a child operator node
// (spec.md §4.3's "printer precedence" testable property).
func precedence(tag Op) int {
	switch tag {
	case OpLookup, OpCall, OpDot, OpSlice:
		return 6
	case OpNot:
		return 5
	case OpMul, OpDiv, OpMod:
		return 4
	case OpAdd, OpSub:
		return 3
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return 2
	case OpAnd:
		return 1
	case OpOr:
		return 0
	default:
		return 6
	}
}

var opText = map[Op]string{
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpAnd: "and", OpOr: "or", OpNot: "!",
}

// Print serializes v to a compact one-line textual form.
func Print(v *Value) string {
	var sb strings.Builder
	writeValue(&sb, v, false, 0)
	return sb.String()
}

// PrettyPrint serializes v with two-space indentation per nesting
// level for objects; arrays and atomics stay on one line, per
// spec.md §4.3.
func PrettyPrint(v *Value) string {
	var sb strings.Builder
	writeValue(&sb, v, true, 0)
	return sb.String()
}

func indent(sb *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		sb.WriteString("  ")
	}
}

func writeValue(sb *strings.Builder, v *Value, pretty bool, depth int) {
	if v == nil {
		sb.WriteString("null")
		return
	}
	switch v.Kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		if v.Bool {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.Int, 10))
	case KindDouble:
		sb.WriteString(strconv.FormatFloat(v.Double, 'g', -1, 64))
	case KindString:
		writeString(sb, v.Str)
	case KindSymbol:
		sb.WriteString(v.Sym)
	case KindArray:
		writeArray(sb, v, pretty, depth)
	case KindObject:
		writeObject(sb, v, pretty, depth)
	case KindError:
		sb.WriteString("error(")
		writeValue(sb, v.Err, false, depth)
		sb.WriteString(")")
	case KindOperator:
		writeOperator(sb, v, 0)
	}
}

func writeArray(sb *strings.Builder, v *Value, pretty bool, depth int) {
	sb.WriteString("[")
	for i, it := range v.Array {
		if i > 0 {
			sb.WriteString(",")
		}
		writeValue(sb, it.Value, pretty, depth)
		writeComprehension(sb, it.Comp)
	}
	sb.WriteString("]")
}

func writeObject(sb *strings.Builder, v *Value, pretty bool, depth int) {
	if len(v.Obj) == 0 {
		sb.WriteString("{}")
		return
	}
	sb.WriteString("{")
	for i, p := range v.Obj {
		if i > 0 {
			sb.WriteString(",")
		}
		if pretty {
			sb.WriteString("\n")
			indent(sb, depth+1)
		}
		writeString(sb, p.Key)
		sb.WriteString(":")
		writeValue(sb, p.Value, pretty, depth+1)
		writeComprehension(sb, p.Comp)
	}
	if pretty {
		sb.WriteString("\n")
		indent(sb, depth)
	}
	sb.WriteString("}")
}

func writeComprehension(sb *strings.Builder, c *Comprehension) {
	for c != nil {
		sb.WriteString(" for ")
		sb.WriteString(c.Var)
		sb.WriteString(" in ")
		writeValue(sb, c.Elements, false, 0)
		if c.Cond != nil {
			sb.WriteString(" if ")
			writeValue(sb, c.Cond, false, 0)
		}
		c = c.Next
	}
}

// writeOperator prints an operator subtree, parenthesizing a child
// iff the parent's precedence is strictly higher than the child's; a
// right operand of equal precedence is parenthesized too, so that
// left-to-right grouping survives a re-parse.
func writeOperator(sb *strings.Builder, v *Value, parentPrec int) {
	switch v.OpTag {
	case OpLookup:
		writeChild(sb, v.Left, precedence(OpLookup))
		sb.WriteString("[")
		writeChild(sb, v.Right, -1)
		sb.WriteString("]")
		return
	case OpSlice:
		if v.Left != nil {
			writeChild(sb, v.Left, -1)
		}
		sb.WriteString(":")
		if v.Right != nil {
			writeChild(sb, v.Right, -1)
		}
		return
	case OpCall:
		writeChild(sb, v.Left, precedence(OpCall))
		sb.WriteString("(")
		if v.Right != nil {
			for i, it := range v.Right.Array {
				if i > 0 {
					sb.WriteString(", ")
				}
				writeChild(sb, it.Value, -1)
			}
		}
		sb.WriteString(")")
		return
	case OpDot:
		writeChild(sb, v.Left, precedence(OpDot))
		sb.WriteString(".")
		// v.Right is a CALL node whose Left is the method symbol.
		if v.Right != nil && v.Right.Kind == KindOperator && v.Right.OpTag == OpCall {
			sb.WriteString(v.Right.Left.Sym)
			sb.WriteString("(")
			for i, it := range v.Right.Right.Array {
				if i > 0 {
					sb.WriteString(", ")
				}
				writeChild(sb, it.Value, -1)
			}
			sb.WriteString(")")
		}
		return
	case OpNot:
		sb.WriteString("!")
		writeChild(sb, v.Right, precedence(OpNot))
		return
	}
	prec := precedence(v.OpTag)
	needParen := prec < parentPrec
	if needParen {
		sb.WriteString("(")
	}
	if v.Left == nil {
		// unary + or - that did not fold into a literal
		sb.WriteString(opStr(v.OpTag))
		writeChild(sb, v.Right, prec)
	} else {
		writeChild(sb, v.Left, prec)
		sb.WriteString(" ")
		sb.WriteString(opStr(v.OpTag))
		sb.WriteString(" ")
		writeChild(sb, v.Right, prec+1)
	}
	if needParen {
		sb.WriteString(")")
	}
}

func opStr(tag Op) string {
	if s, ok := opText[tag]; ok {
		return s
	}
	return "?"
}

func writeChild(sb *strings.Builder, v *Value, parentPrec int) {
	if v == nil {
		sb.WriteString("null")
		return
	}
	if v.Kind == KindOperator {
		writeOperator(sb, v, parentPrec)
		return
	}
	writeValue(sb, v, false, 0)
}

var stringEscapes = map[byte]string{
	'"': `\"`, '\\': `\\`, '\b': `\b`, '\f': `\f`, '\n': `\n`, '\r': `\r`, '\t': `\t`,
}

func writeString(sb *strings.Builder, s string) {
	sb.WriteString(`"`)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if esc, ok := stringEscapes[c]; ok {
			sb.WriteString(esc)
			continue
		}
		if c < 0x20 || c == 0x7f {
			fmt.Fprintf(sb, `\u%04x`, c)
			continue
		}
		sb.WriteByte(c)
	}
	sb.WriteString(`"`)
}
