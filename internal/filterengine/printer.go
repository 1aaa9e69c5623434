package filterengine

import (
	"fmt"
	"strconv"
	"strings"
)

// Print renders an AST back to filter-language source. Print(Parse(s))
// need not equal s byte-for-byte, but Parse(Print(ast)) must reproduce an
// equivalent ast (spec.md §8 property 3).
func Print(n Node) string {
	var sb strings.Builder
	printNode(&sb, n)
	return sb.String()
}

func printNode(sb *strings.Builder, n Node) {
	switch v := n.(type) {
	case Identity:
		sb.WriteString(".")
	case Literal:
		sb.WriteString(printLiteral(v.Value))
	case Accessor:
		printNode(sb, v.Base)
		for _, p := range v.Path {
			sb.WriteString(".")
			sb.WriteString(p)
		}
	case Pipe:
		printNode(sb, v.Left)
		sb.WriteString(" | ")
		printNode(sb, v.Right)
	case Binary:
		sb.WriteString("(")
		printNode(sb, v.Left)
		sb.WriteString(" ")
		sb.WriteString(v.Op)
		sb.WriteString(" ")
		printNode(sb, v.Right)
		sb.WriteString(")")
	case Unary:
		sb.WriteString(v.Op)
		sb.WriteString(" ")
		printNode(sb, v.Operand)
	case Call:
		sb.WriteString(v.Name)
		sb.WriteString("(")
		for i, a := range v.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			printNode(sb, a)
		}
		sb.WriteString(")")
	case ArrayLit:
		sb.WriteString("[")
		for i, e := range v.Elements {
			if i > 0 {
				sb.WriteString(", ")
			}
			printNode(sb, e)
		}
		sb.WriteString("]")
	case ObjectLit:
		sb.WriteString("{")
		for i, k := range v.Keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			printNode(sb, v.Values[i])
		}
		sb.WriteString("}")
	default:
		sb.WriteString(fmt.Sprintf("<?%T>", n))
	}
}

func printLiteral(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return strconv.Quote(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
