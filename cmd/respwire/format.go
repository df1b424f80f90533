package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/raniellyferreira/respwire/protocol"
)

// writeValue prints v the way redis-cli does
func writeValue(w io.Writer, v protocol.Value) {
	var sb strings.Builder
	formatValue(&sb, v, 0)
	fmt.Fprintln(w, sb.String())
}

func formatValue(sb *strings.Builder, v protocol.Value, indent int) {
	if v.Null {
		sb.WriteString("(nil)")
		return
	}

	switch v.Prefix {
	case protocol.PrefixSimpleString:
		sb.Write(v.Data)
	case protocol.PrefixSimpleError, protocol.PrefixBulkError:
		sb.WriteString("(error) ")
		sb.Write(v.Data)
	case protocol.PrefixInteger:
		sb.WriteString("(integer) ")
		sb.Write(v.Data)
	case protocol.PrefixBulkString:
		sb.WriteString(strconv.Quote(string(v.Data)))
	case protocol.PrefixVerbatimString:
		sb.WriteString(strconv.Quote(v.String()))
	case protocol.PrefixNull:
		sb.WriteString("(nil)")
	case protocol.PrefixBoolean:
		if v.Bool() {
			sb.WriteString("(true)")
		} else {
			sb.WriteString("(false)")
		}
	case protocol.PrefixDouble:
		sb.WriteString("(double) ")
		sb.Write(v.Data)
	case protocol.PrefixBigNumber:
		sb.WriteString("(big number) ")
		sb.Write(v.Data)
	case protocol.PrefixMap:
		formatMap(sb, v, indent)
	case protocol.PrefixArray, protocol.PrefixSet, protocol.PrefixPush:
		formatList(sb, v, indent)
	default:
		sb.WriteString(v.String())
	}
}

func formatList(sb *strings.Builder, v protocol.Value, indent int) {
	if len(v.Children) == 0 {
		switch v.Prefix {
		case protocol.PrefixSet:
			sb.WriteString("(empty set)")
		default:
			sb.WriteString("(empty array)")
		}
		return
	}

	marker := ")"
	if v.Prefix == protocol.PrefixSet {
		marker = "~"
	} else if v.Prefix == protocol.PrefixPush {
		marker = ">"
	}

	width := len(strconv.Itoa(len(v.Children)))
	for i, child := range v.Children {
		if i > 0 {
			sb.WriteByte('\n')
			sb.WriteString(strings.Repeat(" ", indent))
		}
		label := fmt.Sprintf("%*d%s ", width, i+1, marker)
		sb.WriteString(label)
		formatValue(sb, child, indent+len(label))
	}
}

func formatMap(sb *strings.Builder, v protocol.Value, indent int) {
	if len(v.Children) == 0 {
		sb.WriteString("(empty hash)")
		return
	}

	pairs := len(v.Children) / 2
	width := len(strconv.Itoa(pairs))
	for i := 0; i < pairs; i++ {
		if i > 0 {
			sb.WriteByte('\n')
			sb.WriteString(strings.Repeat(" ", indent))
		}
		label := fmt.Sprintf("%*d# ", width, i+1)
		sb.WriteString(label)
		formatValue(sb, v.Children[2*i], indent+len(label))
		sb.WriteString(" => ")
		formatValue(sb, v.Children[2*i+1], indent+len(label))
	}
}
