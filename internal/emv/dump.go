package emv

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/danmuck/emvtap/internal/protocol/tlv"
)

// FormatTree renders tree one object per line, indented by depth. Primitive
// values are shown in hex, with a text rendering when fully printable.
func FormatTree(tree *tlv.Tree) string {
	if tree == nil {
		return ""
	}
	var b strings.Builder
	tree.Walk(func(n tlv.Node, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		fmt.Fprintf(&b, "%s", n.Tag())
		if name := TagName(n.Tag()); name != "" {
			fmt.Fprintf(&b, " %s", name)
		}
		fmt.Fprintf(&b, " [%d]", n.Len())
		if !n.Tag().Constructed() && n.Len() > 0 {
			v := n.Value()
			fmt.Fprintf(&b, ": % X", v)
			if printable(v) {
				fmt.Fprintf(&b, " %q", v)
			}
		}
		b.WriteByte('\n')
	})
	return b.String()
}

func printable(v []byte) bool {
	for _, c := range v {
		if c >= 0x80 || !unicode.IsPrint(rune(c)) {
			return false
		}
	}
	return true
}
