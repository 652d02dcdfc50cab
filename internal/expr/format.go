package expr

import (
	"fmt"
	"strings"
)

// Format renders the tree one node per line, indented by depth.
// Used by the check command to show how a condition was read.
func Format(n Node) string {
	var b strings.Builder
	format(&b, n, 0)
	return b.String()
}

func format(b *strings.Builder, n Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch node := n.(type) {
	case Group:
		fmt.Fprintf(b, "%sgroup\n", indent)
		for _, child := range node.Children {
			format(b, child, depth+1)
		}
	case Operator:
		fmt.Fprintf(b, "%s%s\n", indent, node.Op)
	case Condition:
		fmt.Fprintf(b, "%s%s %s %s\n", indent, node.Cmp, node.Left, node.Right)
	}
}
