package emv

import (
	"strings"
	"testing"
)

func TestFormatTree(t *testing.T) {
	tree := mustDecode(ppseBody(appTemplate(visaAID, "VISA", 1)))
	out := FormatTree(tree)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != tree.Len() {
		t.Fatalf("lines=%d nodes=%d\n%s", len(lines), tree.Len(), out)
	}
	if !strings.HasPrefix(lines[0], "6F FCI Template") {
		t.Fatalf("unexpected root line %q", lines[0])
	}
	if !strings.Contains(out, `"2PAY.SYS.DDF01"`) {
		t.Fatalf("missing printable rendering:\n%s", out)
	}
	if !strings.Contains(out, "        4F Application Identifier (AID) [7]: A0 00 00 00 03 10 10") {
		t.Fatalf("missing indented AID:\n%s", out)
	}
	if FormatTree(nil) != "" {
		t.Fatalf("nil tree should render empty")
	}
}
