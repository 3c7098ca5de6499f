package relayclient

import (
	"fmt"
	"strings"
)

// BuildQuestion combines a main question and context snippets into the single text the
// relay expects. Blank snippets are skipped.
func BuildQuestion(main string, snippets []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Main Question:\n%s\n", main)

	kept := make([]string, 0, len(snippets))
	for _, s := range snippets {
		if strings.TrimSpace(s) != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) > 0 {
		b.WriteString("\nAdditional Context Provided:\n")
		for i, s := range kept {
			fmt.Fprintf(&b, "[Context %d]:\n%s\n\n", i+1, s)
		}
	}
	return strings.TrimSpace(b.String())
}
