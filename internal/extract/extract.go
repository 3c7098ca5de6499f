package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// fencePattern matches a Markdown fence with an optional language tag. The body is lazy so
// the first closing fence ends the block.
var fencePattern = regexp.MustCompile("(?s)```([\\w+#.\\-]*)[ \\t]*\\r?\\n(.*?)\\r?\\n[ \\t]*```")

type CodeBlock struct {
	// Language is the fence tag, empty when the fence had none or Fallback is set.
	Language string
	Code     string
	// Fallback is set when no fence was found and the whole text was taken as code.
	Fallback bool
}

// Extract returns the trimmed body of the first fenced block in text that has any content;
// blank blocks are skipped. Without one, the whole trimmed text is code when its first or
// second line starts with a fallback prefix.
func Extract(text string, rules *Rules) (CodeBlock, bool) {
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		if code := strings.TrimSpace(m[2]); code != "" {
			return CodeBlock{Language: m[1], Code: code}, true
		}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return CodeBlock{}, false
	}
	lines := strings.SplitN(trimmed, "\n", 3)
	for i := 0; i < len(lines) && i < 2; i++ {
		if rules.matchesPrefix(strings.TrimSpace(lines[i])) {
			return CodeBlock{Code: trimmed, Fallback: true}, true
		}
	}
	return CodeBlock{}, false
}

// Preview returns the first n runes of code followed by "...". n <= 0 means 100.
func Preview(code string, n int) string {
	if n <= 0 {
		n = DefaultPreviewRunes
	}
	if utf8.RuneCountInString(code) <= n {
		return code + "..."
	}
	i := 0
	for pos := range code {
		if i == n {
			return code[:pos] + "..."
		}
		i++
	}
	return code + "..."
}

const DefaultPreviewRunes = 100
