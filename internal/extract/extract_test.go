package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtract_FencedWithLanguage(t *testing.T) {
	text := "Here you go:\n```python\ndef add(a, b):\n    return a + b\n```\nEnjoy."
	cb, ok := Extract(text, nil)
	require.True(t, ok)
	require.Equal(t, "def add(a, b):\n    return a + b", cb.Code)
	require.Equal(t, "python", cb.Language)
	require.False(t, cb.Fallback)
}

func TestExtract_FencedWithoutLanguage(t *testing.T) {
	cb, ok := Extract("x\n```\n  SELECT 1;  \n```", nil)
	require.True(t, ok)
	require.Equal(t, "SELECT 1;", cb.Code)
	require.Empty(t, cb.Language)
}

func TestExtract_OnlyFirstBlock(t *testing.T) {
	text := "```go\nfmt.Println(1)\n```\nand\n```go\nfmt.Println(2)\n```"
	cb, ok := Extract(text, nil)
	require.True(t, ok)
	require.Equal(t, "fmt.Println(1)", cb.Code)
}

func TestExtract_CRLF(t *testing.T) {
	cb, ok := Extract("```c++\r\nint x;\r\n```", nil)
	require.True(t, ok)
	require.Equal(t, "int x;", cb.Code)
	require.Equal(t, "c++", cb.Language)
}

func TestExtract_BlankBlocksAreSkipped(t *testing.T) {
	cb, ok := Extract("```\n\n```\nthen\n```python\nx = 1\n```", nil)
	require.True(t, ok)
	require.Equal(t, "x = 1", cb.Code)
	require.Equal(t, "python", cb.Language)
	require.False(t, cb.Fallback)

	_, ok = Extract("```\n\n```\nno code here", nil)
	require.False(t, ok)
}

func TestExtract_Fallback(t *testing.T) {
	cases := []struct {
		name string
		text string
		ok   bool
	}{
		{name: "first line", text: "import os\nprint(os.getcwd())", ok: true},
		{name: "second line", text: "Sure\n  def f():\n    pass", ok: true},
		{name: "comment", text: "# script\nx = 1", ok: true},
		{name: "third line only", text: "Sure\nhere\nclass A: pass", ok: false},
		{name: "prose", text: "I cannot help with that.", ok: false},
		{name: "blank", text: "   \n  ", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cb, ok := Extract(tc.text, nil)
			require.Equal(t, tc.ok, ok)
			if ok {
				require.True(t, cb.Fallback)
				require.Equal(t, strings.TrimSpace(tc.text), cb.Code)
			}
		})
	}
}

func TestExtract_CustomRules(t *testing.T) {
	rules := &Rules{FallbackPrefixes: []string{"package "}}
	_, ok := Extract("import os", rules)
	require.False(t, ok)
	cb, ok := Extract("package main\n\nfunc main() {}", rules)
	require.True(t, ok)
	require.Equal(t, "package main\n\nfunc main() {}", cb.Code)

	_, ok = Extract("import os", &Rules{FallbackPrefixes: []string{}})
	require.False(t, ok)
}

func TestExtract_Idempotent(t *testing.T) {
	text := "```js\nconsole.log('a')\n```"
	a, _ := Extract(text, nil)
	b, _ := Extract(text, nil)
	require.Equal(t, a, b)
}

func TestPreview(t *testing.T) {
	require.Equal(t, "abc...", Preview("abc", 100))
	require.Equal(t, "ab...", Preview("abcdef", 2))
	require.Equal(t, "héé...", Preview("hééllo", 3))
	long := strings.Repeat("x", 150)
	require.Equal(t, strings.Repeat("x", 100)+"...", Preview(long, 0))
}
