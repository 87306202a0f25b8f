package stack_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"arcstack.dev/arcstack/internal/stack"
)

func TestCompilePathPattern(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		match   bool
	}{
		{`^src/`, "src/main.go", true},
		{`^src/`, "docs/src/x.md", false},
		{`/^src\//`, "src/main.go", true},
		{`/^src\//`, "lib/src/x.go", false},
		{`/^SRC\//i`, "src/main.go", true},
		{`#^docs/.*\.md$#`, "docs/readme.md", true},
		{`{^(api|proto)/}`, "proto/v1/x.proto", true},
		{`(src|lib)/`, "pkg/lib/x.go", true},
	}
	for _, tc := range cases {
		re, err := stack.CompilePathPattern(tc.pattern)
		require.NoError(t, err, tc.pattern)
		require.Equal(t, tc.match, re.MatchString(tc.path), "%s on %s", tc.pattern, tc.path)
	}

	_, err := stack.CompilePathPattern(`/^src\//x`)
	require.Error(t, err)
}
