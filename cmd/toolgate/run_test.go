// cmd/toolgate/run_test.go
package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCommandLine(t *testing.T) {
	testCases := []struct {
		name string
		line string
		want []string
	}{
		{
			name: "plain words",
			line: "npx -y some-server",
			want: []string{"npx", "-y", "some-server"},
		},
		{
			name: "double quoted argument keeps spaces",
			line: `python -c "import x; x.run()"`,
			want: []string{"python", "-c", "import x; x.run()"},
		},
		{
			name: "single quoted argument is literal",
			line: `sh -c 'echo "hi there"'`,
			want: []string{"sh", "-c", `echo "hi there"`},
		},
		{
			name: "escaped space joins a word",
			line: `run /tmp/my\ server`,
			want: []string{"run", "/tmp/my server"},
		},
		{
			name: "escaped quote inside double quotes",
			line: `say "a \"quoted\" word"`,
			want: []string{"say", `a "quoted" word`},
		},
		{
			name: "adjacent quoted and bare text form one word",
			line: `--flag="some value"`,
			want: []string{"--flag=some value"},
		},
		{
			name: "collapses repeated whitespace",
			line: "  cmd \t arg  ",
			want: []string{"cmd", "arg"},
		},
		{
			name: "empty line",
			line: "",
			want: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := splitCommandLine(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSplitCommandLineRejectsUnbalancedQuotes(t *testing.T) {
	for _, line := range []string{`python -c "import x`, `sh -c 'oops`} {
		_, err := splitCommandLine(line)
		require.Error(t, err, "Unterminated quoting must be rejected: %s", line)
		assert.Contains(t, err.Error(), "unbalanced")
	}
}
