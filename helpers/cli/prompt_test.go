package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunScript(t *testing.T) {
	t.Parallel()

	lines := []string{}
	input := "@12\n\n  # comment\n s100 @1401 \n"
	require.NoError(t, RunScript(strings.NewReader(input), func(line string) { lines = append(lines, line) }))
	assert.Equal(t, []string{"@12", "s100 @1401"}, lines)
}
