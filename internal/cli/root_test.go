package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs a command with the given args and captures output.
func executeCommand(args ...string) (string, error) {
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	require.NoError(t, err)
	for _, sub := range []string{"migrate", "service", "worker", "quote"} {
		assert.Contains(t, out, sub)
	}
}

func TestGlobalFlags(t *testing.T) {
	root := NewRootCmd()

	formatFlag := root.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	assert.NotNil(t, root.PersistentFlags().Lookup("database-url"))
}

func TestArgValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"quote needs an id", []string{"quote"}},
		{"quote rejects a non-uuid", []string{"quote", "abc"}},
		{"quote rejects negative tax", []string{"quote", "0b6f2a3e-6a3c-4a53-9d51-3f3c2e0f7a10", "--tax-rate-bps", "-1"}},
		{"service add needs a name", []string{"service", "add", "--fee", "500"}},
		{"worker enroll needs a user", []string{"worker", "enroll"}},
		{"worker enroll rejects a bad user", []string{"worker", "enroll", "--user", "nope"}},
		{"worker enroll rejects a bad service", []string{"worker", "enroll", "--user", "0b6f2a3e-6a3c-4a53-9d51-3f3c2e0f7a10", "--service", "nope"}},
		{"migrate up takes no args", []string{"migrate", "up", "extra"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := executeCommand(tc.args...)
			assert.Error(t, err)
		})
	}
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "19.78", formatCents(1978))
	assert.Equal(t, "0.05", formatCents(5))
	assert.Equal(t, "-1.50", formatCents(-150))
}

func TestParseUUIDs(t *testing.T) {
	ids, err := parseUUIDs([]string{"0b6f2a3e-6a3c-4a53-9d51-3f3c2e0f7a10"})
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	_, err = parseUUIDs([]string{"x"})
	assert.ErrorContains(t, err, "invalid service ID")
}
