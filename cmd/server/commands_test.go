package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		shiftAt = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestShiftCommand(t *testing.T) {
	tests := []struct {
		name string
		at   string
		want string
	}{
		{"day shift", "2025-03-15T09:15:00+05:30", "shift-1\t2025-03-15\t09:00\n"},
		{"overnight belongs to previous date", "2025-03-15T01:30:00+05:30", "shift-2\t2025-03-14\t01:00\n"},
		{"utc input is converted", "2025-03-15T04:00:00Z", "shift-1\t2025-03-15\t09:00\n"},
		{"changeover gap", "2025-03-15T19:30:00+05:30", "no active shift at 19:30 plant time\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STORE_DRIVER", "memory")

			out, err := execute(t, "shift", "--at", tt.at)

			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestShiftCommand_BadInstant(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	_, err := execute(t, "shift", "--at", "yesterday")

	assert.ErrorContains(t, err, "--at")
}

func TestRecomputeCommand_NoProduction(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	_, err := execute(t, "recompute", "--shift", "shift-1", "--date", "2025-03-15")

	assert.ErrorContains(t, err, "no production record")
}
