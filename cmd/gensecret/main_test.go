package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_run(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		var out bytes.Buffer

		require.NoError(t, run(nil, &out))

		assert.Len(t, strings.TrimSpace(out.String()), 2*SecretKeyBytesLen)
	})

	t.Run("several keys", func(t *testing.T) {
		var out bytes.Buffer

		require.NoError(t, run([]string{"-n", "3", "--bytes", "16"}, &out))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		for _, l := range lines {
			assert.Len(t, l, 32)
		}
		assert.NotEqual(t, lines[0], lines[1])
	})

	t.Run("too short", func(t *testing.T) {
		require.Error(t, run([]string{"--bytes", "8"}, &bytes.Buffer{}))
	})
}
