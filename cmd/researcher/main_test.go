package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadQuery(t *testing.T) {
	t.Run("from args", func(t *testing.T) {
		var out bytes.Buffer
		q, err := readQuery([]string{"remote", "work ", " cities"}, strings.NewReader("ignored\n"), &out)
		require.NoError(t, err)
		assert.Equal(t, "remote work   cities", q)
		assert.Empty(t, out.String())
	})

	t.Run("prompted", func(t *testing.T) {
		var out bytes.Buffer
		q, err := readQuery(nil, strings.NewReader("  Impact of remote work  \nsecond line\n"), &out)
		require.NoError(t, err)
		assert.Equal(t, "Impact of remote work", q)
		assert.Equal(t, "Enter your research query: ", out.String())
	})

	t.Run("no trailing newline", func(t *testing.T) {
		q, err := readQuery(nil, strings.NewReader("query"), &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, "query", q)
	})

	t.Run("empty input", func(t *testing.T) {
		q, err := readQuery(nil, strings.NewReader(""), &bytes.Buffer{})
		require.NoError(t, err)
		assert.Empty(t, q)
	})
}
