package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	v, err := parsePayload("", false)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = parsePayload(`{"key": "a", "value": 2}`, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"key": "a", "value": 2.0}, v)

	v, err = parsePayload(`"hits"`, false)
	require.NoError(t, err)
	assert.Equal(t, "hits", v)

	v, err = parsePayload("hits", true)
	require.NoError(t, err)
	assert.Equal(t, "hits", v)

	_, err = parsePayload("hits", false)
	assert.ErrorContains(t, err, "-raw")
}

func TestRegexFlag(t *testing.T) {
	var r regexFlag
	assert.True(t, r.Match("anything"), "Unset flag should match everything")
	require.NoError(t, r.Set("^kv/"))
	assert.True(t, r.Match("kv/set"))
	assert.False(t, r.Match("order/placed"))
	assert.Equal(t, "^kv/", r.String())
	assert.Error(t, r.Set("("))
	require.NoError(t, r.Set(""))
	assert.True(t, r.Match("order/placed"))
	assert.Empty(t, r.String())
}

func TestBaseURL(t *testing.T) {
	defer func(h string, p uint, b string) { *host, *port, *basePath = h, p, b }(
		*host, *port, *basePath)

	*host, *port, *basePath = "localhost", 9000, ""
	assert.Equal(t, "http://localhost:9000", baseURL())

	*host, *port, *basePath = "::1", 8080, "/listenkit/"
	assert.Equal(t, "http://[::1]:8080/listenkit/", baseURL())
}
