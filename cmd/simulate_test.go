package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnswers(t *testing.T) {
	obs, err := parseAnswers("1 0,11")
	require.NoError(t, err)
	require.Len(t, obs, 4)
	assert.True(t, obs[0].Correct)
	assert.False(t, obs[1].Correct)
	assert.True(t, obs[3].Correct)

	_, err = parseAnswers("10x1")
	assert.ErrorContains(t, err, "position 2")

	_, err = parseAnswers(" , ")
	assert.Error(t, err)
}
