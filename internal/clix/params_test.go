package clix

import (
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddPaginationFlags(flags)
	require.NoError(t, flags.Parse([]string{"--limit=-3", "--offset=-1"}))

	p, err := ParsePagination(flags)
	require.NoError(t, err)
	assert.Equal(t, PaginationParams{Limit: 20, Offset: 0}, p)

	require.NoError(t, flags.Parse([]string{"--limit", "5", "--offset", "10"}))
	p, err = ParsePagination(flags)
	require.NoError(t, err)
	assert.Equal(t, PaginationParams{Limit: 5, Offset: 10}, p)
}

func TestParseJobID(t *testing.T) {
	id := uuid.New()
	got, err := ParseJobID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseJobID("42")
	assert.Error(t, err)
}

func TestParseRound(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("round", 0, "")

	_, err := ParseRound(flags)
	assert.Error(t, err)

	require.NoError(t, flags.Parse([]string{"--round", "2"}))
	round, err := ParseRound(flags)
	require.NoError(t, err)
	assert.Equal(t, 2, round)
}
