package clix

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

type PaginationParams struct {
	Limit  int
	Offset int
}

// AddPaginationFlags registers --limit and --offset.
func AddPaginationFlags(flags *pflag.FlagSet) {
	flags.Int("limit", 20, "Maximum number of rows to show")
	flags.Int("offset", 0, "Number of rows to skip")
}

func ParsePagination(flags *pflag.FlagSet) (PaginationParams, error) {
	limit, _ := flags.GetInt("limit")
	offset, _ := flags.GetInt("offset")
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return PaginationParams{Limit: limit, Offset: offset}, nil
}

// ParseJobID parses a positional job id argument.
func ParseJobID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid job id %q: %w", arg, err)
	}
	return id, nil
}

// ParseRound reads a required positive --round flag.
func ParseRound(flags *pflag.FlagSet) (int, error) {
	round, err := flags.GetInt("round")
	if err != nil {
		return 0, err
	}
	if round < 1 {
		return 0, fmt.Errorf("--round must be a positive round number, got %d", round)
	}
	return round, nil
}
