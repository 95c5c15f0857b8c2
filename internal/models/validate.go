package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks field constraints on a job definition and that stage orders are unique.
func (j *Job) Validate() error {
	if err := validate.Struct(j); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	seen := make(map[int]bool, len(j.Pipeline))
	for _, s := range j.Pipeline {
		if seen[s.Order] {
			return fmt.Errorf("%w: duplicate stage order %d", ErrValidation, s.Order)
		}
		seen[s.Order] = true
	}
	return nil
}

// ContiguousOrders reports whether sorted stage orders are exactly 1..N.
func ContiguousOrders(stages []PipelineStage) bool {
	for i, s := range stages {
		if s.Order != i+1 {
			return false
		}
	}
	return true
}
