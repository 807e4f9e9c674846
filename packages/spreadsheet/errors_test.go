package spreadsheet

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want AppErrorCode
	}{
		{"nil", nil, OK},
		{"app error", NewApplicationError(FailedPrecondition, "not classified"), FailedPrecondition},
		{"wrapped app error", fmt.Errorf("line 3: %w", NewApplicationError(AlreadyExists, "dup")), AlreadyExists},
		{"column out of range", fmt.Errorf("XFE1: %w", ErrColumnOutOfRange), OutOfRange},
		{"invalid coordinate", fmt.Errorf("x: %w", ErrInvalidCoordinate), InvalidArgument},
		{"registered twice", ErrAlreadyRegistered, AlreadyExists},
		{"empty function set", fmt.Errorf("egress functions: %w", ErrEmptyFunctionSet), InvalidArgument},
		{"visit budget", fmt.Errorf("'Sheet1'!Z1 after 5 records: %w", ErrVisitBudgetExceeded), ResourceExhausted},
		{"not found", fmt.Errorf("'Sheet1'!A1: %w", ErrNotFound), NotFound},
		{"plain error", errors.New("boom"), Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestAppErrorCodeString(t *testing.T) {
	assert.Equal(t, "ResourceExhausted", ResourceExhausted.String())
	assert.Equal(t, "OutOfRange", OutOfRange.String())
	assert.Equal(t, "Unknown", AppErrorCode(42).String())
}

func TestIndexToColumnErrorCode(t *testing.T) {
	_, err := IndexToColumn(MaxColumns + 1)
	assert.Equal(t, OutOfRange, ErrorCode(err))
}
