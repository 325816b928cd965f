package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesPredefined(t *testing.T) {
	err := Clone(ErrScheduleNotFound, "schedule abc not found")
	require.True(t, stdErrors.Is(err, ErrScheduleNotFound))
	require.False(t, stdErrors.Is(err, ErrNotFound))
	assert.Equal(t, "schedule abc not found", err.Error())
}

func TestWrapAsKeepsCodeAndCause(t *testing.T) {
	cause := fmt.Errorf("range inverted")
	err := WrapAs(ErrInvalidParameters, cause, "")
	require.True(t, stdErrors.Is(err, ErrInvalidParameters))
	require.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusBadRequest, err.Status)
	assert.Equal(t, "invalid report parameters: range inverted", err.Error())
}

func TestFromErrorNormalisesUnknown(t *testing.T) {
	wrapped := fmt.Errorf("pipeline: %w", Clone(ErrRender, "missing column"))
	assert.Equal(t, ErrRender.Code, FromError(wrapped).Code)

	plain := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, plain.Code)
	assert.Nil(t, FromError(nil))
}
