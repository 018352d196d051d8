package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsCodeAndMatches(t *testing.T) {
	err := Clone(ErrCourseNotFound, "course C999 not found")
	assert.Equal(t, "course C999 not found", err.Message)
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.True(t, errors.Is(err, ErrCourseNotFound))
	assert.False(t, errors.Is(err, ErrEnrollmentNotFound))
	assert.Equal(t, "course not found", ErrCourseNotFound.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)

	wrapped := fmt.Errorf("outer: %w", Clone(ErrForbidden, "not yours"))
	assert.Equal(t, ErrForbidden.Code, FromError(wrapped).Code)
	assert.Nil(t, FromError(nil))
}

func TestPersistenceUnwraps(t *testing.T) {
	err := Persistence(sql.ErrConnDone, "failed to commit payment")
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Contains(t, err.Error(), "failed to commit payment")
}
