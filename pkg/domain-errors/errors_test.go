package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	base := errors.New("boom")

	t.Run("finds outer code", func(t *testing.T) {
		err := Wrap(base, CodeInconsistent, "snapshot broken")
		assert.True(t, HasCode(err, CodeInconsistent))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("finds nested code through fmt wrapping", func(t *testing.T) {
		inner := New(CodeNotFound, "person missing")
		err := fmt.Errorf("load: %w", Wrap(inner, CodeInconsistent, "abort"))
		assert.True(t, HasCode(err, CodeNotFound))
		assert.True(t, HasCode(err, CodeInconsistent))
	})

	t.Run("plain error has no code", func(t *testing.T) {
		assert.False(t, HasCode(base, CodeInternal))
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("x")))
	assert.Equal(t, CodeBelowThreshold, CodeOf(New(CodeBelowThreshold, "x")))
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "a", New(CodeInternal, "a").Error())
	assert.Equal(t, "a: b", Wrap(errors.New("b"), CodeInternal, "a").Error())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(CodeInvalidInput))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(CodeNotFound))
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeConflict))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(CodeInconsistent))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(CodeInternal))
}
