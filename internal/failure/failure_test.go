package failure

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errDisk = errors.New("disk I/O error")

func TestErrorsIs(t *testing.T) {
	cause := fmt.Errorf("task 9: %w", errDisk)
	err := Wrap(ErrStore, "", cause)

	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, errDisk)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, ErrStore, KindOf(fmt.Errorf("outer: %w", err)))
	assert.Nil(t, KindOf(errDisk))
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"explicit message", New(ErrMissingReference, "I need the task ID to delete it."), "I need the task ID to delete it."},
		{"default message", &Error{Kind: ErrExtraction, Err: errors.New("EOF")}, "Sorry, I couldn't understand that. Could you rephrase it?"},
		{"store carries cause", Wrap(ErrStore, "", errDisk), "The change could not be saved. disk I/O error"},
		{"wrapped failure", fmt.Errorf("turn: %w", Newf(ErrNotFound, "Task #%d was not found.", 5)), "Task #5 was not found."},
		{"unclassified", errDisk, "Something went wrong. Please try again."},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(New(ErrValidation, "x")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(New(ErrNotFound, "x")))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(New(ErrExtraction, "x")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errDisk))
}
