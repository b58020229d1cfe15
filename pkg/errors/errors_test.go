package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := &Error{Type: ErrorTypeAuth, Message: "token expired", Code: 400}
	assert.Equal(t, "auth error (code 400): token expired", err.Error())

	wrapped := StoreUnavailable(fmt.Errorf("permission denied"), "cannot open illust_data.csv")
	assert.Equal(t, "store_unavailable error: cannot open illust_data.csv: permission denied", wrapped.Error())
}

func TestIsType(t *testing.T) {
	cause := New(ErrorTypeNetwork, "connection reset")
	err := fmt.Errorf("page 3: %w", Provider(cause, "search failed"))

	assert.True(t, IsType(err, ErrorTypeProvider))
	assert.True(t, IsType(err, ErrorTypeNetwork))
	assert.False(t, IsType(err, ErrorTypeStoreUnavailable))
	assert.False(t, IsType(stderrors.New("plain"), ErrorTypeProvider))
	assert.Equal(t, ErrorTypeProvider, TypeOf(err))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(stderrors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	sentinel := stderrors.New("disk full")
	err := StoreUnavailable(sentinel, "flush failed")
	assert.ErrorIs(t, err, sentinel)
}
