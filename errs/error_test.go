package errs

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorFormat(t *testing.T) {
	e := NewAlreadyAttachedErr()
	assert.Equal(t, "[200001] context already has an adapter attached", e.Error())

	e = e.WithErr(errors.New("detail"))
	assert.Equal(t, "[200001] context already has an adapter attached => detail", e.Error())
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, int64(TimeoutErrCode), GetCode(NewTimeoutErr()))
	assert.Equal(t, int64(UnknownErrCode), GetCode(errors.New("plain")))
	assert.Equal(t, int64(UnknownErrCode), GetCode(nil))

	wrapped := errors.Wrap(NewPollerErr(), "outer")
	assert.Equal(t, int64(PollerErrCode), GetCode(wrapped))
}
