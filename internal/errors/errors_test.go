package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"gosplit/domain/core"
)

func TestClassifyDomainErrors(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{fmt.Errorf("%w: x", core.ErrExperimentNotFound), CodeNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: stop", core.ErrNotRunning), CodeConflict, http.StatusConflict},
		{core.ErrTooFewVariants, CodeValidationError, http.StatusBadRequest},
		{core.NewValidationError("alpha", "bad"), CodeValidationError, http.StatusBadRequest},
		{fmt.Errorf("%w: nope", core.ErrPolicyRejected), CodePolicyRejected, http.StatusUnprocessableEntity},
		{core.ErrBatchSetup, CodeConflict, http.StatusConflict},
		{stderrors.New("boom"), CodeInternalError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.code, GetCode(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestWrapKeepsCodeAndCause(t *testing.T) {
	base := fmt.Errorf("%w: exp", core.ErrExperimentNotFound)
	wrapped := Wrapf(base, "load %s", "exp")

	assert.Equal(t, CodeNotFound, GetCode(wrapped))
	assert.ErrorIs(t, wrapped, core.ErrNotFound)
	assert.Equal(t, "load exp: "+base.Error(), wrapped.Error())
	assert.Nil(t, Wrap(nil, "x"))

	cfg := Wrap(ConfigInvalid("PORT missing"), "load config")
	assert.Equal(t, CodeConfigInvalid, GetCode(cfg))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(cfg))

	assert.Equal(t, CodeExternalService, GetCode(WithCode(CodeExternalService, stderrors.New("x"))))
}
