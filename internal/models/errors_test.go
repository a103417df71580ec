package models

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_HTTPStatus(t *testing.T) {
	testCases := []struct {
		kind Kind
		want int
	}{
		{KindCredentialEncryption, http.StatusBadRequest},
		{KindInvalidCredential, http.StatusBadRequest},
		{KindInvalidPayload, http.StatusBadRequest},
		{KindAgentUnreachable, http.StatusBadGateway},
		{KindRegistration, http.StatusInternalServerError},
		{KindRun, http.StatusInternalServerError},
		{KindWorkspace, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.kind.HTTPStatus())
		})
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("dispatch: %w", NewError(KindAgentUnreachable, StageRelay, cause, "contacting agent %s", "http://agent.local"))

	assert.True(t, errors.Is(err, ErrAgentUnreachable))
	assert.False(t, errors.Is(err, ErrInvalidCredential))
	assert.True(t, errors.Is(err, cause), "cause should stay reachable")

	e, ok := AsError(err)
	assert.True(t, ok)
	assert.Equal(t, StageRelay, e.Stage)
	assert.Equal(t, "contacting agent http://agent.local: connection refused", e.Error())
}

func TestError_MessageFallsBackToKind(t *testing.T) {
	e := &Error{Kind: KindRun}
	assert.Equal(t, "ScheduledTaskRunError", e.Error())
}
