package models

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every failure the dispatch pipeline can surface to a caller.
type Kind string

const (
	KindCredentialEncryption Kind = "CredentialEncryptionError"
	KindAgentUnreachable     Kind = "AgentUnreachableError"
	KindInvalidCredential    Kind = "InvalidCredentialError"
	KindRegistration         Kind = "ScheduledTaskRegistrationError"
	KindRun                  Kind = "ScheduledTaskRunError"
	KindInvalidPayload       Kind = "InvalidPayloadError"
	KindWorkspace            Kind = "WorkspaceError"
	KindInternal             Kind = "InternalError"
)

// Stages at which a failure can happen.
const (
	StageValidate  = "validate"
	StageEncrypt   = "encrypt"
	StageEncode    = "encode"
	StageRelay     = "relay"
	StageDecrypt   = "decrypt"
	StageWorkspace = "workspace"
	StageRegister  = "register"
	StageRun       = "run"
)

// HTTPStatus maps a kind to the status code used at the API edge.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindCredentialEncryption, KindInvalidCredential, KindInvalidPayload:
		return http.StatusBadRequest
	case KindAgentUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is matching on kind.
var (
	ErrCredentialEncryption = &Error{Kind: KindCredentialEncryption}
	ErrAgentUnreachable     = &Error{Kind: KindAgentUnreachable}
	ErrInvalidCredential    = &Error{Kind: KindInvalidCredential}
	ErrRegistration         = &Error{Kind: KindRegistration}
	ErrRun                  = &Error{Kind: KindRun}
	ErrInvalidPayload       = &Error{Kind: KindInvalidPayload}
	ErrWorkspace            = &Error{Kind: KindWorkspace}
	ErrInternal             = &Error{Kind: KindInternal}
)

// Error is the structured failure returned by the orchestrator and agent services.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Err     error

	// Registered is set on run failures: the task stays registered with the host.
	Registered bool
	// AgentStatus and AgentBody carry the agent's reply when it answered with a non-2xx.
	AgentStatus int
	AgentBody   []byte
}

// NewError builds an Error for kind at stage.
func NewError(kind Kind, stage string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatus of the error's kind.
func (e *Error) HTTPStatus() int { return e.Kind.HTTPStatus() }

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
