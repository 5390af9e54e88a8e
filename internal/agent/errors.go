package agent

import (
	"errors"

	"github.com/danmuck/convoctl/internal/controlplane"
)

var (
	ErrTransport         = controlplane.ErrTransport
	ErrParse             = controlplane.ErrParse
	ErrRemoteRejection   = errors.New("agent: rejected by control plane")
	ErrConflict          = errors.New("agent: unresolved session conflict")
	ErrInvalidLocalState = errors.New("agent: invalid local state")
	ErrRetriesExhausted  = errors.New("agent: start retries exhausted")
	ErrBuildDocument     = errors.New("agent: build join document")
	ErrRemoteRequired    = errors.New("agent: control-plane remote required")
	ErrBuilderRequired   = errors.New("agent: join document builder required")
)
