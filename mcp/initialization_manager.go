package mcp

import (
	"github.com/google/uuid"
)

// LifecycleState represents the session's current state.
type LifecycleState int

const (
	StateUninitialized LifecycleState = iota
	StateInitialized
)

func (s LifecycleState) String() string {
	if s == StateInitialized {
		return "initialized"
	}
	return "uninitialized"
}

// InitializationManager owns the state of the single session served by one
// server instance. INITIALIZED is terminal.
type InitializationManager struct {
	sessionID  string
	state      LifecycleState
	clientInfo ClientInfo
}

func NewInitializationManager() *InitializationManager {
	return &InitializationManager{
		sessionID: uuid.NewString(),
		state:     StateUninitialized,
	}
}

// Initialize moves the session to INITIALIZED. A second call fails with
// ErrAlreadyInitialized and leaves the state untouched.
func (im *InitializationManager) Initialize(params InitializeParams) error {
	if im.state != StateUninitialized {
		return ErrAlreadyInitialized
	}

	im.clientInfo = params.ClientInfo
	im.state = StateInitialized
	return nil
}

// RequireInitialized fails with ErrNotInitialized until Initialize succeeded.
func (im *InitializationManager) RequireInitialized() error {
	if im.state != StateInitialized {
		return ErrNotInitialized
	}
	return nil
}

func (im *InitializationManager) State() LifecycleState {
	return im.state
}

func (im *InitializationManager) SessionID() string {
	return im.sessionID
}

func (im *InitializationManager) ClientInfo() ClientInfo {
	return im.clientInfo
}
