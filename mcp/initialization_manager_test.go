package mcp

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializationManager(t *testing.T) {
	im := NewInitializationManager()

	_, err := uuid.Parse(im.SessionID())
	require.NoError(t, err)

	assert.Equal(t, StateUninitialized, im.State())
	assert.Equal(t, "uninitialized", im.State().String())
	assert.ErrorIs(t, im.RequireInitialized(), ErrNotInitialized)

	require.NoError(t, im.Initialize(InitializeParams{ClientInfo: ClientInfo{Name: "client", Version: "1"}}))
	assert.Equal(t, StateInitialized, im.State())
	assert.Equal(t, "initialized", im.State().String())
	assert.NoError(t, im.RequireInitialized())

	err = im.Initialize(InitializeParams{ClientInfo: ClientInfo{Name: "other"}})
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.Equal(t, StateInitialized, im.State())
	assert.Equal(t, "client", im.ClientInfo().Name)
}

func TestInitializationManager_IndependentSessions(t *testing.T) {
	a := NewInitializationManager()
	b := NewInitializationManager()

	require.NoError(t, a.Initialize(InitializeParams{}))

	assert.Equal(t, StateInitialized, a.State())
	assert.Equal(t, StateUninitialized, b.State())
	assert.NotEqual(t, a.SessionID(), b.SessionID())
}
