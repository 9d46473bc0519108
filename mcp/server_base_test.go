package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseServer(t *testing.T) {
	tests := []struct {
		name    string
		opts    []ServerConfigOption
		wantErr bool
	}{
		{name: "defaults"},
		{name: "custom info", opts: []ServerConfigOption{UseServerInfo("gtd", "2.0.0"), UseProtocolVersion("2024-11-05")}},
		{name: "nil logger", opts: []ServerConfigOption{UseLogger(nil)}, wantErr: true},
		{name: "nil tools", opts: []ServerConfigOption{UseTools(nil)}, wantErr: true},
		{name: "empty info", opts: []ServerConfigOption{UseServerInfo("", "")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewBaseServer(tt.opts...)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, server)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateUninitialized, server.Session().State())
			assert.False(t, server.ShutdownRequested())
		})
	}
}

func TestBaseServer_HandleInitialize(t *testing.T) {
	server, err := NewBaseServer(UseServerInfo("gtd", "2.0.0"), UseProtocolVersion("2024-11-05"))
	require.NoError(t, err)

	result, err := server.handleRequest(context.Background(), &Request{
		ProtocolVersion: "2.0",
		ID:              json.RawMessage(`1`),
		Method:          MethodInitialize,
		Params:          json.RawMessage(`{"clientInfo":{"name":"claude","version":"1.2"}}`),
	})
	require.NoError(t, err)

	assert.Equal(t, InitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities:    Capabilities{Tools: &ToolsCapability{}},
		ServerInfo:      ServerInfo{Name: "gtd", Version: "2.0.0"},
	}, result)
	assert.Equal(t, StateInitialized, server.Session().State())
	assert.Equal(t, ClientInfo{Name: "claude", Version: "1.2"}, server.Session().ClientInfo())
}

func TestBaseServer_InitializeIgnoresUnreadableParams(t *testing.T) {
	server, err := NewBaseServer()
	require.NoError(t, err)

	_, err = server.handleRequest(context.Background(), &Request{
		ID:     json.RawMessage(`1`),
		Method: MethodInitialize,
		Params: json.RawMessage(`[1,2,3]`),
	})
	require.NoError(t, err)
	assert.Equal(t, StateInitialized, server.Session().State())
}

func TestBaseServer_Shutdown(t *testing.T) {
	server, err := NewBaseServer()
	require.NoError(t, err)

	result, err := server.handleRequest(context.Background(), &Request{ID: json.RawMessage(`9`), Method: MethodShutdown})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.True(t, server.ShutdownRequested())
}

func TestBaseServer_ShutdownNotification(t *testing.T) {
	server, err := NewBaseServer()
	require.NoError(t, err)

	server.handleNotification(context.Background(), &Request{Method: MethodToolsList})
	assert.False(t, server.ShutdownRequested())

	server.handleNotification(context.Background(), &Request{Method: MethodShutdown})
	assert.True(t, server.ShutdownRequested())
}

func TestIsNotification(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want bool
	}{
		{name: "no id", req: Request{Method: MethodToolsList}, want: true},
		{name: "null id", req: Request{Method: MethodToolsList, ID: json.RawMessage(`null`)}, want: false},
		{name: "numeric id", req: Request{Method: MethodPing, ID: json.RawMessage(`3`)}, want: false},
		{name: "initialized with id", req: Request{Method: MethodInitialized, ID: json.RawMessage(`3`)}, want: true},
		{name: "notifications/initialized with id", req: Request{Method: MethodNotificationInitialized, ID: json.RawMessage(`3`)}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotification(&tt.req))
		})
	}
}
