package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaharia-lab/omnifocus-gtd/observability"
	"go.opentelemetry.io/otel/attribute"
)

const (
	ProtocolVersion      = "2025-06-18"
	defaultServerName    = "omnifocus-gtd"
	defaultServerVersion = "1.0.0"
)

// ServerConfig holds all configuration for BaseServer
type ServerConfig struct {
	logger          observability.Logger
	protocolVersion string
	serverName      string
	serverVersion   string
	toolManager     *ToolManager
}

// ServerConfigOption is a function that modifies ServerConfig
type ServerConfigOption func(*ServerConfig)

// UseLogger sets a custom logger
func UseLogger(logger observability.Logger) ServerConfigOption {
	return func(c *ServerConfig) {
		c.logger = logger
	}
}

// UseServerInfo sets server name and version
func UseServerInfo(name, version string) ServerConfigOption {
	return func(c *ServerConfig) {
		c.serverName = name
		c.serverVersion = version
	}
}

// UseProtocolVersion sets the protocol version reported by initialize.
func UseProtocolVersion(version string) ServerConfigOption {
	return func(c *ServerConfig) {
		c.protocolVersion = version
	}
}

// UseTools sets the tool catalog
func UseTools(toolManager *ToolManager) ServerConfigOption {
	return func(c *ServerConfig) {
		c.toolManager = toolManager
	}
}

func defaultConfig() *ServerConfig {
	tm, _ := NewToolManager(nil)

	return &ServerConfig{
		logger:          observability.NewNullLogger(),
		protocolVersion: ProtocolVersion,
		serverName:      defaultServerName,
		serverVersion:   defaultServerVersion,
		toolManager:     tm,
	}
}

// BaseServer routes requests to the session and the tool catalog. It is
// transport independent and handles one request at a time.
type BaseServer struct {
	protocolVersion string
	logger          observability.Logger
	ServerInfo      ServerInfo
	toolManager     *ToolManager
	session         *InitializationManager

	shutdownRequested bool
}

// NewBaseServer creates a new BaseServer instance with the given options
func NewBaseServer(opts ...ServerConfigOption) (*BaseServer, error) {
	cfg := defaultConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.logger == nil {
		return nil, fmt.Errorf("new server: logger is required")
	}
	if cfg.toolManager == nil {
		return nil, fmt.Errorf("new server: tool manager is required")
	}
	if cfg.serverName == "" || cfg.serverVersion == "" {
		return nil, fmt.Errorf("new server: server name and version are required")
	}

	session := NewInitializationManager()

	return &BaseServer{
		protocolVersion: cfg.protocolVersion,
		logger:          cfg.logger.WithFields(map[string]interface{}{"session": session.SessionID()}),
		ServerInfo: ServerInfo{
			Name:    cfg.serverName,
			Version: cfg.serverVersion,
		},
		toolManager: cfg.toolManager,
		session:     session,
	}, nil
}

// Session exposes the session state machine.
func (s *BaseServer) Session() *InitializationManager {
	return s.session
}

// ShutdownRequested reports whether a shutdown request has been answered.
func (s *BaseServer) ShutdownRequested() bool {
	return s.shutdownRequested
}

// isNotification reports whether req must not be answered.
func isNotification(req *Request) bool {
	switch req.Method {
	case MethodInitialized, MethodNotificationInitialized:
		return true
	}
	return req.IsNotification()
}

// handleRequest returns the result or the error for one request.
func (s *BaseServer) handleRequest(ctx context.Context, request *Request) (interface{}, error) {
	s.logger.WithFields(map[string]interface{}{
		"method": request.Method,
		"id":     string(request.ID),
	}).Debug("Received request from client")

	switch request.Method {
	case MethodInitialize:
		return s.handleInitialize(ctx, request)
	case MethodPing:
		return struct{}{}, nil
	case MethodToolsList:
		return s.handleToolsList(ctx, request)
	case MethodToolsCall:
		return s.handleToolsCall(ctx, request)
	case MethodShutdown:
		s.logger.Info("Shutdown requested by client")
		s.shutdownRequested = true
		return nil, nil
	default:
		s.logger.WithFields(map[string]interface{}{
			"method": request.Method,
			"id":     string(request.ID),
		}).Warn("Method not found. Unhandled request from client")

		return nil, Errorf(KindUnknownMethod, "Method not found: %s", request.Method)
	}
}

func (s *BaseServer) handleInitialize(ctx context.Context, request *Request) (result interface{}, err error) {
	_, span := observability.StartSpan(ctx, "BaseServer.handleInitialize")
	defer func() { observability.EndSpan(span, err) }()

	var params InitializeParams
	if len(request.Params) > 0 {
		if uerr := json.Unmarshal(request.Params, &params); uerr != nil {
			s.logger.WithErr(uerr).Warn("Ignoring unreadable initialize params")
		}
	}

	if err = s.session.Initialize(params); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"client":         params.ClientInfo.Name,
		"client_version": params.ClientInfo.Version,
	}).Info("Session initialized")

	return InitializeResult{
		ProtocolVersion: s.protocolVersion,
		Capabilities:    Capabilities{Tools: &ToolsCapability{}},
		ServerInfo:      s.ServerInfo,
	}, nil
}

func (s *BaseServer) handleToolsList(ctx context.Context, request *Request) (result interface{}, err error) {
	ctx, span := observability.StartSpan(ctx, "BaseServer.handleToolsList")
	defer func() { observability.EndSpan(span, err) }()

	if err = s.session.RequireInitialized(); err != nil {
		return nil, err
	}

	return s.toolManager.ListTools(ctx), nil
}

func (s *BaseServer) handleToolsCall(ctx context.Context, request *Request) (result interface{}, err error) {
	ctx, span := observability.StartSpan(ctx, "BaseServer.handleToolsCall")
	defer func() { observability.EndSpan(span, err) }()

	if err = s.session.RequireInitialized(); err != nil {
		return nil, err
	}

	var params CallToolParams
	if len(request.Params) > 0 {
		if uerr := json.Unmarshal(request.Params, &params); uerr != nil {
			s.logger.WithFields(map[string]interface{}{
				"id":     string(request.ID),
				"params": string(request.Params),
			}).WithErr(uerr).Error("Failed to parse call tool params")

			err = NewError(KindInvalidParams, "Invalid params", uerr)
			return nil, err
		}
	}

	span.SetAttributes(attribute.String("tool", params.Name))
	s.logger.WithFields(map[string]interface{}{
		"id":   string(request.ID),
		"tool": params.Name,
	}).Debug("Calling tool")

	return s.toolManager.CallTool(ctx, params)
}

// handleNotification logs a notification. Notifications are never answered;
// a shutdown sent as one still stops the server.
func (s *BaseServer) handleNotification(ctx context.Context, notification *Request) {
	switch notification.Method {
	case MethodInitialized, MethodNotificationInitialized:
		s.logger.Debug("Client confirmed initialization")
	case MethodShutdown:
		s.logger.Info("Shutdown requested by client without an id")
		s.shutdownRequested = true
	case MethodNotificationCancelled:
		var cancelParams struct {
			RequestID json.RawMessage `json:"requestId"`
			Reason    string          `json:"reason"`
		}
		if err := json.Unmarshal(notification.Params, &cancelParams); err == nil {
			// Requests run to completion before the next line is read, so
			// there is never anything in flight to cancel.
			s.logger.WithFields(map[string]interface{}{
				"requestID": string(cancelParams.RequestID),
				"reason":    cancelParams.Reason,
			}).Debug("Cancellation requested")
		}
	default:
		s.logger.WithFields(map[string]interface{}{
			"method": notification.Method,
		}).Warn("Ignoring notification")
	}
}
