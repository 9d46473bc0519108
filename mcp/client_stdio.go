package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/shaharia-lab/omnifocus-gtd/observability"
)

const (
	defaultClientName     = "omnifocus-gtd-client"
	defaultClientVersion  = "1.0.0"
	defaultRequestTimeout = 30 * time.Second
)

var errClientClosed = errors.New("client closed")

// StdIOClientConfig configures a StdIOClient.
type StdIOClientConfig struct {
	ClientName     string
	ClientVersion  string
	RequestTimeout time.Duration
	Logger         observability.Logger
	Reader         io.Reader
	Writer         io.Writer
}

// StdIOClient drives a line-delimited server such as StdIOServer. It sends
// one request at a time and waits for the response with the matching id.
//
// It exists to exercise the server end to end over pipes and is not a
// general-purpose MCP client: it implements only the methods this server
// answers.
type StdIOClient struct {
	config StdIOClientConfig
	reader *bufio.Reader

	mu               sync.Mutex
	writeMu          sync.Mutex
	responseHandlers map[string]chan clientResponse
	nextRequestID    int
	initialized      bool
	serverInfo       ServerInfo
	protocolVersion  string
	stopChan         chan struct{}
	closeOnce        sync.Once
}

type clientResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *ResponseError  `json:"error"`
}

// RPCError is an error response returned by the server.
type RPCError struct {
	Method string
	ResponseError
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: server error %d: %s", e.Method, e.Code, e.Message)
}

func NewStdIOClient(config StdIOClientConfig) *StdIOClient {
	if config.ClientName == "" {
		config.ClientName = defaultClientName
	}
	if config.ClientVersion == "" {
		config.ClientVersion = defaultClientVersion
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaultRequestTimeout
	}
	if config.Logger == nil {
		config.Logger = observability.NewNullLogger()
	}

	c := &StdIOClient{
		config:           config,
		reader:           bufio.NewReader(config.Reader),
		responseHandlers: make(map[string]chan clientResponse),
		nextRequestID:    1,
		stopChan:         make(chan struct{}),
	}
	go c.processIncomingMessages()
	return c
}

// Connect performs the initialize handshake and sends the initialized
// notification.
func (c *StdIOClient) Connect(ctx context.Context) error {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo: ClientInfo{
			Name:    c.config.ClientName,
			Version: c.config.ClientVersion,
		},
		Capabilities: map[string]any{},
	}

	var result InitializeResult
	if err := c.call(ctx, MethodInitialize, params, &result); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	if err := c.notify(MethodNotificationInitialized); err != nil {
		return fmt.Errorf("failed to send initialized notification: %w", err)
	}

	c.mu.Lock()
	c.initialized = true
	c.serverInfo = result.ServerInfo
	c.protocolVersion = result.ProtocolVersion
	c.mu.Unlock()

	c.config.Logger.WithFields(map[string]interface{}{
		"server":           result.ServerInfo.Name,
		"server_version":   result.ServerInfo.Version,
		"protocol_version": result.ProtocolVersion,
	}).Info("Connected to server")
	return nil
}

func (c *StdIOClient) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *StdIOClient) ServerInfo() ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

func (c *StdIOClient) ProtocolVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocolVersion
}

// Ping checks that the server is responsive.
func (c *StdIOClient) Ping(ctx context.Context) error {
	return c.call(ctx, MethodPing, nil, nil)
}

// ListTools returns the server's tool catalog.
func (c *StdIOClient) ListTools(ctx context.Context) ([]Tool, error) {
	var result ListToolsResult
	if err := c.call(ctx, MethodToolsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool. args may be nil.
func (c *StdIOClient) CallTool(ctx context.Context, name string, args interface{}) (CallToolResult, error) {
	params := struct {
		Name      string      `json:"name"`
		Arguments interface{} `json:"arguments,omitempty"`
	}{Name: name, Arguments: args}

	var result CallToolResult
	if err := c.call(ctx, MethodToolsCall, params, &result); err != nil {
		return CallToolResult{}, err
	}
	return result, nil
}

// Shutdown asks the server to stop. The server answers before it exits.
func (c *StdIOClient) Shutdown(ctx context.Context) error {
	return c.call(ctx, MethodShutdown, nil, nil)
}

// Close stops reading responses. Pending calls fail with errClientClosed.
func (c *StdIOClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
	})
	return nil
}

func (c *StdIOClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	c.mu.Lock()
	id := strconv.Itoa(c.nextRequestID)
	c.nextRequestID++
	responseChan := make(chan clientResponse, 1)
	c.responseHandlers[id] = responseChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.responseHandlers, id)
		c.mu.Unlock()
	}()

	request := Request{
		ProtocolVersion: EnvelopeVersion,
		ID:              json.RawMessage(id),
		Method:          method,
	}
	if params != nil {
		paramsBytes, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal %s params: %w", method, err)
		}
		request.Params = paramsBytes
	}

	if err := c.sendMessage(&request); err != nil {
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()

	select {
	case response := <-responseChan:
		if response.Error != nil {
			return &RPCError{Method: method, ResponseError: *response.Error}
		}
		if result == nil || len(response.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(response.Result, result); err != nil {
			return fmt.Errorf("failed to parse %s result: %w", method, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%s request timeout", method)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopChan:
		return errClientClosed
	}
}

func (c *StdIOClient) notify(method string) error {
	return c.sendMessage(&Request{ProtocolVersion: EnvelopeVersion, Method: method})
}

func (c *StdIOClient) sendMessage(request *Request) error {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	jsonData = append(jsonData, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.config.Logger.WithFields(map[string]interface{}{
		"method": request.Method,
		"id":     string(request.ID),
	}).Debug("Sending message")

	if _, err := c.config.Writer.Write(jsonData); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (c *StdIOClient) processIncomingMessages() {
	for {
		line, err := c.reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			c.dispatchResponse(trimmed)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				c.config.Logger.WithErr(err).Error("Failed to read from server")
			}
			return
		}

		select {
		case <-c.stopChan:
			return
		default:
		}
	}
}

func (c *StdIOClient) dispatchResponse(line []byte) {
	var response clientResponse
	if err := json.Unmarshal(line, &response); err != nil {
		c.config.Logger.WithErr(err).Warn("Failed to parse response")
		return
	}

	id := string(bytes.TrimSpace(response.ID))

	c.mu.Lock()
	ch, exists := c.responseHandlers[id]
	c.mu.Unlock()

	if !exists {
		c.config.Logger.WithFields(map[string]interface{}{
			"id": id,
		}).Warn("No handler found for response")
		return
	}

	select {
	case ch <- response:
	default:
		c.config.Logger.WithFields(map[string]interface{}{
			"id": id,
		}).Warn("Handler channel full")
	}
}
