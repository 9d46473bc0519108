package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/shaharia-lab/omnifocus-gtd/observability"
	"go.opentelemetry.io/otel/attribute"
)

// StdIOServer serves one client over newline-delimited JSON. Each line is
// fully handled, including any tool execution, before the next is read.
type StdIOServer struct {
	*BaseServer
	in  io.Reader
	out io.Writer
}

// NewStdIOServer creates a new StdIOServer. out receives protocol messages
// only; diagnostics go to the BaseServer's logger.
func NewStdIOServer(baseServer *BaseServer, in io.Reader, out io.Writer) *StdIOServer {
	return &StdIOServer{
		BaseServer: baseServer,
		in:         in,
		out:        out,
	}
}

type flusher interface {
	Flush() error
}

// sendResponse writes a single response line and flushes it.
func (s *StdIOServer) sendResponse(response Response) {
	jsonResponse, err := json.Marshal(response)
	if err != nil {
		s.logger.WithErr(err).Error("Failed to marshal response")
		jsonResponse, err = json.Marshal(Response{
			Dialect: response.Dialect,
			ID:      response.ID,
			Error: &ResponseError{
				Code:    ErrorCodeInternal,
				Message: "Internal error: failed to marshal response",
			},
		})
		if err != nil {
			return
		}
	}

	jsonResponse = append(jsonResponse, '\n')
	if _, err := s.out.Write(jsonResponse); err != nil {
		s.logger.WithErr(err).Error("Failed to write response")
		return
	}

	if f, ok := s.out.(flusher); ok {
		if err := f.Flush(); err != nil {
			s.logger.WithErr(err).Error("Failed to flush response")
		}
	}
}

// Run reads requests until end of input, a shutdown request or ctx is done.
// End of input and shutdown both return nil.
func (s *StdIOServer) Run(ctx context.Context) error {
	ctx, span := observability.StartSpan(ctx, "StdIOServer.Run")

	var err error
	defer func() { observability.EndSpan(span, err) }()

	s.logger.Info("Server ready, waiting for requests")

	done := make(chan error, 1)
	go func() {
		done <- s.serve(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Debug("Context cancelled, StdIOServer shutting down")
		err = ctx.Err()
		return err
	case err = <-done:
		s.logger.WithErr(err).Debug("StdIOServer shutting down")
		return err
	}
}

func (s *StdIOServer) serve(ctx context.Context) error {
	reader := bufio.NewReader(s.in)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line, readErr := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			s.handleLine(ctx, line)
			if s.shutdownRequested {
				return nil
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				s.logger.Info("End of input")
				return nil
			}
			return fmt.Errorf("read request: %w", readErr)
		}
	}
}

// handleLine parses, validates and answers one input line. Lines that cannot
// be parsed or carry the wrong envelope version are logged and dropped.
func (s *StdIOServer) handleLine(ctx context.Context, line []byte) {
	line = bytes.TrimSpace(line)

	var request Request
	if err := json.Unmarshal(line, &request); err != nil {
		s.logger.WithFields(map[string]interface{}{
			"line": string(line),
		}).WithErr(err).Error("Failed to parse message")
		return
	}

	if version := request.Version(); version != EnvelopeVersion {
		s.logger.WithFields(map[string]interface{}{
			"version": version,
			"method":  request.Method,
		}).Error("Invalid envelope version")
		return
	}

	if isNotification(&request) {
		s.handleNotification(ctx, &request)
		return
	}

	result, err := s.dispatch(ctx, &request)
	response := Response{Dialect: request.Dialect(), ID: request.ID}
	if err != nil {
		mcpErr := AsError(err)
		s.logger.WithFields(map[string]interface{}{
			"method": request.Method,
			"id":     string(request.ID),
			"kind":   mcpErr.Kind.String(),
		}).WithErr(err).Error("Request failed")
		response.Error = mcpErr.toResponseError()
	} else {
		response.Result = result
	}

	s.sendResponse(response)
}

// dispatch runs one request and converts a panic into an internal error so a
// single bad request never takes the process down.
func (s *StdIOServer) dispatch(ctx context.Context, request *Request) (result interface{}, err error) {
	ctx, span := observability.StartSpan(ctx, "StdIOServer.dispatch")
	span.SetAttributes(
		attribute.String("method", request.Method),
		attribute.String("id", string(request.ID)),
	)
	defer func() { observability.EndSpan(span, err) }()

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(map[string]interface{}{
				"method": request.Method,
				"panic":  fmt.Sprint(r),
				"stack":  string(debug.Stack()),
			}).Error("Recovered from panic while handling request")

			result = nil
			err = Errorf(KindInternal, "Internal error: %v", r)
		}
	}()

	return s.handleRequest(ctx, request)
}
