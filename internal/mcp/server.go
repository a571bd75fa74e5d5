package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mcp-mailbridge/internal/email"
	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/internal/tools"
)

// JSON-RPC error codes. Codes above -32000 are application errors.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeAuth           = -32001
	CodeConnectivity   = -32002
	CodeNotConfigured  = -32003
	CodeNotFound       = -32004
	CodeDelivery       = -32005
)

// ServerName is reported to clients on initialize
const ServerName = "mcp-mailbridge"

// Server represents the MCP server
type Server struct {
	logger  *logrus.Logger
	tools   *tools.Registry
	version string
}

// NewServer creates a new MCP server instance
func NewServer(emailManager *email.Manager, version string, logger *logrus.Logger) *Server {
	return &Server{
		logger:  logger,
		tools:   tools.NewRegistry(emailManager, logger),
		version: version,
	}
}

// Run starts the MCP server with stdio transport
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting MCP server with stdio transport")
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC request per message from r and writes responses to
// w until r is exhausted or ctx is cancelled
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	decoder := json.NewDecoder(r)
	encoder := json.NewEncoder(w)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			var req map[string]interface{}
			if err := decoder.Decode(&req); err != nil {
				if err == io.EOF {
					return nil
				}
				s.logger.WithError(err).Error("Failed to decode request")
				// the stream position is lost after a syntax error
				if _, ok := err.(*json.SyntaxError); ok {
					return fmt.Errorf("malformed request stream: %w", err)
				}
				continue
			}

			resp := s.handleRequest(ctx, req)
			if resp == nil {
				continue
			}
			if err := encoder.Encode(resp); err != nil {
				s.logger.WithError(err).Error("Failed to encode response")
				continue
			}
		}
	}
}

// handleRequest processes an MCP request; notifications get no response
func (s *Server) handleRequest(ctx context.Context, req map[string]interface{}) map[string]interface{} {
	method, _ := req["method"].(string)
	id, hasID := req["id"]

	if !hasID {
		s.logger.WithField("method", method).Debug("Notification received")
		return nil
	}

	switch method {
	case "initialize":
		return result(id, map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    ServerName,
				"version": s.version,
			},
		})

	case "ping":
		return result(id, map[string]interface{}{})

	case "tools/list":
		return result(id, map[string]interface{}{
			"tools": s.tools.GetToolDefinitions(),
		})

	case "tools/call":
		return s.callTool(ctx, id, req)
	}

	return failure(id, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", method))
}

func (s *Server) callTool(ctx context.Context, id interface{}, req map[string]interface{}) map[string]interface{} {
	params, _ := req["params"].(map[string]interface{})
	toolName, _ := params["name"].(string)
	arguments, _ := params["arguments"].(map[string]interface{})
	if arguments == nil {
		arguments = map[string]interface{}{}
	}

	tool, exists := s.tools.GetTool(toolName)
	if !exists {
		return failure(id, CodeMethodNotFound, fmt.Sprintf("Tool not found: %s", toolName))
	}

	started := time.Now()
	out, err := tool.Execute(ctx, arguments)
	log := s.logger.WithFields(logrus.Fields{
		"tool":     toolName,
		"account":  arguments["account_name"],
		"duration": time.Since(started).String(),
	})
	if err != nil {
		code := errorCode(err)
		if code == CodeInternal {
			log.WithError(err).Error("Tool failed")
		} else {
			log.WithError(err).Warn("Tool failed")
		}
		return failure(id, code, err.Error())
	}
	log.Debug("Tool executed")

	resultJSON, err := json.Marshal(out)
	if err != nil {
		log.WithError(err).Error("Failed to encode tool result")
		return failure(id, CodeInternal, "failed to encode result")
	}

	return result(id, map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": string(resultJSON),
			},
		},
	})
}

// errorCode maps a tool error to its JSON-RPC code
func errorCode(err error) int {
	switch {
	case apperrors.IsInvalidInput(err):
		return CodeInvalidParams
	case apperrors.IsAuth(err):
		return CodeAuth
	case apperrors.IsDelivery(err):
		return CodeDelivery
	case apperrors.IsConnectivity(err):
		return CodeConnectivity
	case apperrors.IsNotConfigured(err):
		return CodeNotConfigured
	case apperrors.IsNotFound(err):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

func result(id interface{}, body map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  body,
	}
}

func failure(id interface{}, code int, message string) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	}
}
