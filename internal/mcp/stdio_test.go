package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/suite"
)

// StdioSuite drives the server through its JSON-RPC stdio transport
type StdioSuite struct {
	suite.Suite
	cancel   context.CancelFunc
	stdin    *io.PipeWriter
	stdout   *bufio.Scanner
	serveErr chan error
	nextID   int
}

func TestStdioSuite(t *testing.T) {
	suite.Run(t, new(StdioSuite))
}

// SetupTest starts a fresh server for each test
func (s *StdioSuite) SetupTest() {
	srv := newTestServer(s.T(), true)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	s.cancel = cancel
	s.stdin = inW
	s.stdout = bufio.NewScanner(outR)
	s.stdout.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	s.serveErr = make(chan error, 1)
	s.nextID = 0

	go func() {
		s.serveErr <- srv.Serve(ctx, inR, outW, io.Discard)
		_ = outW.Close()
	}()

	resp := s.call("initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]any{"name": "suite", "version": "1.0.0"},
	})
	s.Require().Nil(resp["error"])
	result := resp["result"].(map[string]any)
	s.Equal(ServerName, result["serverInfo"].(map[string]any)["name"])
}

// TearDownTest stops the server; a canceled context is a clean stop
func (s *StdioSuite) TearDownTest() {
	s.cancel()
	_ = s.stdin.Close()
	s.NoError(<-s.serveErr)
}

// call sends one request and waits for its response
func (s *StdioSuite) call(method string, params map[string]any) map[string]any {
	s.nextID++
	req, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      s.nextID,
		"method":  method,
		"params":  params,
	})
	s.Require().NoError(err)
	_, err = s.stdin.Write(append(req, '\n'))
	s.Require().NoError(err)

	s.Require().True(s.stdout.Scan(), "no response to %s", method)
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(s.stdout.Bytes(), &resp))
	s.Equal(float64(s.nextID), resp["id"])
	return resp
}

// toolText calls a tool and decodes its JSON text content
func (s *StdioSuite) toolText(name string, args map[string]any) map[string]any {
	resp := s.call("tools/call", map[string]any{"name": name, "arguments": args})
	s.Require().Nil(resp["error"], "tool %s", name)
	content := resp["result"].(map[string]any)["content"].([]any)
	s.Require().Len(content, 1)
	var out map[string]any
	s.Require().NoError(json.Unmarshal([]byte(content[0].(map[string]any)["text"].(string)), &out))
	return out
}

func (s *StdioSuite) TestToolsList() {
	resp := s.call("tools/list", map[string]any{})
	tools := resp["result"].(map[string]any)["tools"].([]any)

	var names []string
	for _, t := range tools {
		names = append(names, t.(map[string]any)["name"].(string))
	}
	s.ElementsMatch([]string{
		"process_document_text", "process_document_file", "classify_document_type",
		"get_metrics", "health_check", "list_document_types",
		"get_document_result", "export_results",
	}, names)
}

func (s *StdioSuite) TestProcessThenFetch() {
	out := s.toolText("process_document_text", map[string]any{"text": invoiceText})
	s.Equal("success", out["status"])
	s.Equal("invoice", out["document_type"])

	id, ok := out["document_id"].(string)
	s.Require().True(ok)

	stored := s.toolText("get_document_result", map[string]any{"document_id": id})
	s.Equal(id, stored["document_id"])
	s.Equal("INV-1", stored["data"].(map[string]any)["invoice_id"])
}

func (s *StdioSuite) TestInvalidParamsIsAnError() {
	resp := s.call("tools/call", map[string]any{
		"name":      "process_document_text",
		"arguments": map[string]any{},
	})
	s.NotNil(resp["error"])
}

func (s *StdioSuite) TestReadResource() {
	resp := s.call("resources/read", map[string]any{"uri": "schema://invoice"})
	s.Require().Nil(resp["error"])
	contents := resp["result"].(map[string]any)["contents"].([]any)
	s.Require().Len(contents, 1)
	s.Contains(contents[0].(map[string]any)["text"], "invoice_id")
}
