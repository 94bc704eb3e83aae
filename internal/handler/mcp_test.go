package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"coffee-checkout/internal/adapter"
	"coffee-checkout/internal/checkout"
)

// jsonrpcRequest is a JSON-RPC 2.0 request structure for testing.
type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response structure for testing.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams represents the params for tools/call method.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// callToolResult is the expected result structure from a tool call.
type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	IsError bool `json:"isError,omitempty"`
}

// text returns the first text content block.
func (r callToolResult) text() string {
	for _, c := range r.Content {
		if c.Type == "text" {
			return c.Text
		}
	}
	return ""
}

func TestMCPServerCreation(t *testing.T) {
	h, _ := testHandler(&adapter.Mock{})
	server := h.NewMCPServer()

	if server == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPHandlerCreation(t *testing.T) {
	h, _ := testHandler(&adapter.Mock{})
	handler := h.NewMCPHandler()

	if handler == nil {
		t.Fatal("NewMCPHandler returned nil")
	}
}

func TestMCPInitialize(t *testing.T) {
	_, mux := testHandler(&adapter.Mock{})

	// MCP initialization request
	req := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"clientInfo": map[string]string{
				"name":    "test-client",
				"version": "1.0.0",
			},
			"capabilities": map[string]interface{}{},
		},
	}

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	// Parse SSE response format
	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, string(jsonData))
	}

	if resp.Error != nil {
		t.Errorf("Unexpected error: %+v", resp.Error)
	}

	if resp.Result == nil {
		t.Error("Expected result in response")
	}
}

func TestMCPToolsList(t *testing.T) {
	_, mux := testHandler(&adapter.Mock{})
	sessionID := initMCPSession(t, mux)

	resp := mcpCall(t, mux, sessionID, "tools/list", nil)
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}

	// Parse tools list result
	var toolsResult struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}

	if err := json.Unmarshal(resp.Result, &toolsResult); err != nil {
		t.Fatalf("Failed to parse tools result: %v", err)
	}

	expectedTools := map[string]bool{
		"start_checkout":     false,
		"get_checkout":       false,
		"submit_address":     false,
		"quote_shipping":     false,
		"select_shipping":    false,
		"apply_coupon":       false,
		"remove_coupon":      false,
		"select_payment":     false,
		"advance_step":       false,
		"back_step":          false,
		"finalize_checkout":  false,
		"abandon_checkout":   false,
		"lookup_postal_code": false,
	}

	for _, tool := range toolsResult.Tools {
		if _, ok := expectedTools[tool.Name]; ok {
			expectedTools[tool.Name] = true
		}
	}

	for name, found := range expectedTools {
		if !found {
			t.Errorf("Expected tool %q not found in tools list", name)
		}
	}
}

func TestMCPStartAndGetCheckout(t *testing.T) {
	_, mux := testHandler(&newFlowMock().Mock)
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "start_checkout", map[string]interface{}{"user_id": "user-1"})
	if result.IsError {
		t.Fatalf("start_checkout failed: %s", result.text())
	}

	var started sessionView
	if err := json.Unmarshal([]byte(result.text()), &started); err != nil {
		t.Fatalf("Failed to parse session from result: %v", err)
	}
	if started.ID == "" || started.Step != checkout.StepCart {
		t.Fatalf("session = %+v, want new wizard on cart", started)
	}

	result = callTool(t, mux, sessionID, "get_checkout", map[string]interface{}{"id": started.ID})
	if result.IsError {
		t.Fatalf("get_checkout failed: %s", result.text())
	}
	var got sessionView
	if err := json.Unmarshal([]byte(result.text()), &got); err != nil {
		t.Fatalf("Failed to parse session from result: %v", err)
	}
	if got.ID != started.ID {
		t.Errorf("ID = %s, want %s", got.ID, started.ID)
	}
	if got.Totals.Subtotal != 8470 {
		t.Errorf("Subtotal = %d, want 8470", got.Totals.Subtotal)
	}
}

func TestMCPGetCheckoutNotFound(t *testing.T) {
	_, mux := testHandler(&newFlowMock().Mock)
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "get_checkout", map[string]interface{}{"id": "nonexistent"})

	// Tool errors are returned in the result, not as JSON-RPC errors
	if !result.IsError {
		t.Fatal("expected isError")
	}
	if !strings.Contains(result.text(), "NOT_FOUND") {
		t.Errorf("text = %q, want NOT_FOUND", result.text())
	}
}

func TestMCPWizardSteps(t *testing.T) {
	_, mux := testHandler(&newFlowMock().Mock)
	sessionID := initMCPSession(t, mux)
	id := startSession(t, mux)

	steps := []struct {
		tool string
		args map[string]interface{}
	}{
		{"advance_step", map[string]interface{}{"id": id}},
		{"submit_address", map[string]interface{}{
			"id": id, "name": "Maria Silva", "email": "maria@example.com", "phone": "11987654321",
			"tax_id": "52998224725", "postal_code": "01310-100", "number": "1000", "autofill": true,
		}},
		{"advance_step", map[string]interface{}{"id": id}},
		{"quote_shipping", map[string]interface{}{"id": id}},
		{"select_shipping", map[string]interface{}{"id": id, "option_id": "economy"}},
		{"advance_step", map[string]interface{}{"id": id}},
		{"select_payment", map[string]interface{}{
			"id": id, "method": "card",
			"card": map[string]interface{}{"pan": "4111 1111 1111 1111", "holder_name": "MARIA SILVA", "expiry": "12/30", "cvv": "123"},
		}},
		{"back_step", map[string]interface{}{"id": id}},
	}

	var last sessionView
	for _, s := range steps {
		result := callTool(t, mux, sessionID, s.tool, s.args)
		if result.IsError {
			t.Fatalf("%s failed: %s", s.tool, result.text())
		}
		if err := json.Unmarshal([]byte(result.text()), &last); err != nil {
			t.Fatalf("%s: parse session: %v", s.tool, err)
		}
	}

	if last.Step != checkout.StepShippingChoice {
		t.Errorf("Step = %s, want shipping_choice", last.Step)
	}
	if last.Totals.FinalTotal != 8470+1590 {
		t.Errorf("FinalTotal = %d, want %d", last.Totals.FinalTotal, 8470+1590)
	}
	if last.PaymentSummary != "credit card **** 1111" {
		t.Errorf("PaymentSummary = %q", last.PaymentSummary)
	}
}

func TestMCPFinalizeReplay(t *testing.T) {
	m := newFlowMock()
	_, mux := testHandler(&m.Mock)
	sessionID := initMCPSession(t, mux)
	id := walkToSummary(t, mux)

	args := map[string]interface{}{
		"meta": map[string]interface{}{"idempotency-key": "sess-user-1"},
		"id":   id,
	}

	for i, wantReplayed := range []bool{false, true} {
		result := callTool(t, mux, sessionID, "finalize_checkout", args)
		if result.IsError {
			t.Fatalf("call %d: finalize_checkout failed: %s", i, result.text())
		}
		var resp finalizeResponse
		if err := json.Unmarshal([]byte(result.text()), &resp); err != nil {
			t.Fatalf("call %d: parse result: %v", i, err)
		}
		if resp.Order == nil || resp.Order.ID != "order-1" {
			t.Fatalf("call %d: Order = %+v", i, resp.Order)
		}
		if resp.Replayed != wantReplayed {
			t.Errorf("call %d: Replayed = %v, want %v", i, resp.Replayed, wantReplayed)
		}
	}

	if got := m.charges.Load(); got != 1 {
		t.Errorf("charges = %d, want 1", got)
	}
}

func TestMCPFinalizeKeyMismatch(t *testing.T) {
	m := newFlowMock()
	_, mux := testHandler(&m.Mock)
	sessionID := initMCPSession(t, mux)
	id := walkToSummary(t, mux)

	result := callTool(t, mux, sessionID, "finalize_checkout", map[string]interface{}{
		"meta": map[string]interface{}{"idempotency-key": "someone-else"},
		"id":   id,
	})
	if !result.IsError {
		t.Fatal("expected isError")
	}
	if !strings.Contains(result.text(), "idempotency_key") {
		t.Errorf("text = %q, want idempotency_key field", result.text())
	}
	if got := m.charges.Load(); got != 0 {
		t.Errorf("charges = %d, want 0", got)
	}
}

func TestMCPAbandonCheckout(t *testing.T) {
	h, mux := testHandler(&newFlowMock().Mock)
	sessionID := initMCPSession(t, mux)
	id := startSession(t, mux)

	result := callTool(t, mux, sessionID, "abandon_checkout", map[string]interface{}{"id": id})
	if result.IsError {
		t.Fatalf("abandon_checkout failed: %s", result.text())
	}
	var v sessionView
	json.Unmarshal([]byte(result.text()), &v)
	if !v.Ended {
		t.Error("expected ended session")
	}
	if h.registry.Len() != 0 {
		t.Errorf("registry.Len() = %d, want 0", h.registry.Len())
	}
}

func TestMCPSelectPaymentUnknownMethod(t *testing.T) {
	_, mux := testHandler(&newFlowMock().Mock)
	sessionID := initMCPSession(t, mux)
	id := startSession(t, mux)

	result := callTool(t, mux, sessionID, "select_payment", map[string]interface{}{"id": id, "method": "cheque"})
	if !result.IsError {
		t.Fatal("expected isError")
	}
	if !strings.Contains(result.text(), "VALIDATION_ERROR") {
		t.Errorf("text = %q, want VALIDATION_ERROR", result.text())
	}
}

func TestMCPMissingRequiredField(t *testing.T) {
	_, mux := testHandler(&adapter.Mock{})
	sessionID := initMCPSession(t, mux)

	// get_checkout without the required 'id'
	args, _ := json.Marshal(map[string]interface{}{})
	resp := mcpCall(t, mux, sessionID, "tools/call", toolCallParams{Name: "get_checkout", Arguments: args})

	if resp.Error == nil {
		t.Errorf("expected invalid params error, got result %s", string(resp.Result))
	}
}

// setMCPHeaders sets the required headers for MCP Streamable HTTP requests.
func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	// MCP Streamable HTTP requires Accept header with both json and event-stream
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts JSON data from SSE formatted response.
// SSE format: "event: message\ndata: {json}\n\n"
func parseSSEResponse(body string) ([]byte, error) {
	lines := strings.Split(body, "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: ")), nil
		}
	}
	// If no SSE format found, assume plain JSON
	return []byte(body), nil
}

// initMCPSession initializes an MCP session and returns the session ID.
func initMCPSession(t *testing.T, mux *http.ServeMux) string {
	t.Helper()

	initReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]interface{}{},
		},
	}

	body, _ := json.Marshal(initReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Failed to initialize MCP session: %s", w.Body.String())
	}

	return w.Header().Get("Mcp-Session-Id")
}

// mcpCall sends one JSON-RPC request and decodes the response.
func mcpCall(t *testing.T, mux *http.ServeMux, sessionID, method string, params interface{}) jsonrpcResponse {
	t.Helper()

	body, _ := json.Marshal(jsonrpcRequest{JSONRPC: "2.0", ID: 2, Method: method, Params: params})
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	// MCP returns 200 OK even for tool errors, error is in the result
	if w.Code != http.StatusOK {
		t.Fatalf("%s: Status = %d, want %d\nBody: %s", method, w.Code, http.StatusOK, w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, string(jsonData))
	}
	return resp
}

// callTool invokes a tool and returns its result.
func callTool(t *testing.T, mux *http.ServeMux, sessionID, name string, args map[string]interface{}) callToolResult {
	t.Helper()

	raw, _ := json.Marshal(args)
	resp := mcpCall(t, mux, sessionID, "tools/call", toolCallParams{Name: name, Arguments: raw})
	if resp.Error != nil {
		t.Fatalf("%s: unexpected JSON-RPC error: %+v", name, resp.Error)
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	return result
}
