// Package ghidra provides an HTTP client for a GhidraMCP bridge server.
// The bridge exposes the reverse-engineering operations of a live Ghidra
// session (function listing, decompilation, renaming, comments) as plain
// text-over-HTTP endpoints.
package ghidra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the address GhidraMCP listens on out of the box.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultTimeout bounds a single bridge request. Decompilation of a
	// large function can take a while, so this is generous.
	DefaultTimeout = 30 * time.Second

	defaultListLimit = 100
)

// ErrUnavailable indicates the bridge server could not be reached.
var ErrUnavailable = errors.New("ghidra server unavailable")

// ServerError is a non-200 response from the bridge.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("ghidra server error %d: %s", e.StatusCode, e.Body)
}

// Config holds connection settings for the bridge.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	MockMode bool
}

// Client talks to a GhidraMCP bridge. In mock mode it serves a small
// canned program instead, so the rest of the system can run without a
// live Ghidra session.
type Client struct {
	baseURL    string
	httpClient *http.Client
	mock       *mockProgram
}

// NewClient creates a bridge client from config, filling in defaults.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}

	if cfg.MockMode {
		c.mock = newMockProgram()
	}

	return c
}

// MockMode reports whether the client serves canned responses.
func (c *Client) MockMode() bool {
	return c.mock != nil
}

// ListFunctions lists function names in the program with pagination.
func (c *Client) ListFunctions(ctx context.Context, offset, limit int) ([]string, error) {
	if c.mock != nil {
		return c.mock.listFunctions(offset, limit), nil
	}
	return c.getLines(ctx, "methods", pageParams(offset, limit))
}

// DecompileFunction decompiles a function by name and returns C pseudocode.
func (c *Client) DecompileFunction(ctx context.Context, name string) (string, error) {
	if c.mock != nil {
		return c.mock.decompile(name)
	}
	return c.post(ctx, "decompile", name)
}

// DecompileAddress decompiles the function containing the given address.
func (c *Client) DecompileAddress(ctx context.Context, address string) (string, error) {
	if c.mock != nil {
		return c.mock.decompileAddress(address)
	}
	return c.get(ctx, "decompile_function", url.Values{"address": {address}})
}

// DisassembleFunction returns assembly lines (address: instruction) for
// the function at the given address.
func (c *Client) DisassembleFunction(ctx context.Context, address string) ([]string, error) {
	if c.mock != nil {
		return c.mock.disassemble(address)
	}
	return c.getLines(ctx, "disassemble_function", url.Values{"address": {address}})
}

// RenameFunction renames a function by its current name.
func (c *Client) RenameFunction(ctx context.Context, oldName, newName string) (string, error) {
	if c.mock != nil {
		return c.mock.renameFunction(oldName, newName)
	}
	return c.postForm(ctx, "renameFunction", url.Values{
		"oldName": {oldName},
		"newName": {newName},
	})
}

// RenameFunctionByAddress renames the function at the given address.
func (c *Client) RenameFunctionByAddress(ctx context.Context, address, newName string) (string, error) {
	if c.mock != nil {
		return c.mock.renameFunctionByAddress(address, newName)
	}
	return c.postForm(ctx, "rename_function_by_address", url.Values{
		"function_address": {address},
		"new_name":         {newName},
	})
}

// GetFunctionByAddress returns the name and signature of the function at
// the given address.
func (c *Client) GetFunctionByAddress(ctx context.Context, address string) (string, error) {
	if c.mock != nil {
		return c.mock.functionByAddress(address)
	}
	return c.get(ctx, "get_function_by_address", url.Values{"address": {address}})
}

// GetCurrentAddress returns the address currently selected in the Ghidra UI.
func (c *Client) GetCurrentAddress(ctx context.Context) (string, error) {
	if c.mock != nil {
		return c.mock.currentAddress(), nil
	}
	return c.get(ctx, "get_current_address", nil)
}

// GetCurrentFunction returns the function currently selected in the Ghidra UI.
func (c *Client) GetCurrentFunction(ctx context.Context) (string, error) {
	if c.mock != nil {
		return c.mock.currentFunction(), nil
	}
	return c.get(ctx, "get_current_function", nil)
}

// ListImports lists imported symbols with pagination.
func (c *Client) ListImports(ctx context.Context, offset, limit int) ([]string, error) {
	if c.mock != nil {
		return c.mock.listImports(offset, limit), nil
	}
	return c.getLines(ctx, "imports", pageParams(offset, limit))
}

// ListExports lists exported symbols with pagination.
func (c *Client) ListExports(ctx context.Context, offset, limit int) ([]string, error) {
	if c.mock != nil {
		return c.mock.listExports(offset, limit), nil
	}
	return c.getLines(ctx, "exports", pageParams(offset, limit))
}

// SearchFunctions returns functions whose name contains the query substring.
func (c *Client) SearchFunctions(ctx context.Context, query string, offset, limit int) ([]string, error) {
	if query == "" {
		return nil, errors.New("query string is required")
	}
	if c.mock != nil {
		return c.mock.searchFunctions(query, offset, limit), nil
	}
	params := pageParams(offset, limit)
	params.Set("query", query)
	return c.getLines(ctx, "searchFunctions", params)
}

// SetDecompilerComment attaches a comment to an address in the decompiler
// pseudocode view.
func (c *Client) SetDecompilerComment(ctx context.Context, address, comment string) (string, error) {
	if c.mock != nil {
		return c.mock.setComment("decompiler", address, comment)
	}
	return c.postForm(ctx, "set_decompiler_comment", url.Values{
		"address": {address},
		"comment": {comment},
	})
}

// SetDisassemblyComment attaches a comment to an address in the
// disassembly listing.
func (c *Client) SetDisassemblyComment(ctx context.Context, address, comment string) (string, error) {
	if c.mock != nil {
		return c.mock.setComment("disassembly", address, comment)
	}
	return c.postForm(ctx, "set_disassembly_comment", url.Values{
		"address": {address},
		"comment": {comment},
	})
}

// Health checks that the bridge is reachable and responding.
func (c *Client) Health(ctx context.Context) error {
	if c.mock != nil {
		return nil
	}
	_, err := c.getLines(ctx, "methods", pageParams(0, 1))
	return err
}

// get performs a GET request and returns the trimmed response body.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (string, error) {
	reqURL := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}

	return c.do(req)
}

// getLines performs a GET request and splits the response into lines,
// dropping blanks. List endpoints return one item per line.
func (c *Client) getLines(ctx context.Context, endpoint string, params url.Values) ([]string, error) {
	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	return splitLines(body), nil
}

// post sends a raw text body. The decompile endpoint takes the bare
// function name as its body.
func (c *Client) post(ctx context.Context, endpoint, body string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, strings.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	return c.do(req)
}

// postForm sends form-encoded fields, the encoding mutation endpoints expect.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &ServerError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return strings.TrimSpace(string(body)), nil
}

func pageParams(offset, limit int) url.Values {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return url.Values{
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(limit)},
	}
}

func splitLines(body string) []string {
	if body == "" {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
