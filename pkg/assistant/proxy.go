package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ProxyConfig configures a transport that calls an internal relay instead of
// the assistant service directly.
type ProxyConfig struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token   string
	Timeout time.Duration
	Client  *http.Client
}

// ProxyTransport speaks JSON to a relay exposing the thread/run endpoints
// (see pkg/serve relay routes).
type ProxyTransport struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewProxyTransport creates a relay transport.
func NewProxyTransport(cfg ProxyConfig) (*ProxyTransport, error) {
	if cfg.BaseURL == "" {
		return nil, NewError(KindConfig, http.StatusInternalServerError, "assistant proxy url is not configured")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &ProxyTransport{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  client,
	}, nil
}

// ThreadResponse is the relay's reply to thread creation.
type ThreadResponse struct {
	ID string `json:"id"`
}

// CreateMessageRequest is the relay request body for appending a message.
type CreateMessageRequest struct {
	Content string `json:"content"`
}

// CreateRunRequest is the relay request body for starting a run.
type CreateRunRequest struct {
	AssistantID string `json:"assistant_id,omitempty"`
}

// MessageList is the relay's reply to listing messages, newest first.
type MessageList struct {
	Data []Message `json:"data"`
}

// ErrorBody is the relay's error payload.
type ErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

// ResolvesAssistant reports that the relay fills in its configured assistant
// when a run is created without an id.
func (t *ProxyTransport) ResolvesAssistant() bool { return true }

func (t *ProxyTransport) CreateThread(ctx context.Context) (string, error) {
	var resp ThreadResponse
	if err := t.do(ctx, http.MethodPost, "/threads", struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (t *ProxyTransport) CreateMessage(ctx context.Context, threadID, content string) (*Message, error) {
	var msg Message
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	if err := t.do(ctx, http.MethodPost, path, CreateMessageRequest{Content: content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (t *ProxyTransport) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	var run Run
	path := "/threads/" + url.PathEscape(threadID) + "/runs"
	if err := t.do(ctx, http.MethodPost, path, CreateRunRequest{AssistantID: assistantID}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (t *ProxyTransport) RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var run Run
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	if err := t.do(ctx, http.MethodGet, path, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (t *ProxyTransport) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	var list MessageList
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	if err := t.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

func (t *ProxyTransport) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var eb ErrorBody
		msg := strings.TrimSpace(string(respBody))
		code := ""
		if json.Unmarshal(respBody, &eb) == nil && eb.Error.Message != "" {
			msg = eb.Error.Message
			code = eb.Error.Code
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &Error{
			Kind:    KindService,
			Status:  resp.StatusCode,
			Code:    code,
			Message: fmt.Sprintf("assistant relay error: %s", msg),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode relay response: %w", err)
	}
	return nil
}
