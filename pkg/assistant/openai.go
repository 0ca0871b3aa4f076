package assistant

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIConfig configures the direct OpenAI transport.
type OpenAIConfig struct {
	APIKey       string
	Organization string
	BaseURL      string
	Timeout      time.Duration
}

// OpenAITransport talks to the OpenAI Assistants API through the official SDK.
type OpenAITransport struct {
	client openai.Client
}

// NewOpenAITransport builds a transport from cfg. SDK-level retries are
// disabled; the Client applies its own retry policy.
func NewOpenAITransport(cfg OpenAIConfig) (*OpenAITransport, error) {
	if cfg.APIKey == "" {
		return nil, NewError(KindConfig, http.StatusInternalServerError, "openai api key is not configured")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Organization != "" {
		opts = append(opts, option.WithOrganization(cfg.Organization))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAITransport{client: openai.NewClient(opts...)}, nil
}

func (t *OpenAITransport) CreateThread(ctx context.Context) (string, error) {
	thread, err := t.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", fromOpenAIError(err)
	}
	return thread.ID, nil
}

func (t *OpenAITransport) CreateMessage(ctx context.Context, threadID, content string) (*Message, error) {
	msg, err := t.client.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(content),
		},
	})
	if err != nil {
		return nil, fromOpenAIError(err)
	}
	out := fromOpenAIMessage(*msg)
	return &out, nil
}

func (t *OpenAITransport) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	run, err := t.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		return nil, fromOpenAIError(err)
	}
	return fromOpenAIRun(run), nil
}

func (t *OpenAITransport) RetrieveRun(ctx context.Context, threadID, runID string) (*Run, error) {
	run, err := t.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return nil, fromOpenAIError(err)
	}
	return fromOpenAIRun(run), nil
}

func (t *OpenAITransport) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	page, err := t.client.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderDesc,
	})
	if err != nil {
		return nil, fromOpenAIError(err)
	}
	out := make([]Message, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, fromOpenAIMessage(m))
	}
	return out, nil
}

func fromOpenAIRun(r *openai.Run) *Run {
	run := &Run{
		ID:       r.ID,
		ThreadID: r.ThreadID,
		Status:   RunStatus(r.Status),
	}
	if r.LastError.Message != "" || r.LastError.Code != "" {
		run.LastError = &RunError{
			Code:    string(r.LastError.Code),
			Message: r.LastError.Message,
		}
	}
	return run
}

func fromOpenAIMessage(m openai.Message) Message {
	msg := Message{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		Role:      Role(m.Role),
		CreatedAt: time.Unix(m.CreatedAt, 0),
	}
	for _, part := range m.Content {
		switch ContentType(part.Type) {
		case ContentText:
			msg.Content = append(msg.Content, ContentPart{Type: ContentText, Text: part.Text.Value})
		case ContentImageFile:
			msg.Content = append(msg.Content, ContentPart{Type: ContentImageFile, FileID: part.ImageFile.FileID})
		case ContentImageURL:
			msg.Content = append(msg.Content, ContentPart{Type: ContentImageURL, URL: part.ImageURL.URL})
		default:
			msg.Content = append(msg.Content, ContentPart{Type: ContentType(part.Type)})
		}
	}
	return msg
}

func fromOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = "openai request failed"
		}
		return &Error{
			Kind:    KindService,
			Status:  apiErr.StatusCode,
			Code:    apiErr.Code,
			Message: msg,
			Err:     err,
		}
	}
	return err
}
