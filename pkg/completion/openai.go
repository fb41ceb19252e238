package completion

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"roundtable/pkg/config"
	"roundtable/pkg/logger"
)

// OpenAI is a Service backed by an OpenAI-compatible chat completion API.
// Outbound calls go through a token-bucket limiter so a burst of
// discussions cannot stampede the upstream service.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	limiter     *rate.Limiter
}

// NewOpenAI builds the adapter from config. The API key is read from the
// configured environment variable; base URL override supports
// OpenAI-compatible gateways.
func NewOpenAI(cfg config.CompletionConfig) (*OpenAI, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, errors.Errorf("completion api key env %s is empty", cfg.APIKeyEnv)
	}
	cc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client:      openai.NewClientWithConfig(cc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}, nil
}

func (o *OpenAI) buildRequest(req Request, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Name: m.Name, Content: m.Content})
	}
	// request-level knobs win; zero values fall back to the configured
	// defaults so callers need not repeat them
	temp := req.Temperature
	if temp == 0 {
		temp = o.temperature
	}
	maxTok := req.MaxTokens
	if maxTok == 0 {
		maxTok = o.maxTokens
	}
	return openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    msgs,
		Temperature: temp,
		MaxTokens:   maxTok,
		Stream:      stream,
	}
}

// Complete performs a non-streaming call and returns the text blob.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "completion throttle")
	}
	resp, err := o.client.CreateChatCompletion(ctx, o.buildRequest(req, false))
	if err != nil {
		logger.Warn("completion_failed", "model", o.model, "error", err)
		return "", errors.Wrap(err, "completion call")
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream opens a streaming call; deltas arrive until io.EOF.
func (o *OpenAI) Stream(ctx context.Context, req Request) (TokenStream, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "completion throttle")
	}
	s, err := o.client.CreateChatCompletionStream(ctx, o.buildRequest(req, true))
	if err != nil {
		logger.Warn("completion_stream_failed", "model", o.model, "error", err)
		return nil, errors.Wrap(err, "completion stream")
	}
	return &openaiStream{s: s}, nil
}

type openaiStream struct {
	s *openai.ChatCompletionStream
}

func (os *openaiStream) Recv() (string, error) {
	for {
		resp, err := os.s.Recv()
		if err == io.EOF {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		return delta, nil
	}
}

func (os *openaiStream) Close() { _ = os.s.Close() }
