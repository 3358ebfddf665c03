package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Provider identifies a model backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderClaude Provider = "claude"
	ProviderOllama Provider = "ollama"
)

// Options configures a connector.
type Options struct {
	Provider          Provider
	APIKey            string
	BaseURL           string
	Model             string
	MaxTokens         int
	RequestsPerSecond float64
	Backoff           BackoffConfig
}

// Connector is the langchaingo-backed Transport. It streams model output,
// accumulates the chunks, and fires the completion callback exactly once
// per send.
type Connector struct {
	llm     llms.Model
	limiter *rate.Limiter
	backoff BackoffConfig
	log     zerolog.Logger
}

// NewConnector creates a connector for the configured provider.
func NewConnector(ctx context.Context, opts Options, log zerolog.Logger) (*Connector, error) {
	var (
		model llms.Model
		err   error
	)
	switch opts.Provider {
	case ProviderOpenAI:
		oopts := []openai.Option{openai.WithToken(opts.APIKey)}
		if opts.Model != "" {
			oopts = append(oopts, openai.WithModel(opts.Model))
		}
		if opts.BaseURL != "" {
			oopts = append(oopts, openai.WithBaseURL(opts.BaseURL))
		}
		model, err = openai.New(oopts...)
	case ProviderGemini:
		gopts := []googleai.Option{googleai.WithAPIKey(opts.APIKey)}
		if opts.Model != "" {
			gopts = append(gopts, googleai.WithDefaultModel(opts.Model))
		}
		if opts.MaxTokens > 0 {
			gopts = append(gopts, googleai.WithDefaultMaxTokens(opts.MaxTokens))
		}
		model, err = googleai.New(ctx, gopts...)
	case ProviderClaude:
		aopts := []anthropic.Option{anthropic.WithToken(opts.APIKey)}
		if opts.Model != "" {
			aopts = append(aopts, anthropic.WithModel(opts.Model))
		}
		model, err = anthropic.New(aopts...)
	case ProviderOllama:
		lopts := []ollama.Option{}
		if opts.Model != "" {
			lopts = append(lopts, ollama.WithModel(opts.Model))
		}
		if opts.BaseURL != "" {
			lopts = append(lopts, ollama.WithServerURL(opts.BaseURL))
		}
		model, err = ollama.New(lopts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q", opts.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize %s provider: %w", opts.Provider, err)
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	backoff := opts.Backoff
	if backoff.MaxRetries == 0 && backoff.BaseDelay == 0 {
		backoff = DefaultBackoff()
	}
	return &Connector{
		llm:     model,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		backoff: backoff,
		log:     log.With().Str("component", "transport").Str("provider", string(opts.Provider)).Logger(),
	}, nil
}

// Send streams the request to the model on its own goroutine and invokes
// onComplete once with the accumulated text or a transport error.
func (c *Connector) Send(ctx context.Context, req Request, onComplete CompletionFunc) {
	go func() {
		completion := Completion{Metadata: req.Metadata}

		if err := c.limiter.Wait(ctx); err != nil {
			completion.Err = fmt.Errorf("rate limiter: %w", err)
			onComplete(completion)
			return
		}

		var text, finish string
		op := func() error {
			var chunks strings.Builder
			resp, err := c.llm.GenerateContent(ctx,
				[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, req.Content)},
				llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
					chunks.Write(chunk)
					return nil
				}),
			)
			if err != nil {
				// Partial text still surfaces with the error.
				text = chunks.String()
				return err
			}
			if len(resp.Choices) == 0 {
				text = chunks.String()
				return fmt.Errorf("model returned no choices")
			}
			text = resp.Choices[0].Content
			finish = resp.Choices[0].StopReason
			return nil
		}

		err := RetryWithBackoff(ctx, c.backoff, op, c.log)
		completion.Text = text
		completion.FinishReason = finish
		completion.Err = err
		if err != nil {
			c.log.Error().Err(err).Str("request", req.ID).Msg("model call failed")
		} else {
			c.log.Debug().Str("request", req.ID).Int("chars", len(text)).
				Str("finish_reason", finish).Msg("model call completed")
		}
		onComplete(completion)
	}()
}
