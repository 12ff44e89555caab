// Package llm wraps the translation endpoint in a single eino ChatModel
// call, with no tool loop: translation needs one structured completion per
// batch, not a multi-step agent.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"

	"pdf-structural-translator/internal/types"
)

// FinishReason enumerates the recognized endpoint finish reasons.
type FinishReason string

const (
	FinishComplete         FinishReason = "complete"
	FinishLengthCap        FinishReason = "length_cap"
	FinishSafetyBlocked    FinishReason = "safety_blocked"
	FinishRecitationBlocked FinishReason = "recitation_blocked"
	FinishOtherBlocked     FinishReason = "other_blocked"
)

// IsBlocked reports whether a finish reason is a non-retryable block.
func (r FinishReason) IsBlocked() bool {
	switch r {
	case FinishSafetyBlocked, FinishRecitationBlocked, FinishOtherBlocked:
		return true
	default:
		return false
	}
}

// Request matches the translation endpoint input contract field-for-field.
type Request struct {
	Text                string
	SourceLanguageHint  string
	TargetLanguage      string
	ModelIdentifier     string
	Temperature         float64
	SystemInstructions  string
}

// Response matches the output contract.
type Response struct {
	TranslatedText string
	FinishReason   FinishReason
	UsageTokens    int
}

// Client is the translation endpoint client, one instance shared
// across a run's workers — eino ChatModel implementations are safe for
// concurrent use.
type Client struct {
	cost    *openai.ChatModel
	quality *openai.ChatModel
	timeout time.Duration
}

// Config selects the two model tiers the Strategy Router dispatches
// between.
type Config struct {
	APIKey         string
	BaseURL        string
	CostModel      string
	QualityModel   string
	RequestTimeout time.Duration // per-call ceiling; 0 disables
}

// NewClient constructs the cost-tier and quality-tier chat models.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	cost, err := newChatModel(ctx, cfg.APIKey, cfg.BaseURL, cfg.CostModel)
	if err != nil {
		return nil, fmt.Errorf("llm: build cost-tier model: %w", err)
	}
	quality, err := newChatModel(ctx, cfg.APIKey, cfg.BaseURL, cfg.QualityModel)
	if err != nil {
		return nil, fmt.Errorf("llm: build quality-tier model: %w", err)
	}
	return &Client{cost: cost, quality: quality, timeout: cfg.RequestTimeout}, nil
}

func newChatModel(ctx context.Context, apiKey, baseURL, model string) (*openai.ChatModel, error) {
	cfg := &openai.ChatModelConfig{Model: model, APIKey: apiKey}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewChatModel(ctx, cfg)
}

// Tier names the two model tiers a Request can be dispatched to.
type Tier string

const (
	TierCost    Tier = "cost"
	TierQuality Tier = "quality"
)

// Translate issues one completion call for req against the given tier,
// matching the {text, source_language_hint, target_language,
// model_identifier, temperature, system_instructions} -> {translated_text,
// finish_reason, usage_tokens} contract.
func (c *Client) Translate(ctx context.Context, tier Tier, req Request) (Response, error) {
	model := c.cost
	if tier == TierQuality {
		model = c.quality
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := []*schema.Message{
		schema.SystemMessage(req.SystemInstructions),
		schema.UserMessage(req.Text),
	}

	out, err := model.Generate(ctx, messages)
	if err != nil {
		return Response{}, types.NewAppError(types.ErrTranslationEndpointTransient, "translation endpoint call failed", err)
	}

	resp := Response{
		TranslatedText: out.Content,
		FinishReason:   finishReasonFrom(out),
	}
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		resp.UsageTokens = int(out.ResponseMeta.Usage.TotalTokens)
	}

	if resp.FinishReason.IsBlocked() {
		return resp, types.NewAppError(types.ErrTranslationEndpointBlocked,
			fmt.Sprintf("translation blocked: %s", resp.FinishReason), nil)
	}
	return resp, nil
}

func finishReasonFrom(msg *schema.Message) FinishReason {
	if msg.ResponseMeta == nil {
		return FinishComplete
	}
	switch msg.ResponseMeta.FinishReason {
	case "length":
		return FinishLengthCap
	case "content_filter":
		return FinishSafetyBlocked
	case "", "stop":
		return FinishComplete
	default:
		return FinishOtherBlocked
	}
}
