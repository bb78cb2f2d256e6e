package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/andrehe001/semanticworkbench/internal/config"
	"github.com/andrehe001/semanticworkbench/internal/domain"
)

const classifySystemPrompt = `You screen messages from project team members and decide whether the latest message is an information request: something the sender needs from the project coordinator (access, credentials, clarification, a decision, a resource) in order to proceed.

Be conservative. Status updates, acknowledgments, and FYI messages are not requests. Only answer true when the message clearly asks for or depends on something the coordinator can supply.

Respond with a single JSON object and nothing else:
{"is_information_request": bool, "reason": string, "potential_title": string, "potential_description": string, "suggested_priority": "low"|"medium"|"high"|"critical", "confidence": number between 0 and 1}`

// Model classifies messages with the Anthropic API.
type Model struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewModel builds a model-backed classifier. The API key comes from
// ANTHROPIC_API_KEY.
func NewModel(cfg config.DetectorConfig) (*Model, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}
	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	return &Model{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (m *Model) Classify(ctx context.Context, history []domain.Message, latest string) (domain.DetectionResult, error) {
	resp, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     m.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: classifySystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(history, latest))),
		},
	})
	if err != nil {
		return domain.DetectionResult{}, fmt.Errorf("classify: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}
	return parseResult(text.String())
}

func buildPrompt(history []domain.Message, latest string) string {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, msg := range history {
			fmt.Fprintf(&b, "%s: %s\n", msg.Sender, msg.Text)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Latest message to classify:\n%s", latest)
	return b.String()
}

// parseResult extracts the first JSON object from the model output.
func parseResult(text string) (domain.DetectionResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return domain.DetectionResult{}, fmt.Errorf("no JSON object in model output")
	}
	var res domain.DetectionResult
	if err := json.Unmarshal([]byte(text[start:end+1]), &res); err != nil {
		return domain.DetectionResult{}, fmt.Errorf("decode model output: %w", err)
	}
	return res, nil
}
