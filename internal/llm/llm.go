package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/issuedao/internal/models"
)

// Suggestion is a triage proposal for a new issue.
type Suggestion struct {
	Category        string                 `json:"category"`
	ExperienceLevel models.ExperienceLevel `json:"experience_level"`
	Reason          string                 `json:"reason"`
}

// Client wraps the Anthropic API for issue triage.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildTriagePrompt constructs the system and user prompts for triage.
func buildTriagePrompt(title, description string, categories []string) (system string, user string) {
	system = `You triage issues for a community project that funds work through bounties. Given an issue's title and description, return a JSON object with exactly three fields:

- "category": the best matching category from the known categories list. Use an empty string if none fit.
- "experience_level": one of "beginner", "intermediate", "advanced", the skill a contributor needs to complete the work
- "reason": one sentence explaining the choice

Rules:
- Only choose a category from the known list, never invent one
- Prefer "beginner" for documentation, typos and small isolated fixes
- Prefer "advanced" for protocol, security or cross-cutting changes
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	if len(categories) > 0 {
		sb.WriteString("Known categories: ")
		sb.WriteString(strings.Join(categories, ", "))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Issue title: ")
	sb.WriteString(title)
	sb.WriteString("\n")
	if description != "" {
		sb.WriteString("\nDescription:\n")
		sb.WriteString(description)
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// stripFencing removes a surrounding markdown code fence, if present.
func stripFencing(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

// parseSuggestion decodes a model response and drops values outside the
// allowed vocabularies.
func parseSuggestion(text string, categories []string) (*Suggestion, error) {
	text = stripFencing(text)

	var s Suggestion
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}

	known := false
	for _, c := range categories {
		if c == s.Category {
			known = true
			break
		}
	}
	if !known {
		s.Category = ""
	}
	s.ExperienceLevel = models.ExperienceLevel(strings.ToLower(string(s.ExperienceLevel)))
	if !s.ExperienceLevel.Valid() {
		s.ExperienceLevel = models.ExperienceBeginner
	}
	return &s, nil
}

// SuggestTriage asks the model for a category and bounty experience level.
func (c *Client) SuggestTriage(ctx context.Context, title, description string, categories []string) (*Suggestion, error) {
	systemPrompt, userPrompt := buildTriagePrompt(title, description, categories)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	// Extract text from response
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}

	return parseSuggestion(text, categories)
}
