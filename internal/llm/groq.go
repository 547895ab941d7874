package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/conneroisu/groq-go"

	"reelpost/pkg/prompts"
)

const maxTagLen = 30

var _ Client = (*GroqClient)(nil)

type GroqClient struct {
	client  *groq.Client
	model   groq.ChatModel
	prompts *prompts.Prompts
}

func NewGroqClient(apiKey, model string, p *prompts.Prompts) (*GroqClient, error) {
	client, err := groq.NewClient(apiKey)
	if err != nil {
		return nil, fmt.Errorf("create groq client: %w", err)
	}
	if p == nil {
		p = prompts.Default()
	}

	return &GroqClient{
		client:  client,
		model:   groq.ChatModel(model),
		prompts: p,
	}, nil
}

// SuggestTags returns at most count cleaned, de-duplicated tags.
func (c *GroqClient) SuggestTags(ctx context.Context, caption string, count int) ([]string, error) {
	prompt, err := c.prompts.RenderTags(prompts.TagsParams{Caption: caption, Count: count})
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	content, err := c.generate(ctx, c.prompts.System.Tags, prompt, true)
	if err != nil {
		return nil, err
	}

	var raw []string
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		var wrapped struct {
			Tags []string `json:"tags"`
		}
		if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		raw = wrapped.Tags
	}

	return cleanTags(raw, count), nil
}

func (c *GroqClient) Describe(ctx context.Context, caption string) (string, error) {
	prompt, err := c.prompts.RenderDescription(prompts.DescriptionParams{Caption: caption})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	content, err := c.generate(ctx, c.prompts.System.Description, prompt, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (c *GroqClient) generate(ctx context.Context, systemPrompt, userPrompt string, jsonOut bool) (string, error) {
	req := groq.ChatCompletionRequest{
		Model: c.model,
		Messages: []groq.ChatCompletionMessage{
			{Role: groq.RoleSystem, Content: systemPrompt},
			{Role: groq.RoleUser, Content: userPrompt},
		},
	}
	if jsonOut {
		req.ResponseFormat = &groq.ChatResponseFormat{Type: "json_object"}
	}

	resp, err := c.client.ChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty response")
	}

	return content, nil
}

func cleanTags(raw []string, count int) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))

	for _, t := range raw {
		t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t == "" || len([]rune(t)) > maxTagLen {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out
}
