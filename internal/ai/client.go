// Package ai generates automated replies through an OpenAI-compatible API.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultModel   = "gpt-4o-mini"
	requestTimeout = 30 * time.Second
)

var ErrNoChoices = errors.New("no response choices")

const systemPrompt = `You are the customer support assistant of a business on WhatsApp.
Follow the business instruction below when answering. Reply in the customer's language,
keep it short and friendly, and never invent prices, dates or policies.

Business instruction:
%s`

// Client is a Generator backed by chat completions.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a client. An empty baseURL uses the OpenAI endpoint.
func NewClient(apiKey, baseURL, model string) *Client {
	if model == "" {
		model = defaultModel
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Generate answers the customer's message following the rule prompt.
func (c *Client) Generate(ctx context.Context, prompt, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(systemPrompt, prompt)},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return resp.Choices[0].Message.Content, nil
}
