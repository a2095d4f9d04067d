// Package perplexity provides a client for the Perplexity chat
// completions API, used to classify securities into sectors.
package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the production Perplexity API host.
const DefaultBaseURL = "https://api.perplexity.ai"

// Client calls the Perplexity chat completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Perplexity client.
// model may be empty, in which case "sonar" is used.
func NewClient(apiKey, model string, log zerolog.Logger) *Client {
	if model == "" {
		model = "sonar"
	}
	return &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("client", "perplexity").Logger(),
	}
}

// NewClientWithBaseURL creates a client against a custom host (tests).
func NewClientWithBaseURL(apiKey, model, baseURL string, log zerolog.Logger) *Client {
	c := NewClient(apiKey, model, log)
	c.baseURL = baseURL
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Classification is the model's answer for one security.
type Classification struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const systemPrompt = `You classify financial securities. Reply with only a JSON object
{"name": "<canonical company or fund name>", "category": "<category>"}
where category is exactly one of: %s. No prose, no markdown.`

// Classify asks the model for a canonical name and category for a symbol.
// categories constrains the answer to a fixed label set.
func (c *Client) Classify(ctx context.Context, symbol, description string, categories []string) (*Classification, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("perplexity client not configured")
	}

	user := fmt.Sprintf("Symbol: %s", symbol)
	if description != "" {
		user += fmt.Sprintf("\nDescription: %s", description)
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, strings.Join(categories, ", "))},
			{Role: "user", Content: user},
		},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("empty completion for %s", symbol)
	}

	result, err := parseClassification(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("unparseable classification for %s: %w", symbol, err)
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("category", result.Category).
		Msg("Classified symbol")

	return result, nil
}

// parseClassification extracts the JSON object from the model output,
// tolerating markdown code fences the model sometimes adds anyway.
func parseClassification(content string) (*Classification, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	// Find the outermost object in case the model wrapped it in prose
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in completion")
	}

	var result Classification
	if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
		return nil, err
	}
	if result.Category == "" {
		return nil, fmt.Errorf("completion missing category")
	}

	return &result, nil
}
