package reputation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// longer sources are truncated before review
	maxSourceChars = 60_000

	reviewPrompt = `You audit ERC-20 token contracts for scams. Look for hidden owner-only
transfer restrictions, blacklists, adjustable taxes above 25%, minting after launch,
trading switches the owner can turn off, and proxy upgrade backdoors.
Answer only with JSON: {"possible_scam": true|false, "reason": "<one sentence>"}.`
)

// Assessment is the reviewer's verdict on a contract.
type Assessment struct {
	PossibleScam bool   `json:"possible_scam"`
	Reason       string `json:"reason"`
}

// CodeReviewer asks an OpenAI-compatible chat completion endpoint to review source code.
type CodeReviewer struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewCodeReviewer creates a reviewer
func NewCodeReviewer(baseURL, apiKey, model string, timeout time.Duration) *CodeReviewer {
	return &CodeReviewer{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Review returns the assessment of source.
func (r *CodeReviewer) Review(ctx context.Context, source string) (Assessment, error) {
	if len(source) > maxSourceChars {
		source = source[:maxSourceChars]
	}
	body, err := json.Marshal(chatRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "system", Content: reviewPrompt},
			{Role: "user", Content: source},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return Assessment{}, fmt.Errorf("failed to encode review request: %w", err)
	}

	req, err := newRequest(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Assessment{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	var resp chatResponse
	if err := doJSON(r.client, req, "llm", &resp); err != nil {
		return Assessment{}, err
	}
	if len(resp.Choices) == 0 {
		return Assessment{}, fmt.Errorf("llm returned no choices")
	}

	var a Assessment
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimSuffix(strings.TrimPrefix(content, "```json"), "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &a); err != nil {
		return Assessment{}, fmt.Errorf("failed to decode assessment %q: %w", content, err)
	}
	return a, nil
}
