package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"careguardian/internal/apperr"
	"careguardian/internal/chat"
)

// Client calls the generative-AI service's generateContent endpoint. The
// wire shape is prompt contents in, a candidate list out; a well-formed
// response with no candidates is treated identically to a hard failure.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generate(ctx context.Context, contents []content, jsonMode bool) (string, error) {
	reqBody := generateRequest{Contents: contents}
	if jsonMode {
		reqBody.GenerationConfig = &generationConfig{ResponseMIMEType: "application/json"}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.Transport("The AI service is unreachable.", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", apperr.Transport("The AI service is unavailable.",
			fmt.Errorf("genai api returned status %s: %s", resp.Status, string(body)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.Format("The AI service returned an invalid response.", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", apperr.Format("The AI service returned an empty response.",
			fmt.Errorf("no candidates in genai response"))
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

// GenerateJSON sends a single-turn prompt with the JSON response hint.
func (c *Client) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, []content{{Role: "user", Parts: []part{{Text: prompt}}}}, true)
}

// GenerateText sends a single-turn prompt and returns free text.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, []content{{Role: "user", Parts: []part{{Text: prompt}}}}, false)
}

// GenerateConversation sends the persona as a leading model turn followed
// by the accumulated history in order.
func (c *Client) GenerateConversation(ctx context.Context, persona string, history []chat.Turn) (string, error) {
	contents := make([]content, 0, len(history)+1)
	contents = append(contents, content{Role: "model", Parts: []part{{Text: persona}}})
	for _, t := range history {
		role := "user"
		if t.Role == chat.RoleAssistant {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: t.Text}}})
	}
	return c.generate(ctx, contents, false)
}
