// OpenAI-compatible Extractor implementation.
//
// The image is sent inline as a base64 data URL to a chat-completions
// endpoint together with a prompt that asks for listing metadata as a single
// JSON object. The model's answer is parsed leniently: any field it omits
// stays nil, and the caller's merge semantics absorb the gap.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// prompts by variant; the default covers the postcard workflow the scanning
// stations run today.
var prompts = map[string]string{
	"postcard": "You are cataloging a scanned collectible postcard. Respond with one JSON object " +
		"with these keys (omit a key when you cannot tell): title, description, condition " +
		"(new, like new, good, fair, poor), price (number, EUR estimate), model, country, " +
		"year (integer), denomination.",
	"stamp": "You are cataloging a scanned postage stamp. Respond with one JSON object " +
		"with these keys (omit a key when you cannot tell): title, description, condition, " +
		"price (number, EUR estimate), country, year (integer), denomination.",
}

// OpenAIExtractor calls an OpenAI-compatible chat-completions API.
type OpenAIExtractor struct {
	BaseURL string // e.g. "https://api.openai.com/v1"
	APIKey  string
	Model   string
	HTTP    *http.Client
}

// NewOpenAIExtractor builds an extractor with a bounded HTTP client.
func NewOpenAIExtractor(baseURL, apiKey, model string, timeout time.Duration) *OpenAIExtractor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIExtractor{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// extractedFields mirrors the JSON shape the prompt asks for.
type extractedFields struct {
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	Condition    *string  `json:"condition"`
	Price        *float64 `json:"price"`
	Model        *string  `json:"model"`
	Country      *string  `json:"country"`
	Year         *int     `json:"year"`
	Denomination *string  `json:"denomination"`
}

// Extract runs the model against the image at path.
func (e *OpenAIExtractor) Extract(ctx context.Context, imagePath, promptVariant string) (Fields, error) {
	prompt, okVariant := prompts[promptVariant]
	if !okVariant {
		prompt = prompts["postcard"]
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return Fields{}, fmt.Errorf("read image: %w", err)
	}
	dataURL := "data:" + mimeFor(imagePath) + ";base64," + base64.StdEncoding.EncodeToString(data)

	body, err := json.Marshal(map[string]any{
		"model": e.Model,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": prompt},
					{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
				},
			},
		},
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return Fields{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Fields{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return Fields{}, fmt.Errorf("vision call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Fields{}, fmt.Errorf("vision call: status %d: %s", resp.StatusCode, string(b))
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return Fields{}, fmt.Errorf("decode response: %w", err)
	}
	if len(response.Choices) == 0 {
		return Fields{}, fmt.Errorf("vision call: no choices returned")
	}

	var ext extractedFields
	content := strings.TrimSpace(response.Choices[0].Message.Content)
	// Some models wrap the object in a code fence despite the response_format.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &ext); err != nil {
		return Fields{}, fmt.Errorf("parse model answer: %w", err)
	}

	return Fields{
		Title:        ext.Title,
		Description:  ext.Description,
		Condition:    ext.Condition,
		Price:        ext.Price,
		Model:        ext.Model,
		Country:      ext.Country,
		Year:         ext.Year,
		Denomination: ext.Denomination,
	}, nil
}

func mimeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
