package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func stageImage(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("fake image bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return p
}

// completionServer returns a chat-completions stub that captures the request
// and answers with the given message content.
func completionServer(t *testing.T, content string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("Authorization = %q", got)
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Fatalf("decode request: %v", err)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
}

func TestExtract_ParsesFields(t *testing.T) {
	var captured map[string]any
	srv := completionServer(t, `{"title":"Harbor view","price":7.5,"year":1923,"country":"France"}`, &captured)
	defer srv.Close()

	e := NewOpenAIExtractor(srv.URL, "sk-test", "gpt-4o-mini", 5*time.Second)
	fields, err := e.Extract(context.Background(), stageImage(t, "card.jpg"), "postcard")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if fields.Title == nil || *fields.Title != "Harbor view" {
		t.Fatalf("Title = %v", fields.Title)
	}
	if fields.Price == nil || *fields.Price != 7.5 {
		t.Fatalf("Price = %v", fields.Price)
	}
	if fields.Year == nil || *fields.Year != 1923 {
		t.Fatalf("Year = %v", fields.Year)
	}
	// Omitted keys stay nil.
	if fields.Description != nil || fields.Denomination != nil {
		t.Fatalf("omitted fields populated: %+v", fields)
	}

	// Request shape: model, inline image, JSON response format.
	if captured["model"] != "gpt-4o-mini" {
		t.Fatalf("model = %v", captured["model"])
	}
	msgs := captured["messages"].([]any)
	parts := msgs[0].(map[string]any)["content"].([]any)
	if len(parts) != 2 {
		t.Fatalf("content parts = %d, want text + image", len(parts))
	}
	img := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(img, "data:image/jpeg;base64,") {
		t.Fatalf("image url prefix = %.40q", img)
	}
}

func TestExtract_StripsCodeFence(t *testing.T) {
	srv := completionServer(t, "```json\n{\"title\":\"Fenced\"}\n```", nil)
	defer srv.Close()

	e := NewOpenAIExtractor(srv.URL, "sk-test", "gpt-4o-mini", 5*time.Second)
	fields, err := e.Extract(context.Background(), stageImage(t, "card.png"), "postcard")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fields.Title == nil || *fields.Title != "Fenced" {
		t.Fatalf("Title = %v", fields.Title)
	}
}

func TestExtract_UnknownVariantFallsBack(t *testing.T) {
	var captured map[string]any
	srv := completionServer(t, `{}`, &captured)
	defer srv.Close()

	e := NewOpenAIExtractor(srv.URL, "sk-test", "gpt-4o-mini", 5*time.Second)
	if _, err := e.Extract(context.Background(), stageImage(t, "card.jpg"), "coin"); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	msgs := captured["messages"].([]any)
	parts := msgs[0].(map[string]any)["content"].([]any)
	text := parts[0].(map[string]any)["text"].(string)
	if !strings.Contains(text, "postcard") {
		t.Fatalf("prompt = %q, want postcard fallback", text)
	}
}

func TestExtract_ErrorPaths(t *testing.T) {
	t.Run("missing image", func(t *testing.T) {
		e := NewOpenAIExtractor("http://unused", "sk-test", "m", time.Second)
		if _, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "gone.jpg"), "postcard"); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("non-200 response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		e := NewOpenAIExtractor(srv.URL, "sk-test", "m", time.Second)
		if _, err := e.Extract(context.Background(), stageImage(t, "card.jpg"), "postcard"); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("unparseable answer", func(t *testing.T) {
		srv := completionServer(t, "I cannot tell.", nil)
		defer srv.Close()

		e := NewOpenAIExtractor(srv.URL, "sk-test", "m", time.Second)
		if _, err := e.Extract(context.Background(), stageImage(t, "card.jpg"), "postcard"); err == nil {
			t.Fatal("expected an error")
		}
	})
}
