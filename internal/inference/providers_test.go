package inference

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"konto/internal/categorize"
	"konto/internal/log"
)

var (
	testBatch   = []categorize.TxSummary{{ID: "t1", Creditor: "Bakery", Amount: "-4.20"}, {ID: "t2", Creditor: "ACME", Amount: "-10.00"}}
	testCatalog = []categorize.CatalogEntry{{ID: "cat_1", Name: "Food"}}
)

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return string(b)
}

func TestOpenAIInfer(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatReply("```json\n{\"t1\":\"cat_1\",\"t2\":null}\n```"))
	}))
	defer srv.Close()

	o := NewOpenAI("test-key", srv.URL+"/v1", "test-model", "en", log.Discard())
	res, err := o.Infer(context.Background(), testBatch, testCatalog)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if res["t1"] == nil || *res["t1"] != "cat_1" || res["t2"] != nil {
		t.Fatalf("unexpected result %v", res)
	}

	if got.Model != "test-model" || len(got.Messages) != 2 {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Errorf("JSON response format not requested")
	}
	if !strings.Contains(got.Messages[1].Content, "Bakery") {
		t.Errorf("prompt lacks the batch:\n%s", got.Messages[1].Content)
	}
}

func TestOpenAIInferErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"no choices", http.StatusOK, `{"id":"x","object":"chat.completion","choices":[]}`},
		{"upstream error", http.StatusInternalServerError, `{"error":{"message":"overloaded","type":"server_error"}}`},
		{"not json content", http.StatusOK, chatReply("Sorry, I can't")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			o := NewOpenAI("k", srv.URL+"/v1", "m", "en", log.Discard())
			if _, err := o.Infer(context.Background(), testBatch, testCatalog); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func newTestGemini(t *testing.T, handler http.HandlerFunc) *Gemini {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g, err := newGemini(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL},
	}, "test-model", "en", log.Discard())
	if err != nil {
		t.Fatalf("newGemini: %v", err)
	}
	return g
}

func TestGeminiInfer(t *testing.T) {
	var prompt string
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/test-model:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
			prompt = req.Contents[0].Parts[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"t1\":\"Bakery\",\"t2\":null}"}]}}]}`)
	})

	res, err := g.Infer(context.Background(), testBatch, testCatalog)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if res["t1"] == nil || *res["t1"] != "Bakery" || res["t2"] != nil {
		t.Fatalf("unexpected result %v", res)
	}
	if !strings.Contains(prompt, "cat_1") {
		t.Errorf("prompt lacks the catalog:\n%s", prompt)
	}
}

func TestGeminiInferErrors(t *testing.T) {
	t.Run("no candidates", func(t *testing.T) {
		g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"candidates":[]}`)
		})
		if _, err := g.Infer(context.Background(), testBatch, testCatalog); err == nil {
			t.Fatalf("expected error")
		}
	})
	t.Run("upstream error", func(t *testing.T) {
		g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":{"code":400,"message":"bad model","status":"INVALID_ARGUMENT"}}`)
		})
		if _, err := g.Infer(context.Background(), testBatch, testCatalog); err == nil {
			t.Fatalf("expected error")
		}
	})
}
