package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/conneroisu/groq-go"

	"reelpost/pkg/prompts"
)

func testPrompts() *prompts.Prompts {
	return &prompts.Prompts{
		System: prompts.SystemPrompts{
			Tags:        "You suggest tags as JSON.",
			Description: "You describe videos.",
		},
		YouTube: prompts.YouTubePrompts{
			Tags:        "Suggest {{.Count}} tags for {{.Caption}}",
			Description: "Describe {{.Caption}}",
		},
	}
}

// completion is a chat completion body with one assistant message, or
// with no choices at all when content is nil.
func completion(content *string) string {
	choices := []map[string]any{}
	if content != nil {
		choices = append(choices, map[string]any{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": *content},
			"finish_reason": "stop",
		})
	}
	b, _ := json.Marshal(map[string]any{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "llama-3.3-70b-versatile",
		"choices": choices,
		"usage":   map[string]int{"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20},
	})
	return string(b)
}

func reply(content string) string {
	return completion(&content)
}

// cannedClient talks to a server that answers every request with status
// and body. inspect, when set, sees each request first.
func cannedClient(t *testing.T, status int, body string, inspect func(*http.Request)) *GroqClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	client, err := groq.NewClient("test-api-key", groq.WithBaseURL(server.URL+"/"))
	if err != nil {
		t.Fatalf("groq.NewClient() error = %v", err)
	}
	return &GroqClient{client: client, model: "llama-3.3-70b-versatile", prompts: testPrompts()}
}

func TestSuggestTags(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		status   int
		body     string
		wantErr  string
		wantTags []string
	}{
		{
			name:     "wrappedObject",
			count:    5,
			status:   http.StatusOK,
			body:     reply(`{"tags": ["sunset", "timelapse", "nature"]}`),
			wantTags: []string{"sunset", "timelapse", "nature"},
		},
		{
			name:     "bareArray",
			count:    5,
			status:   http.StatusOK,
			body:     reply(`["shorts", "cats"]`),
			wantTags: []string{"shorts", "cats"},
		},
		{
			name:     "cleansAndLimits",
			count:    2,
			status:   http.StatusOK,
			body:     reply(`{"tags": ["#Cats", "cats", " ", "funny", "extra"]}`),
			wantTags: []string{"Cats", "funny"},
		},
		{
			name:    "notJSON",
			count:   5,
			status:  http.StatusOK,
			body:    reply("sunset, sea"),
			wantErr: "parse response",
		},
		{
			name:    "noChoices",
			count:   5,
			status:  http.StatusOK,
			body:    completion(nil),
			wantErr: "no response",
		},
		{
			// 401 is not retried by groq-go.
			name:    "unauthorized",
			count:   5,
			status:  http.StatusUnauthorized,
			body:    `{"error": {"message": "invalid api key", "type": "authentication_error"}}`,
			wantErr: "generate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := cannedClient(t, tt.status, tt.body, nil)
			got, err := client.SuggestTags(context.Background(), "sunset over the sea", tt.count)

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("SuggestTags() error = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SuggestTags() error = %v", err)
			}
			if strings.Join(got, ",") != strings.Join(tt.wantTags, ",") {
				t.Errorf("SuggestTags() = %v, want %v", got, tt.wantTags)
			}
		})
	}
}

func TestSuggestTagsSendsPrompt(t *testing.T) {
	var sent struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		ResponseFormat *struct {
			Type string `json:"type"`
		} `json:"response_format"`
	}

	client := cannedClient(t, http.StatusOK, reply(`{"tags": []}`), func(r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&sent)
	})
	if _, err := client.SuggestTags(context.Background(), "rainy city", 7); err != nil {
		t.Fatalf("SuggestTags() error = %v", err)
	}

	if len(sent.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(sent.Messages))
	}
	if sent.Messages[0].Content != "You suggest tags as JSON." {
		t.Errorf("system prompt = %q", sent.Messages[0].Content)
	}
	if sent.Messages[1].Content != "Suggest 7 tags for rainy city" {
		t.Errorf("user prompt = %q", sent.Messages[1].Content)
	}
	if sent.ResponseFormat == nil || sent.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v, want json_object", sent.ResponseFormat)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr string
	}{
		{name: "trimmed", status: http.StatusOK, body: reply("  A calm evening by the water.\n"), want: "A calm evening by the water."},
		{name: "empty", status: http.StatusOK, body: reply(""), wantErr: "empty response"},
		{
			name:    "badRequest",
			status:  http.StatusBadRequest,
			body:    `{"error": {"message": "bad request", "type": "invalid_request_error"}}`,
			wantErr: "generate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cannedClient(t, tt.status, tt.body, nil).Describe(context.Background(), "evening")

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("Describe() error = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Describe() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanTags(t *testing.T) {
	long := strings.Repeat("x", maxTagLen+1)
	got := cleanTags([]string{"#a", "A", long, "b", "c"}, 0)

	if want := "a,b,c"; strings.Join(got, ",") != want {
		t.Errorf("cleanTags() = %v, want %s", got, want)
	}
}
