package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func chatServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		resp := ChatResponse{
			Choices: []ChatChoice{{Message: ChatChoiceMessage{Role: "assistant", Content: content}}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClient_Chat(t *testing.T) {
	srv := chatServer(t, "hello back", http.StatusOK)
	defer srv.Close()

	client := NewClient(srv.URL, "key", "model")
	reply, err := client.Chat(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply != "hello back" {
		t.Errorf("reply = %q", reply)
	}
}

func TestClient_Chat_BadStatus(t *testing.T) {
	srv := chatServer(t, "", http.StatusInternalServerError)
	defer srv.Close()

	client := NewClient(srv.URL, "key", "model")
	if _, err := client.Chat(context.Background(), "hello"); err == nil {
		t.Fatal("Chat() should fail on 500")
	}
}

func TestClient_CompleteJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"bare object", `{"summary": "ok"}`, false},
		{"fenced object", "```json\n{\"summary\": \"ok\"}\n```", false},
		{"not json", "sorry, I cannot do that", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.content, http.StatusOK)
			defer srv.Close()

			client := NewClient(srv.URL, "key", "model")
			payload, err := client.CompleteJSON(context.Background(), "prompt")
			if tt.wantErr {
				if err == nil {
					t.Fatal("CompleteJSON() should fail")
				}
				return
			}
			if err != nil {
				t.Fatalf("CompleteJSON() error = %v", err)
			}
			if payload["summary"] != "ok" {
				t.Errorf("payload = %v", payload)
			}
		})
	}
}

func TestSchema_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		wantErr bool
	}{
		{
			"valid",
			map[string]any{"summary": "s", "details_md": "d", "actions_md": "a", "tags": []any{"x"}},
			false,
		},
		{
			"missing field",
			map[string]any{"summary": "s", "details_md": "d", "actions_md": "a"},
			true,
		},
		{
			"wrong type",
			map[string]any{"summary": 7, "details_md": "d", "actions_md": "a", "tags": []any{}},
			true,
		},
		{
			"non-string list item",
			map[string]any{"summary": "s", "details_md": "d", "actions_md": "a", "tags": []any{1}},
			true,
		},
		{
			"extra fields tolerated",
			map[string]any{"summary": "s", "details_md": "d", "actions_md": "a", "tags": []any{}, "mood": "fine"},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DistillSchema.Validate(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
