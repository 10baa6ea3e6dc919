package answer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/spetr/pyast-rag/pkg/types"
)

func hits() []*types.SearchResult {
	return []*types.SearchResult{
		{Chunk: &types.Chunk{
			FilePath: "pkg/db.py", Name: "save", ParentName: "Repo",
			Content: "def save(self, row):\n    self.conn.insert(row)",
		}},
		{Chunk: &types.Chunk{
			FilePath: "pkg/db.py", Name: "connect",
			Content: "def connect(url):\n    return sqlite3.connect(url)",
		}},
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("How are rows saved?", hits())

	for _, want := range []string{
		"Snippet 1 | File: pkg/db.py | Name: save (Class: Repo)\n```python\ndef save(self, row):",
		"Snippet 2 | File: pkg/db.py | Name: connect\n```python\n",
		"The user's question is: How are rows saved?",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "connect (Class:") {
		t.Error("top-level function rendered with a class")
	}
}

func TestPreview(t *testing.T) {
	if got := Preview(nil); got != "No relevant code snippets found." {
		t.Errorf("Preview(nil) = %q", got)
	}

	long := strings.Repeat("é", 80)
	got := Preview([]*types.SearchResult{{Chunk: &types.Chunk{Name: "f", Content: long}}})
	if !strings.HasPrefix(got, "Retrieved 1 snippets.") || !strings.Contains(got, "--- f ---") {
		t.Errorf("Preview() = %q", got)
	}
	if !strings.HasSuffix(got, strings.Repeat("é", 50)+"...") {
		t.Errorf("Preview() did not cut on a rune boundary: %q", got)
	}
}

func TestAnswerWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	g := NewGenerator(Config{})

	if _, err := g.Answer(context.Background(), "q", hits()); !errors.Is(err, types.ErrNoAPIKey) {
		t.Errorf("Answer() error = %v, want ErrNoAPIKey", err)
	}
	if _, err := g.Answer(context.Background(), "q", nil); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Answer(no hits) error = %v, want ErrNotFound", err)
	}
}

func TestAnswer(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID: "chatcmpl-1",
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "  Rows go through Repo.save. "},
			}},
		})
	}))
	defer srv.Close()

	g := NewGenerator(Config{Model: "test-model", BaseURL: srv.URL + "/v1", APIKey: "test-key", MaxTokens: 64})
	answer, err := g.Answer(context.Background(), "How are rows saved?", hits())
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer != "Rows go through Repo.save." {
		t.Errorf("Answer() = %q", answer)
	}
	if got.Model != "test-model" || got.MaxTokens != 64 || len(got.Messages) != 2 {
		t.Fatalf("request = %+v", got)
	}
	if !strings.Contains(got.Messages[1].Content, "Name: save (Class: Repo)") {
		t.Errorf("user message missing snippet header: %q", got.Messages[1].Content)
	}
}

func TestAnswerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewGenerator(Config{BaseURL: srv.URL + "/v1", APIKey: "k"})
	if _, err := g.Answer(context.Background(), "q", hits()); err == nil {
		t.Error("Answer() succeeded against a failing server")
	}
}
