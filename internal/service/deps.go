package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_llm_client.go -package=mocks lifevault/internal/service LLMClient

import "context"

// LLMClient is an interface for interacting with an LLM API.
// This interface is defined from the service layer's perspective (consumer-first).
type LLMClient interface {
	// Chat sends a message to the LLM and returns the reply.
	Chat(ctx context.Context, message string) (string, error)
	// CompleteJSON sends a prompt and decodes the reply as a JSON object.
	CompleteJSON(ctx context.Context, prompt string) (map[string]any, error)
}

// Reindexer pushes vault file changes back into the SQLite index after a
// service writes a note. Satisfied by indexer.Indexer.
type Reindexer interface {
	IndexPaths(ctx context.Context, paths []string) error
}
