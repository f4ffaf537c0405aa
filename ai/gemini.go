package ai

import (
	"fmt"
	"strings"
	"sync"

	"context"

	"google.golang.org/genai"
)

// GeminiOptions configures one Gemini call.
type GeminiOptions struct {
	APIKey       string
	Model        string
	SystemPrompt string
}

// HistoryStore keeps per-conversation chat history. The engine never
// prunes it; swapping in a capped or summarizing store only requires
// implementing this interface.
type HistoryStore interface {
	Get(key string) ([]*genai.Content, bool)
	Set(key string, history []*genai.Content)
	Delete(key string)
	DeletePrefix(prefix string)
}

// memoryHistory is the default unbounded in-process store.
type memoryHistory struct {
	mu        sync.Mutex
	histories map[string][]*genai.Content
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{histories: make(map[string][]*genai.Content)}
}

func (s *memoryHistory) Get(key string) ([]*genai.Content, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, ok := s.histories[key]
	return history, ok
}

func (s *memoryHistory) Set(key string, history []*genai.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[key] = history
}

func (s *memoryHistory) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.histories, key)
}

func (s *memoryHistory) DeletePrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.histories {
		if strings.HasPrefix(key, prefix) {
			delete(s.histories, key)
		}
	}
}

// GeminiManager holds per-conversation chat history and talks to the
// Gemini API. Gemini has no native system role here, so a fresh history
// is seeded with the bot's prompt as a user turn plus a fixed model
// acknowledgment; every later exchange stays anchored to the persona.
type GeminiManager struct {
	histories HistoryStore
	greeting  string
}

// NewGeminiManager creates a manager with the default in-process store.
func NewGeminiManager(greeting string) *GeminiManager {
	return &GeminiManager{
		histories: newMemoryHistory(),
		greeting:  greeting,
	}
}

func (m *GeminiManager) seededHistory(key, systemPrompt string) []*genai.Content {
	if history, ok := m.histories.Get(key); ok {
		return history
	}

	history := []*genai.Content{
		genai.NewContentFromText(systemPrompt, genai.RoleUser),
		genai.NewContentFromText(m.greeting, genai.RoleModel),
	}
	m.histories.Set(key, history)
	return history
}

// SendMessage sends one user message in the conversation identified by
// key and returns the model's reply, extending the stored history.
func (m *GeminiManager) SendMessage(ctx context.Context, key, message string, opts GeminiOptions) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}

	history := m.seededHistory(key, opts.SystemPrompt)

	chat, err := client.Chats.Create(ctx, opts.Model, nil, history)
	if err != nil {
		return "", fmt.Errorf("failed to create gemini chat: %w", err)
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	reply := resp.Text()
	if reply == "" {
		return "", fmt.Errorf("empty response from gemini")
	}

	m.histories.Set(key, append(history,
		genai.NewContentFromText(message, genai.RoleUser),
		genai.NewContentFromText(reply, genai.RoleModel),
	))

	return reply, nil
}

// ClearConversation drops the stored history for one conversation.
func (m *GeminiManager) ClearConversation(key string) {
	m.histories.Delete(key)
}

// ClearPrefix drops every history whose key starts with prefix.
func (m *GeminiManager) ClearPrefix(prefix string) {
	m.histories.DeletePrefix(prefix)
}
