package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// AssistantOptions configures one OpenAI assistant call.
type AssistantOptions struct {
	APIKey      string
	AssistantID string
}

// AssistantManager maps conversation keys to provider-side thread ids.
// A thread is created lazily on first use and reused for every later
// turn, so the assistant keeps its own memory of the conversation.
type AssistantManager struct {
	mu      sync.Mutex
	threads map[string]string // conversation key → thread id

	pollInterval time.Duration
	maxPolls     int
}

// NewAssistantManager creates a manager polling run completion every
// pollInterval, up to maxPolls times.
func NewAssistantManager(pollInterval time.Duration, maxPolls int) *AssistantManager {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	if maxPolls <= 0 {
		maxPolls = 30
	}
	return &AssistantManager{
		threads:      make(map[string]string),
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
	}
}

func (m *AssistantManager) ensureThread(ctx context.Context, client *openai.Client, key string) (string, error) {
	m.mu.Lock()
	threadID, ok := m.threads[key]
	m.mu.Unlock()
	if ok {
		return threadID, nil
	}

	thread, err := client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}

	m.mu.Lock()
	m.threads[key] = thread.ID
	m.mu.Unlock()

	return thread.ID, nil
}

// SendMessage appends the user message to the conversation's thread,
// starts a run and polls it to completion, returning the newest
// assistant message.
func (m *AssistantManager) SendMessage(ctx context.Context, key, message string, opts AssistantOptions) (string, error) {
	client := openai.NewClient(opts.APIKey)

	threadID, err := m.ensureThread(ctx, client, key)
	if err != nil {
		return "", err
	}

	assistant, err := client.RetrieveAssistant(ctx, opts.AssistantID)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve assistant: %w", err)
	}

	if _, err := client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    string(openai.ThreadMessageRoleUser),
		Content: message,
	}); err != nil {
		return "", fmt.Errorf("failed to append message: %w", err)
	}

	runReq := openai.RunRequest{AssistantID: assistant.ID}
	if assistant.Instructions != nil {
		runReq.Instructions = *assistant.Instructions
	}

	run, err := client.CreateRun(ctx, threadID, runReq)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	if err := m.pollRun(ctx, client, threadID, run.ID); err != nil {
		return "", err
	}

	return m.latestReply(ctx, client, threadID)
}

func (m *AssistantManager) pollRun(ctx context.Context, client *openai.Client, threadID, runID string) error {
	for attempt := 0; attempt < m.maxPolls; attempt++ {
		run, err := client.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return fmt.Errorf("failed to retrieve run: %w", err)
		}

		switch run.Status {
		case openai.RunStatusCompleted:
			return nil
		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired:
			reason := "unknown"
			if run.LastError != nil {
				reason = run.LastError.Message
			}
			return fmt.Errorf("openai run %s: %s", run.Status, reason)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}

	return ErrRunTimeout
}

func (m *AssistantManager) latestReply(ctx context.Context, client *openai.Client, threadID string) (string, error) {
	messages, err := client.ListMessage(ctx, threadID, nil, nil, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to list messages: %w", err)
	}
	if len(messages.Messages) == 0 {
		return "", fmt.Errorf("thread %s has no messages", threadID)
	}

	latest := messages.Messages[0]
	if len(latest.Content) == 0 || latest.Content[0].Type != "text" || latest.Content[0].Text == nil {
		return "", fmt.Errorf("unexpected response type from openai")
	}

	return latest.Content[0].Text.Value, nil
}

// ClearConversation forgets the thread for one conversation.
func (m *AssistantManager) ClearConversation(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, key)
}

// ClearPrefix forgets every thread whose key starts with prefix.
func (m *AssistantManager) ClearPrefix(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.threads {
		if strings.HasPrefix(key, prefix) {
			delete(m.threads, key)
		}
	}
}
