package codegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/iskim1407-claw/makeit/internal/domain"
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("codegen: generator not configured")
	// ErrUnparseable is returned when the model reply holds no project JSON.
	ErrUnparseable = errors.New("codegen: failed to parse generated code")
)

const systemPrompt = `You are an expert Next.js developer. Generate a complete, working web app for the user's requirements.

Stack:
- Next.js 14 (App Router)
- TypeScript
- Tailwind CSS
- React hooks

Rules:
1. Return every file in a JSON array.
2. Each file is { "path", "content" } with a path relative to the repository root.
3. Only produce complete code that runs as is.
4. Mark client components with 'use client' where needed.
5. Style with Tailwind CSS classes.

Answer only in this format:
` + "```json" + `
{
  "projectName": "project-name",
  "files": [
    { "path": "src/app/page.tsx", "content": "..." },
    { "path": "src/app/layout.tsx", "content": "..." }
  ]
}
` + "```" + `

Never include text outside the JSON.`

const assistantPrompt = `You are the Makeit assistant. The user describes a web app they want; you pin down the requirements and plan the build.

Your job:
1. Understand the idea and make it concrete.
2. List the features, pages and data the app needs.
3. Propose the stack (Next.js 14, Tailwind CSS and TypeScript by default).
4. Agree on an MVP scope that can be built.

Keep answers friendly and short. Go into technical detail only when asked.

Once the idea is clear, end with a summary in this form:

---
**Project summary**
- App name: [suggestion]
- Main features: [list]
- Pages: [list]
- Expected files: [count]

Press "Generate" when you are ready.
---`

const chatMaxTokens = 1024

var jsonFence = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// Message is one turn of the chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is the input of a generation run.
type GenerateRequest struct {
	Prompt  string
	History []Message
}

// Generator produces a project from a conversation and answers the
// requirement-gathering chat that precedes it.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (domain.GeneratedProject, error)
	Chat(ctx context.Context, messages []Message) (string, error)
}

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGenerator generates projects with the chat completions API.
type OpenAIGenerator struct {
	client    chatCompleter
	model     string
	maxTokens int
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator returns a generator, or one that always fails with
// ErrNotConfigured when apiKey is empty. baseURL overrides the API endpoint.
func NewOpenAIGenerator(apiKey, model, baseURL string) *OpenAIGenerator {
	if model == "" {
		model = openai.GPT4o
	}
	gen := &OpenAIGenerator{model: model, maxTokens: 8192}
	if strings.TrimSpace(apiKey) == "" {
		return gen
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	gen.client = openai.NewClientWithConfig(cfg)
	return gen
}

// Generate asks the model for a project and validates the decoded result.
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (domain.GeneratedProject, error) {
	if g.client == nil {
		return domain.GeneratedProject{}, ErrNotConfigured
	}

	prompt := buildPrompt(req)
	if prompt == "" {
		return domain.GeneratedProject{}, fmt.Errorf("%w: prompt required", domain.ErrInvalidRequest)
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return domain.GeneratedProject{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.GeneratedProject{}, ErrUnparseable
	}

	return ParseProject(resp.Choices[0].Message.Content)
}

// Chat returns the assistant's next reply to the transcript. Roles other
// than assistant are sent as user turns and empty turns are dropped.
func (g *OpenAIGenerator) Chat(ctx context.Context, messages []Message) (string, error) {
	if g.client == nil {
		return "", ErrNotConfigured
	}

	turns := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: assistantPrompt}}
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		if m.Role == openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		turns = append(turns, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	if len(turns) == 1 {
		return "", fmt.Errorf("%w: messages required", domain.ErrInvalidRequest)
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     g.model,
		Messages:  turns,
		MaxTokens: chatMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// ParseProject extracts the project JSON from a model reply. A fenced json
// block wins; otherwise the whole reply must be JSON.
func ParseProject(text string) (domain.GeneratedProject, error) {
	raw := strings.TrimSpace(text)
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		raw = m[1]
	}

	var project domain.GeneratedProject
	if err := json.Unmarshal([]byte(raw), &project); err != nil {
		return domain.GeneratedProject{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if err := project.Validate(); err != nil {
		return domain.GeneratedProject{}, err
	}
	return project, nil
}

func buildPrompt(req GenerateRequest) string {
	var lines []string
	for _, m := range req.History {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		lines = append(lines, m.Role+": "+m.Content)
	}
	transcript := strings.Join(lines, "\n\n")
	if transcript == "" {
		transcript = strings.TrimSpace(req.Prompt)
	}
	if transcript == "" {
		return ""
	}
	return "Build a web app from the following conversation:\n\n" + transcript +
		"\n\nGenerate the complete Next.js app for these requirements as JSON."
}
