package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"streetwear-store/internal/apperror"
	"streetwear-store/internal/config"
	"streetwear-store/internal/logger"
	"streetwear-store/internal/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ErrNotConfigured возвращается, если ключ генератора не задан.
var ErrNotConfigured = errors.New("dialogue generator is not configured")

// Client стримит реплики продавца из Gemini.
type Client struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	log     *logger.Logger
}

// NewClient создаёт клиента. Без API-ключа возвращает клиента, который всегда отвечает ErrNotConfigured.
func NewClient(ctx context.Context, cfg *config.LLMConfig, log *logger.Logger) (*Client, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{model: cfg.Model, timeout: timeout, log: log}
	if cfg.APIKey == "" {
		return c, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	c.client = client
	return c, nil
}

// Configured сообщает, подключён ли генератор.
func (c *Client) Configured() bool {
	return c != nil && c.client != nil
}

// Close освобождает соединение.
func (c *Client) Close() error {
	if !c.Configured() {
		return nil
	}
	return c.client.Close()
}

// StreamReply отправляет prompt и передаёт фрагменты текста в emit по мере генерации.
// Возвращает число отправленных фрагментов; ошибка после первого фрагмента означает обрыв ответа.
func (c *Client) StreamReply(ctx context.Context, prompt *models.DialoguePrompt, emit func(chunk string) error) (int, error) {
	if !c.Configured() {
		return 0, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = genai.NewUserContent(genai.Text(prompt.System))

	session := model.StartChat()
	session.History = toContents(prompt.History)

	iter := session.SendMessageStream(ctx, genai.Text(prompt.Message))
	emitted := 0
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return emitted, apperror.Unavailable("dialogue generator failed", err)
		}

		for _, chunk := range textParts(resp) {
			if err := emit(chunk); err != nil {
				return emitted, err
			}
			emitted++
		}
	}

	if c.log != nil {
		c.log.WithField("chunks", emitted).Debug("Dialogue reply streamed")
	}
	return emitted, nil
}

// toContents переводит историю переписки в роли Gemini: assistant становится model.
func toContents(history []models.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return contents
}

func textParts(resp *genai.GenerateContentResponse) []string {
	if resp == nil {
		return nil
	}
	var out []string
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok && t != "" {
				out = append(out, string(t))
			}
		}
	}
	return out
}
