package match

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/clintrovert/gantry/pkg/types"
)

// AIMatcher asks a chat model to pick the repository for a work item. It is
// an alternative strategy to KeywordMatcher for catalogs where substring
// matching is too coarse. The model must answer with a repository name from
// the candidate list, or NONE.
type AIMatcher struct {
	client *openai.Client
	logger *zap.Logger
	model  string
}

// NewAIMatcher creates an AIMatcher.
func NewAIMatcher(apiKey, model string, logger *zap.Logger) *AIMatcher {
	if model == "" {
		model = openai.GPT4TurboPreview
	}
	return &AIMatcher{
		client: openai.NewClient(apiKey),
		logger: logger,
		model:  model,
	}
}

// FindSuitable implements Matcher.
func (m *AIMatcher) FindSuitable(ctx context.Context, item *types.WorkItem, catalog []types.Repository) (*types.Repository, error) {
	active := make([]types.Repository, 0, len(catalog))
	for _, repo := range catalog {
		if repo.Active {
			active = append(active, repo)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You route issue-tracker tickets to the source repository they belong to. Answer with exactly one repository name from the candidate list, or NONE if no candidate fits.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: m.buildPrompt(item, active),
			},
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from model")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if strings.EqualFold(answer, "NONE") {
		return nil, nil
	}

	for i := range active {
		if strings.EqualFold(active[i].Name, answer) {
			m.logger.Debug("model matched repository",
				zap.String("external_key", item.ExternalKey),
				zap.String("repository", active[i].Name),
			)
			return &active[i], nil
		}
	}

	m.logger.Warn("model answered with unknown repository",
		zap.String("external_key", item.ExternalKey),
		zap.String("answer", answer),
	)
	return nil, nil
}

func (m *AIMatcher) buildPrompt(item *types.WorkItem, catalog []types.Repository) string {
	var sb strings.Builder
	sb.WriteString("Ticket " + item.ExternalKey + "\n")
	sb.WriteString("Title: " + item.Title + "\n")
	sb.WriteString("Description: " + item.Description + "\n\n")
	sb.WriteString("Candidate repositories:\n")
	for _, repo := range catalog {
		sb.WriteString("- " + repo.Name + ": " + repo.Description + "\n")
	}
	return sb.String()
}
