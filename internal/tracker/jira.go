package tracker

import (
	"context"
	"fmt"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"go.uber.org/zap"

	"github.com/clintrovert/gantry/pkg/types"
)

// JiraSource implements TaskSource against a Jira instance.
type JiraSource struct {
	client     *jira.Client
	logger     *zap.Logger
	projectKey string
}

// NewJiraSource creates a Jira-backed TaskSource using basic auth.
func NewJiraSource(baseURL, username, apiToken, projectKey string, logger *zap.Logger) (*JiraSource, error) {
	tp := jira.BasicAuthTransport{
		Username: username,
		Password: apiToken,
	}

	client, err := jira.NewClient(tp.Client(), baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}

	return &JiraSource{
		client:     client,
		logger:     logger,
		projectKey: projectKey,
	}, nil
}

// FetchOpenItems runs the given JQL (or a project-wide open-issues query
// when empty) and converts the result set.
func (s *JiraSource) FetchOpenItems(ctx context.Context, query string) ([]types.ExternalWorkItem, error) {
	jql := query
	if jql == "" {
		jql = fmt.Sprintf("project = %s AND statusCategory != Done", s.projectKey)
	}

	issues, _, err := s.client.Issue.SearchWithContext(ctx, jql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search issues: %w", err)
	}

	items := make([]types.ExternalWorkItem, 0, len(issues))
	for i := range issues {
		items = append(items, issueToItem(&issues[i]))
	}

	s.logger.Info("fetched open items",
		zap.String("jql", jql),
		zap.Int("count", len(items)),
	)
	return items, nil
}

// PostComment adds a comment to a Jira issue.
func (s *JiraSource) PostComment(ctx context.Context, externalKey, text string) error {
	_, _, err := s.client.Issue.AddCommentWithContext(ctx, externalKey, &jira.Comment{
		Body: text,
	})
	if err != nil {
		return fmt.Errorf("failed to add comment to %s: %w", externalKey, err)
	}
	return nil
}

// issueToItem converts a Jira issue to an ExternalWorkItem.
func issueToItem(issue *jira.Issue) types.ExternalWorkItem {
	item := types.ExternalWorkItem{
		Key:         issue.Key,
		Title:       issue.Fields.Summary,
		Description: issue.Fields.Description,
		CreatedAt:   time.Time(issue.Fields.Created),
		UpdatedAt:   time.Time(issue.Fields.Updated),
	}

	if issue.Fields.Status != nil {
		item.Status = issue.Fields.Status.Name
	}
	if issue.Fields.Priority != nil {
		item.Priority = issue.Fields.Priority.Name
	}
	if issue.Fields.Assignee != nil {
		item.Assignee = issue.Fields.Assignee.DisplayName
	}
	if issue.Fields.Reporter != nil {
		item.Reporter = issue.Fields.Reporter.DisplayName
	}
	if due := time.Time(issue.Fields.Duedate); !due.IsZero() {
		item.DueDate = &due
	}

	return item
}
