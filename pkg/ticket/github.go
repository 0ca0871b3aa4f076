package ticket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

const (
	emailPrefix      = "Email: "
	inProgressLabel  = "in-progress"
	defaultTicketTag = "support-ticket"
)

// GitHubConfig configures a GitHubStore.
type GitHubConfig struct {
	Token string
	Owner string
	Repo  string
	// Labels are attached to every new issue; defaults to "support-ticket".
	Labels []string
	// BaseURL overrides the API endpoint, e.g. for GitHub Enterprise.
	BaseURL string
}

// GitHubStore files each ticket as an issue in a GitHub repository. The
// ticket id is the issue number.
type GitHubStore struct {
	client *github.Client
	owner  string
	repo   string
	labels []string
}

// NewGitHubStore creates a GitHubStore.
func NewGitHubStore(cfg GitHubConfig) (*GitHubStore, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN is required for the github ticket store")
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("incomplete ticket repository: owner=%s, repo=%s", cfg.Owner, cfg.Repo)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	client := github.NewClient(oauth2.NewClient(context.Background(), ts))
	if cfg.BaseURL != "" {
		base := strings.TrimSuffix(cfg.BaseURL, "/") + "/"
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid github base url: %w", err)
		}
		client.BaseURL = u
	}

	labels := cfg.Labels
	if len(labels) == 0 {
		labels = []string{defaultTicketTag}
	}
	return &GitHubStore{client: client, owner: cfg.Owner, repo: cfg.Repo, labels: labels}, nil
}

func (s *GitHubStore) Create(ctx context.Context, email, issue string) (*Ticket, error) {
	email, issue, err := Validate(email, issue)
	if err != nil {
		return nil, err
	}

	labels := append([]string(nil), s.labels...)
	req := &github.IssueRequest{
		Title:  github.String("Support: " + summarize(issue, 60)),
		Body:   github.String(emailPrefix + email + "\n\n" + issue),
		Labels: &labels,
	}
	created, _, err := s.client.Issues.Create(ctx, s.owner, s.repo, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}
	return fromIssue(created), nil
}

func (s *GitHubStore) Get(ctx context.Context, id string) (*Ticket, error) {
	number, err := strconv.Atoi(id)
	if err != nil || number <= 0 {
		return nil, ErrNotFound
	}
	issue, _, err := s.client.Issues.Get(ctx, s.owner, s.repo, number)
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get issue #%d: %w", number, err)
	}
	return fromIssue(issue), nil
}

func fromIssue(issue *github.Issue) *Ticket {
	t := &Ticket{
		ID:        strconv.Itoa(issue.GetNumber()),
		Status:    issueStatus(issue),
		URL:       issue.GetHTMLURL(),
		CreatedAt: issue.GetCreatedAt().Time,
		UpdatedAt: issue.GetUpdatedAt().Time,
	}
	body := issue.GetBody()
	if first, rest, ok := strings.Cut(body, "\n"); ok && strings.HasPrefix(first, emailPrefix) {
		t.Email = strings.TrimPrefix(first, emailPrefix)
		t.Issue = strings.TrimSpace(rest)
	} else {
		t.Issue = body
	}
	return t
}

func issueStatus(issue *github.Issue) Status {
	if issue.GetState() == "closed" {
		return StatusResolved
	}
	for _, l := range issue.Labels {
		if l.GetName() == inProgressLabel {
			return StatusInProgress
		}
	}
	return StatusPending
}
