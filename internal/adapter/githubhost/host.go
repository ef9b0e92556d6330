// Package githubhost implements codehost.Host for GitHub using go-github.
package githubhost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v74/github"

	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/port/codehost"
	"github.com/Strob0t/OpsForge/internal/resilience"
)

// Host implements codehost.Host for GitHub.
type Host struct {
	gh      *github.Client
	breaker *resilience.Breaker
}

var _ codehost.Host = (*Host)(nil)

// New creates a Host. An empty baseURL targets api.github.com; an empty
// token sends unauthenticated requests.
func New(token, baseURL string, httpClient *http.Client) (*Host, error) {
	gh := github.NewClient(httpClient)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
		gh.BaseURL = u
	}
	return &Host{gh: gh}, nil
}

// SetBreaker attaches a circuit breaker to all API calls.
func (h *Host) SetBreaker(b *resilience.Breaker) { h.breaker = b }

// GetDiff returns the unified diff of a pull request.
func (h *Host) GetDiff(ctx context.Context, owner, repo string, pr int) (string, error) {
	var diff string
	err := h.call(func() error {
		d, resp, err := h.gh.PullRequests.GetRaw(ctx, owner, repo, pr, github.RawOptions{Type: github.Diff})
		if err != nil {
			return classify(resp, err, "get diff %s/%s#%d", owner, repo, pr)
		}
		diff = d
		return nil
	})
	return diff, err
}

// GetFileContent returns the decoded content of a file on the default branch.
func (h *Host) GetFileContent(ctx context.Context, owner, repo, path string) (string, error) {
	var content string
	err := h.call(func() error {
		file, _, resp, err := h.gh.Repositories.GetContents(ctx, owner, repo, path, nil)
		if err != nil {
			return classify(resp, err, "get %s in %s/%s", path, owner, repo)
		}
		if file == nil {
			return fmt.Errorf("%w: %s in %s/%s is a directory", domain.ErrValidation, path, owner, repo)
		}
		c, err := file.GetContent()
		if err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		content = c
		return nil
	})
	return content, err
}

// PostComment adds a comment to the pull request conversation.
func (h *Host) PostComment(ctx context.Context, owner, repo string, pr int, body string) error {
	return h.call(func() error {
		_, resp, err := h.gh.Issues.CreateComment(ctx, owner, repo, pr, &github.IssueComment{Body: github.Ptr(body)})
		if err != nil {
			return classify(resp, err, "comment on %s/%s#%d", owner, repo, pr)
		}
		return nil
	})
}

func (h *Host) call(fn func() error) error {
	if h.breaker == nil {
		return fn()
	}
	err := h.breaker.Execute(fn)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("github: %w: %w", domain.ErrUpstream, err)
	}
	return err
}

func classify(resp *github.Response, err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrTimeout, err)
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrUpstream, err)
	case errors.Is(err, github.ErrPathForbidden):
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrValidation, err)
	}
	if resp == nil {
		// Transport failure before any response arrived.
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrUpstream, err)
	}
	switch code := resp.StatusCode; {
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrUpstream, err)
	case code == http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrValidation, err)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
