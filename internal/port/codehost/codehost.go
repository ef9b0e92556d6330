// Package codehost defines the port to the code-hosting service.
package codehost

import (
	"context"
	"fmt"
	"strings"

	"github.com/Strob0t/OpsForge/internal/domain"
)

// Host reads pull requests and repository files and posts review comments.
type Host interface {
	// GetDiff returns the unified diff of a pull request.
	GetDiff(ctx context.Context, owner, repo string, pr int) (string, error)

	// GetFileContent returns the decoded content of path at the default branch.
	GetFileContent(ctx context.Context, owner, repo, path string) (string, error)

	// PostComment adds a comment to the pull request conversation.
	PostComment(ctx context.Context, owner, repo string, pr int, body string) error
}

// Repository is an "owner/name" pair.
type Repository struct {
	Owner string
	Name  string
}

func (r Repository) String() string { return r.Owner + "/" + r.Name }

// ParseRepository splits "owner/name". A leading host such as
// "github.com/" is stripped.
func ParseRepository(s string) (Repository, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".git")
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "github.com/")
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repository{}, fmt.Errorf("%w: repository must be owner/name, got %q", domain.ErrValidation, s)
	}
	return Repository{Owner: owner, Name: name}, nil
}
