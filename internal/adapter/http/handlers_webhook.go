package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v74/github"

	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/service"
)

const maxWebhookBody = 5 << 20

// reviewActions are the pull_request actions that trigger a code review.
var reviewActions = map[string]bool{
	"opened":           true,
	"reopened":         true,
	"synchronize":      true,
	"ready_for_review": true,
}

// GitHubWebhook handles POST /api/v1/webhooks/github. The signature is
// verified by middleware before this runs. Pull requests that are opened or
// updated queue a code_review task.
func (h *Handlers) GitHubWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	payload, err := github.ParseWebHook(github.WebHookType(r), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported webhook payload")
		return
	}

	switch ev := payload.(type) {
	case *github.PingEvent:
		writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
		return
	case *github.PullRequestEvent:
		if !reviewActions[ev.GetAction()] || ev.GetPullRequest().GetDraft() {
			break
		}
		in := service.CodeReviewInput{Repository: ev.GetRepo().GetFullName(), PRNumber: ev.GetNumber()}
		t, err := h.tasks.Submit(r.Context(), agenttask.KindCodeReview, mustJSON(in), "")
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		slog.InfoContext(r.Context(), "code review queued from webhook",
			"delivery", github.DeliveryID(r), "repository", in.Repository, "pr", in.PRNumber, "task_id", t.ID)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "task_id": t.ID})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
}
