package service

import (
	"context"
	"fmt"

	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/domain/analysis"
	"github.com/Strob0t/OpsForge/internal/port/llm"
	"github.com/Strob0t/OpsForge/internal/port/notifier"
)

// Review status reported when the model output could not be decoded.
const statusUnparsed = "unparsed"

// CodeReviewResult is the result of a code_review task.
type CodeReviewResult struct {
	Repository string `json:"repository"`
	PRNumber   int    `json:"pr_number"`
	analysis.Review
	Structured    bool   `json:"structured"`
	RawAnalysis   string `json:"raw_analysis,omitempty"`
	CommentPosted bool   `json:"comment_posted"`
	CommentError  string `json:"comment_error,omitempty"`
}

func (p *PipelineService) planCodeReview(x *execution) (*plan, error) {
	var in CodeReviewInput
	if err := decodeInput(x.task.Input, &in); err != nil {
		return nil, err
	}
	repo, err := in.repo()
	if err != nil {
		return nil, err
	}

	res := &CodeReviewResult{Repository: repo.String(), PRNumber: in.PRNumber, Review: emptyReview()}
	var diff string

	return &plan{
		steps: []Step{
			fetchStep("fetch_diff", func(ctx context.Context) error {
				d, err := p.host.GetDiff(ctx, repo.Owner, repo.Name, in.PRNumber)
				diff = d
				return err
			}),
			analyzeStep("review", func(ctx context.Context) error {
				prompt, err := render("code_review", struct{ Repository, Diff string }{repo.String(), truncate(diff)})
				if err != nil {
					return err
				}
				text, err := p.complete(ctx, in.Model, prompt)
				if err != nil {
					return err
				}
				out := analysis.Parse[analysis.Review](text)
				if review, ok := out.Value(); ok {
					res.Review = review
					res.Structured = true
				} else {
					res.Review = emptyReview()
					res.Review.Status = statusUnparsed
					res.Review.Summary = "The review could not be decoded; see raw_analysis."
					res.RawAnalysis = out.Raw()
				}
				if res.Issues == nil {
					res.Issues = []analysis.Issue{}
				}
				if res.Recommendations == nil {
					res.Recommendations = []string{}
				}
				return nil
			}),
			{
				Name:   "post_comment",
				Kind:   agenttask.StepAct,
				Absorb: true,
				Run: func(ctx context.Context) error {
					body, err := reviewComment(res)
					if err != nil {
						res.CommentError = err.Error()
						return err
					}
					if err := p.host.PostComment(ctx, repo.Owner, repo.Name, in.PRNumber, body); err != nil {
						res.CommentError = err.Error()
						return err
					}
					res.CommentPosted = true
					return nil
				},
			},
			notifyStep("notify", func(ctx context.Context) error {
				p.notifier.Notify(ctx, notifier.Notification{
					Title:   fmt.Sprintf("Review of %s#%d: %s", repo, in.PRNumber, res.Status),
					Message: res.Summary,
					Level:   reviewLevel(res.Status),
					Source:  SourceReviewCompleted,
					Fields:  map[string]string{"score": fmt.Sprint(res.Score), "issues": fmt.Sprint(len(res.Issues))},
				})
				return nil
			}),
		},
		result: func() any { return res },
	}, nil
}

func emptyReview() analysis.Review {
	return analysis.Review{Issues: []analysis.Issue{}, Recommendations: []string{}}
}

func reviewComment(res *CodeReviewResult) (string, error) {
	if !res.Structured {
		return "## OpsForge code review\n\n" + res.RawAnalysis, nil
	}
	return render("review_comment", res.Review)
}

func reviewLevel(status string) string {
	switch status {
	case "approved":
		return notifier.LevelSuccess
	case "rejected":
		return notifier.LevelError
	case "needs_changes", statusUnparsed:
		return notifier.LevelWarning
	default:
		return notifier.LevelInfo
	}
}

// SecurityResult is the result of a security task.
type SecurityResult struct {
	Repository string `json:"repository"`
	PRNumber   int    `json:"pr_number"`
	analysis.SecurityReport
	Structured  bool   `json:"structured"`
	RawAnalysis string `json:"raw_analysis,omitempty"`
	Notified    bool   `json:"notified"`
}

func (p *PipelineService) planSecurity(x *execution) (*plan, error) {
	var in CodeReviewInput
	if err := decodeInput(x.task.Input, &in); err != nil {
		return nil, err
	}
	repo, err := in.repo()
	if err != nil {
		return nil, err
	}

	res := &SecurityResult{
		Repository:     repo.String(),
		PRNumber:       in.PRNumber,
		SecurityReport: analysis.SecurityReport{Vulnerabilities: []analysis.Issue{}, Recommendations: []string{}},
	}
	var diff string

	return &plan{
		steps: []Step{
			fetchStep("fetch_diff", func(ctx context.Context) error {
				d, err := p.host.GetDiff(ctx, repo.Owner, repo.Name, in.PRNumber)
				diff = d
				return err
			}),
			analyzeStep("security_scan", func(ctx context.Context) error {
				prompt, err := render("security", struct{ Repository, Diff string }{repo.String(), truncate(diff)})
				if err != nil {
					return err
				}
				text, err := p.complete(ctx, in.Model, prompt)
				if err != nil {
					return err
				}
				out := analysis.Parse[analysis.SecurityReport](text)
				if report, ok := out.Value(); ok {
					res.SecurityReport = report
					res.Structured = true
				} else {
					// Undecodable output is reported as medium risk.
					res.RiskLevel = analysis.RiskMedium
					res.Summary = "The security analysis could not be decoded; see raw_analysis."
					res.RawAnalysis = out.Raw()
				}
				if res.Vulnerabilities == nil {
					res.Vulnerabilities = []analysis.Issue{}
				}
				if res.Recommendations == nil {
					res.Recommendations = []string{}
				}
				return nil
			}),
			notifyStep("notify_high_risk", func(ctx context.Context) error {
				if !res.NeedsAttention() {
					return nil
				}
				p.notifier.Notify(ctx, notifier.Notification{
					Title:   fmt.Sprintf("Security risk %s in %s#%d", res.RiskLevel, repo, in.PRNumber),
					Message: res.Summary,
					Level:   notifier.LevelError,
					Source:  SourceSecurityHighRisk,
					Fields:  map[string]string{"vulnerabilities": fmt.Sprint(len(res.Vulnerabilities))},
				})
				res.Notified = true
				return nil
			}),
		},
		result: func() any { return res },
	}, nil
}

// complete runs one LLM call and records it in the metrics.
func (p *PipelineService) complete(ctx context.Context, model, prompt string) (string, error) {
	resp, err := p.llm.Complete(ctx, llm.Request{Prompt: prompt, Model: model})
	if resp.Model == "" {
		resp.Model = model
	}
	p.metrics.LLMCall(ctx, resp.Model, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens), err)
	if err != nil {
		return "", fmt.Errorf("llm: %w", err)
	}
	return resp.Content, nil
}
