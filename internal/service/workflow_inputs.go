package service

import (
	"fmt"
	"strings"

	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/domain/deployment"
	"github.com/Strob0t/OpsForge/internal/port/codehost"
)

const maxChangedFiles = 50

// CodeReviewInput is the payload of code_review and security tasks.
type CodeReviewInput struct {
	Repository string `json:"repository"`
	PRNumber   int    `json:"pr_number"`
	Model      string `json:"llm_model,omitempty"`
}

func (in CodeReviewInput) repo() (codehost.Repository, error) {
	r, err := codehost.ParseRepository(in.Repository)
	if err != nil {
		return codehost.Repository{}, err
	}
	if in.PRNumber <= 0 {
		return codehost.Repository{}, fmt.Errorf("%w: pr_number must be positive", domain.ErrValidation)
	}
	return r, nil
}

// TestWriterInput is the payload of test_writer tasks.
type TestWriterInput struct {
	Repository   string   `json:"repository"`
	PRNumber     int      `json:"pr_number,omitempty"`
	ChangedFiles []string `json:"changed_files"`
	Model        string   `json:"llm_model,omitempty"`
}

// files returns the deduplicated, non-empty changed files.
func (in TestWriterInput) files() ([]string, error) {
	seen := make(map[string]bool, len(in.ChangedFiles))
	var out []string
	for _, f := range in.ChangedFiles {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: changed_files is required", domain.ErrValidation)
	}
	if len(out) > maxChangedFiles {
		return nil, fmt.Errorf("%w: at most %d changed files, got %d", domain.ErrValidation, maxChangedFiles, len(out))
	}
	return out, nil
}

// DeployInput is the payload of deploy tasks.
type DeployInput struct {
	Repository  string `json:"repository"`
	ImageTag    string `json:"image_tag"`
	Environment string `json:"environment"`
	Replicas    *int32 `json:"replicas,omitempty"`
	ServiceURL  string `json:"service_url,omitempty"`
}

// Environments and the namespaces they deploy to.
const (
	EnvProduction = "production"
	EnvStaging    = "staging"

	namespaceProduction = "prod"
	namespaceStaging    = "staging"
)

// Request maps the input onto the controller's request: production deploys
// to namespace prod with 3 replicas, anything else to staging with 1.
func (in DeployInput) Request() (deployment.DeployRequest, error) {
	repo, err := codehost.ParseRepository(in.Repository)
	if err != nil {
		return deployment.DeployRequest{}, err
	}
	ns, replicas := namespaceStaging, int32(1)
	if in.Environment == EnvProduction {
		ns, replicas = namespaceProduction, 3
	}
	if in.Replicas != nil {
		replicas = *in.Replicas
	}
	req := deployment.DeployRequest{
		Name:      strings.ToLower(repo.Name),
		Namespace: ns,
		Image:     strings.TrimSpace(in.ImageTag),
		Replicas:  replicas,
	}
	return req, req.Validate()
}

// RollbackInput is the payload of rollback tasks.
type RollbackInput struct {
	DeploymentID         string `json:"deployment_id"`
	Strategy             string `json:"rollback_strategy,omitempty"`
	Reason               string `json:"reason,omitempty"`
	ConfirmationRequired bool   `json:"confirmation_required,omitempty"`
}

// MonitorInput is the payload of monitor tasks.
type MonitorInput struct {
	DeploymentID string `json:"deployment_id"`
	ServiceURL   string `json:"service_url,omitempty"`
}

// CostInput is the payload of cost tasks.
type CostInput struct {
	DeploymentID string `json:"deployment_id"`
	Model        string `json:"llm_model,omitempty"`
}

// IncidentInput is the payload of incident tasks.
type IncidentInput struct {
	DeploymentID    string `json:"deployment_id"`
	IncidentType    string `json:"incident_type"`
	Severity        string `json:"severity"`
	Description     string `json:"description,omitempty"`
	AutoRemediation bool   `json:"auto_remediation"`
}

var severities = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}

func (in IncidentInput) validate() error {
	if strings.TrimSpace(in.IncidentType) == "" {
		return fmt.Errorf("%w: incident_type is required", domain.ErrValidation)
	}
	if !severities[in.Severity] {
		return fmt.Errorf("%w: severity must be low, medium, high or critical", domain.ErrValidation)
	}
	return nil
}
