// Package deployment defines the Deployment and Revision domain entities and
// the rollback target selection rule.
package deployment

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Strob0t/OpsForge/internal/domain"
)

// Status is the observed rollout status of a deployment.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusAvailable Status = "Available"
	StatusDegraded  Status = "Degraded"
)

// Result statuses reported by the lifecycle controller.
const (
	ResultDeployed    = "deployed"
	ResultScaled      = "scaled"
	ResultRollingBack = "rolling_back"
)

// Per-container resources of deployments created by OpsForge.
const (
	CPURequest    = "100m"
	MemoryRequest = "128Mi"
	CPULimit      = "500m"
	MemoryLimit   = "512Mi"
)

// Condition mirrors an orchestration-level deployment condition.
type Condition struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// Deployment is a named, namespaced workload with a desired image and replica count.
type Deployment struct {
	Name              string      `json:"name"`
	Namespace         string      `json:"namespace"`
	Image             string      `json:"image"`
	Replicas          int32       `json:"replicas"`
	ReadyReplicas     int32       `json:"ready_replicas"`
	AvailableReplicas int32       `json:"available_replicas"`
	Conditions        []Condition `json:"conditions,omitempty"`
	Status            Status      `json:"status"`
	CreatedAt         time.Time   `json:"created_at"`
}

// ID returns the canonical "namespace/name" identifier.
func (d *Deployment) ID() string { return Key(d.Namespace, d.Name) }

// Matches reports whether the deployment already has the desired image and replica count.
func (d *Deployment) Matches(image string, replicas int32) bool {
	return d.Image == image && d.Replicas == replicas
}

// ObservedStatus derives the rollout status from replica counts.
func ObservedStatus(desired, available int32) Status {
	switch {
	case desired == 0 || available >= desired:
		return StatusAvailable
	case available == 0:
		return StatusPending
	default:
		return StatusDegraded
	}
}

// Revision is an immutable historical record of a deployment's image.
// Number is 0 when the orchestration system's revision annotation is missing or unparseable.
type Revision struct {
	Number    int64     `json:"number"`
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the status view returned by Status.
type Snapshot struct {
	DeploymentID      string      `json:"deployment_id"`
	Replicas          int32       `json:"replicas"`
	ReadyReplicas     int32       `json:"ready_replicas"`
	AvailableReplicas int32       `json:"available_replicas"`
	Conditions        []Condition `json:"conditions"`
	Status            Status      `json:"status"`
	Image             string      `json:"image"`
}

// SnapshotOf builds the status view of d.
func SnapshotOf(d *Deployment) Snapshot {
	conds := d.Conditions
	if conds == nil {
		conds = []Condition{}
	}
	return Snapshot{
		DeploymentID:      d.ID(),
		Replicas:          d.Replicas,
		ReadyReplicas:     d.ReadyReplicas,
		AvailableReplicas: d.AvailableReplicas,
		Conditions:        conds,
		Status:            d.Status,
		Image:             d.Image,
	}
}

// DeployRequest asks the controller to converge a deployment to image and replicas.
type DeployRequest struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Image     string `json:"image"`
	Replicas  int32  `json:"replicas"`
}

// DeployResult is returned by Deploy.
type DeployResult struct {
	DeploymentID string `json:"deployment_id"`
	Status       string `json:"status"`
	Replicas     int32  `json:"replicas"`
	Image        string `json:"image"`
	Namespace    string `json:"namespace"`
}

// ScaleResult is returned by Scale.
type ScaleResult struct {
	DeploymentID string `json:"deployment_id"`
	Status       string `json:"status"`
	Replicas     int32  `json:"replicas"`
}

// RollbackResult is returned by Rollback.
type RollbackResult struct {
	DeploymentID   string `json:"deployment_id"`
	PreviousImage  string `json:"previous_image"`
	TargetRevision int64  `json:"target_revision"`
	Status         string `json:"status"`
}

// Key returns the serialization key for a deployment.
func Key(namespace, name string) string { return namespace + "/" + name }

// ParseID splits a "namespace/name" identifier. A bare name uses defaultNamespace.
func ParseID(id, defaultNamespace string) (namespace, name string, err error) {
	ns, n, found := strings.Cut(id, "/")
	if !found {
		ns, n = defaultNamespace, id
	}
	if err := ValidateName(ns, n); err != nil {
		return "", "", err
	}
	return ns, n, nil
}

// dns1123 matches Kubernetes object names.
var dns1123 = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateName checks namespace and name are valid object names.
func ValidateName(namespace, name string) error {
	if name == "" {
		return fmt.Errorf("%w: deployment name is required", domain.ErrValidation)
	}
	if namespace == "" {
		return fmt.Errorf("%w: namespace is required", domain.ErrValidation)
	}
	if len(name) > 63 || !dns1123.MatchString(name) {
		return fmt.Errorf("%w: invalid deployment name %q", domain.ErrValidation, name)
	}
	if len(namespace) > 63 || !dns1123.MatchString(namespace) {
		return fmt.Errorf("%w: invalid namespace %q", domain.ErrValidation, namespace)
	}
	return nil
}

// Validate checks a deploy request.
func (r DeployRequest) Validate() error {
	if err := ValidateName(r.Namespace, r.Name); err != nil {
		return err
	}
	if strings.TrimSpace(r.Image) == "" {
		return fmt.Errorf("%w: image is required", domain.ErrValidation)
	}
	return ValidateReplicas(r.Replicas)
}

// ValidateReplicas rejects negative replica counts.
func ValidateReplicas(replicas int32) error {
	if replicas < 0 {
		return fmt.Errorf("%w: replicas must be >= 0, got %d", domain.ErrValidation, replicas)
	}
	return nil
}
