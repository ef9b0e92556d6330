// Package orchestrator defines the port to the cluster orchestration API.
package orchestrator

import (
	"context"

	"github.com/Strob0t/OpsForge/internal/domain/deployment"
)

// ManagedByLabel marks deployments created by OpsForge.
const (
	ManagedByLabel = "managed-by"
	ManagedByValue = "opsforge"
)

// Client is a thin adapter over the cluster's deployment API.
//
// Every method is a blocking call to the backing API. Errors wrap
// domain.ErrNotFound (permanent), domain.ErrConflict (concurrent write),
// domain.ErrUpstream or domain.ErrTimeout (transient).
type Client interface {
	// Get returns the deployment or an error wrapping domain.ErrNotFound.
	Get(ctx context.Context, name, namespace string) (*deployment.Deployment, error)

	// CreateOrUpdate creates the deployment, or updates image and replicas of an existing one.
	CreateOrUpdate(ctx context.Context, name, namespace, image string, replicas int32) (*deployment.Deployment, error)

	// PatchImage changes only the container image.
	PatchImage(ctx context.Context, name, namespace, image string) (*deployment.Deployment, error)

	// PatchReplicas changes only the replica count.
	PatchReplicas(ctx context.Context, name, namespace string, replicas int32) (*deployment.Deployment, error)

	// ListRevisions returns the revision records owned by the deployment, in discovery order.
	ListRevisions(ctx context.Context, name, namespace string) ([]deployment.Revision, error)

	// ListManaged returns deployments labelled managed-by=opsforge in namespace ("" = all).
	ListManaged(ctx context.Context, namespace string) ([]deployment.Deployment, error)
}
