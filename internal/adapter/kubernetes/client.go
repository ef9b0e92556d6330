// Package kubernetes implements the orchestrator.Client port over the
// Kubernetes apps/v1 API using client-go.
package kubernetes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/Strob0t/OpsForge/internal/config"
	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/domain/deployment"
	"github.com/Strob0t/OpsForge/internal/port/orchestrator"
)

const (
	appLabel           = "app"
	revisionAnnotation = "deployment.kubernetes.io/revision"
)

// Client talks to a Kubernetes cluster.
type Client struct {
	cs            k8s.Interface
	callTimeout   time.Duration
	containerPort int32
}

var _ orchestrator.Client = (*Client)(nil)

// New wraps an existing clientset.
func New(cs k8s.Interface, callTimeout time.Duration, containerPort int32) *Client {
	if callTimeout <= 0 {
		callTimeout = 15 * time.Second
	}
	if containerPort <= 0 {
		containerPort = 8080
	}
	return &Client{cs: cs, callTimeout: callTimeout, containerPort: containerPort}
}

// NewFromConfig builds a clientset from a kubeconfig path, the in-cluster
// service account, or the default loading rules, in that order.
func NewFromConfig(cfg config.Kubernetes) (*Client, error) {
	restCfg, err := restConfig(cfg.KubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("kubernetes config: %w", err)
	}
	cs, err := k8s.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("kubernetes clientset: %w", err)
	}
	return New(cs, cfg.CallTimeout, cfg.ContainerPort), nil
}

func restConfig(path string) (*rest.Config, error) {
	if path != "" {
		return clientcmd.BuildConfigFromFlags("", path)
	}
	if c, err := rest.InClusterConfig(); err == nil {
		return c, nil
	}
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
}

// Get returns the deployment.
func (c *Client) Get(ctx context.Context, name, namespace string) (*deployment.Deployment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	d, err := c.cs.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, classify(err, "get deployment %s/%s", namespace, name)
	}
	return toDomain(d), nil
}

// CreateOrUpdate creates the deployment or converges an existing one's image and replicas.
func (c *Client) CreateOrUpdate(ctx context.Context, name, namespace, image string, replicas int32) (*deployment.Deployment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	api := c.cs.AppsV1().Deployments(namespace)
	existing, err := api.Get(ctx, name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		created, err := api.Create(ctx, c.manifest(name, namespace, image, replicas), metav1.CreateOptions{})
		if err != nil {
			return nil, classify(err, "create deployment %s/%s", namespace, name)
		}
		slog.InfoContext(ctx, "deployment created", "deployment", namespace+"/"+name, "image", image, "replicas", replicas)
		return toDomain(created), nil
	case err != nil:
		return nil, classify(err, "get deployment %s/%s", namespace, name)
	}

	updated := existing.DeepCopy()
	updated.Spec.Replicas = &replicas
	if len(updated.Spec.Template.Spec.Containers) == 0 {
		return nil, fmt.Errorf("%w: deployment %s/%s has no containers", domain.ErrValidation, namespace, name)
	}
	updated.Spec.Template.Spec.Containers[0].Image = image

	// Update carries the read resourceVersion, so a concurrent writer yields 409.
	out, err := api.Update(ctx, updated, metav1.UpdateOptions{})
	if err != nil {
		return nil, classify(err, "update deployment %s/%s", namespace, name)
	}
	slog.InfoContext(ctx, "deployment updated", "deployment", namespace+"/"+name, "image", image, "replicas", replicas)
	return toDomain(out), nil
}

// PatchImage replaces the image of the first container.
func (c *Client) PatchImage(ctx context.Context, name, namespace, image string) (*deployment.Deployment, error) {
	patch, err := json.Marshal([]map[string]any{{
		"op":    "replace",
		"path":  "/spec/template/spec/containers/0/image",
		"value": image,
	}})
	if err != nil {
		return nil, fmt.Errorf("marshal image patch: %w", err)
	}
	return c.patch(ctx, name, namespace, types.JSONPatchType, patch)
}

// PatchReplicas merge-patches spec.replicas.
func (c *Client) PatchReplicas(ctx context.Context, name, namespace string, replicas int32) (*deployment.Deployment, error) {
	patch, err := json.Marshal(map[string]any{"spec": map[string]any{"replicas": replicas}})
	if err != nil {
		return nil, fmt.Errorf("marshal replicas patch: %w", err)
	}
	return c.patch(ctx, name, namespace, types.MergePatchType, patch)
}

func (c *Client) patch(ctx context.Context, name, namespace string, pt types.PatchType, data []byte) (*deployment.Deployment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	d, err := c.cs.AppsV1().Deployments(namespace).Patch(ctx, name, pt, data, metav1.PatchOptions{})
	if err != nil {
		return nil, classify(err, "patch deployment %s/%s", namespace, name)
	}
	return toDomain(d), nil
}

// ListRevisions returns the ReplicaSets labelled app=<name> and owned by the deployment.
func (c *Client) ListRevisions(ctx context.Context, name, namespace string) ([]deployment.Revision, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	list, err := c.cs.AppsV1().ReplicaSets(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: appLabel + "=" + name,
	})
	if err != nil {
		return nil, classify(err, "list replicasets %s/%s", namespace, name)
	}

	revs := make([]deployment.Revision, 0, len(list.Items))
	for i := range list.Items {
		rs := &list.Items[i]
		if !ownedBy(rs, name) {
			continue
		}
		revs = append(revs, toRevision(rs))
	}
	return revs, nil
}

// ListManaged returns deployments labelled managed-by=opsforge.
func (c *Client) ListManaged(ctx context.Context, namespace string) ([]deployment.Deployment, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	list, err := c.cs.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: orchestrator.ManagedByLabel + "=" + orchestrator.ManagedByValue,
	})
	if err != nil {
		return nil, classify(err, "list deployments in %q", namespace)
	}
	out := make([]deployment.Deployment, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, *toDomain(&list.Items[i]))
	}
	return out, nil
}

func ownedBy(rs *appsv1.ReplicaSet, name string) bool {
	for _, ref := range rs.OwnerReferences {
		if ref.Name == name {
			return true
		}
	}
	return false
}

// classify wraps err with the matching domain sentinel.
func classify(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	var netErr net.Error
	switch {
	case apierrors.IsNotFound(err):
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	case apierrors.IsConflict(err), apierrors.IsAlreadyExists(err):
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrConflict, err)
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrValidation, err)
	case errors.Is(err, context.DeadlineExceeded), apierrors.IsTimeout(err), apierrors.IsServerTimeout(err):
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrTimeout, err)
	case apierrors.IsTooManyRequests(err), apierrors.IsInternalError(err),
		apierrors.IsServiceUnavailable(err), apierrors.IsUnexpectedServerError(err):
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrUpstream, err)
	case errors.As(err, &netErr):
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrUpstream, err)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
