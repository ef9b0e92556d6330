package kubernetes

import (
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/Strob0t/OpsForge/internal/domain/deployment"
	"github.com/Strob0t/OpsForge/internal/port/orchestrator"
)

// manifest builds the Deployment created for a new workload.
func (c *Client) manifest(name, namespace, image string, replicas int32) *appsv1.Deployment {
	labels := map[string]string{
		appLabel:                    name,
		orchestrator.ManagedByLabel: orchestrator.ManagedByValue,
	}
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{appLabel: name},
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{appLabel: name},
				},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  name,
						Image: image,
						Ports: []corev1.ContainerPort{{ContainerPort: c.containerPort}},
						Resources: corev1.ResourceRequirements{
							Requests: corev1.ResourceList{
								corev1.ResourceMemory: resource.MustParse(deployment.MemoryRequest),
								corev1.ResourceCPU:    resource.MustParse(deployment.CPURequest),
							},
							Limits: corev1.ResourceList{
								corev1.ResourceMemory: resource.MustParse(deployment.MemoryLimit),
								corev1.ResourceCPU:    resource.MustParse(deployment.CPULimit),
							},
						},
					}},
				},
			},
		},
	}
}

func toDomain(d *appsv1.Deployment) *deployment.Deployment {
	replicas := int32(1)
	if d.Spec.Replicas != nil {
		replicas = *d.Spec.Replicas
	}
	var image string
	if cs := d.Spec.Template.Spec.Containers; len(cs) > 0 {
		image = cs[0].Image
	}
	conds := make([]deployment.Condition, 0, len(d.Status.Conditions))
	for _, c := range d.Status.Conditions {
		conds = append(conds, deployment.Condition{
			Type:    string(c.Type),
			Status:  string(c.Status),
			Reason:  c.Reason,
			Message: c.Message,
		})
	}
	return &deployment.Deployment{
		Name:              d.Name,
		Namespace:         d.Namespace,
		Image:             image,
		Replicas:          replicas,
		ReadyReplicas:     d.Status.ReadyReplicas,
		AvailableReplicas: d.Status.AvailableReplicas,
		Conditions:        conds,
		Status:            deployment.ObservedStatus(replicas, d.Status.AvailableReplicas),
		CreatedAt:         d.CreationTimestamp.Time,
	}
}

// toRevision reads the revision number annotation. A missing or
// unparseable annotation becomes revision 0.
func toRevision(rs *appsv1.ReplicaSet) deployment.Revision {
	n, err := strconv.ParseInt(rs.Annotations[revisionAnnotation], 10, 64)
	if err != nil {
		n = 0
	}
	var image string
	if cs := rs.Spec.Template.Spec.Containers; len(cs) > 0 {
		image = cs[0].Image
	}
	return deployment.Revision{
		Number:    n,
		Image:     image,
		CreatedAt: rs.CreationTimestamp.Time,
	}
}
