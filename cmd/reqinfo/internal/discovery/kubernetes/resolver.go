package kubernetes

import (
	"context"
	"fmt"

	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/core"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// PodResolver describes the instance through the Pod it runs in.
type PodResolver struct {
	client    kubernetes.Interface
	namespace string
	podName   string
	base      core.InstanceInfo
}

// NewPodResolver looks up namespace/podName; base supplies the fields the
// API server doesn't know about, like the hostname.
func NewPodResolver(client kubernetes.Interface, namespace, podName string, base core.InstanceInfo) *PodResolver {
	return &PodResolver{
		client:    client,
		namespace: namespace,
		podName:   podName,
		base:      base,
	}
}

func (r *PodResolver) Resolve(ctx context.Context) (core.InstanceInfo, error) {
	if r.podName == "" {
		return core.InstanceInfo{}, fmt.Errorf("pod name is unknown (set POD_NAME via the downward API)")
	}

	pod, err := r.client.CoreV1().Pods(r.namespace).Get(ctx, r.podName, metav1.GetOptions{})
	if err != nil {
		return core.InstanceInfo{}, fmt.Errorf("failed to get pod %s/%s: %w", r.namespace, r.podName, err)
	}

	info := r.base
	info.Pod = pod.Name
	info.Namespace = pod.Namespace
	info.Node = pod.Spec.NodeName
	info.PodIP = pod.Status.PodIP

	return info, nil
}
