package kubernetes

import (
	"context"
	"testing"

	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/core"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestPodResolver(t *testing.T) {
	client := fake.NewSimpleClientset(&corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "reqinfo-7d9f8-abcde",
			Namespace: "debug",
		},
		Spec: corev1.PodSpec{
			NodeName: "worker-2",
		},
		Status: corev1.PodStatus{
			PodIP: "10.1.2.3",
		},
	})
	base := core.InstanceInfo{Runtime: "kubernetes", Hostname: "reqinfo-7d9f8-abcde"}

	t.Run("found", func(t *testing.T) {
		info, err := NewPodResolver(client, "debug", "reqinfo-7d9f8-abcde", base).Resolve(context.Background())
		require.NoError(t, err)
		require.Equal(t, core.InstanceInfo{
			Runtime:   "kubernetes",
			Hostname:  "reqinfo-7d9f8-abcde",
			Pod:       "reqinfo-7d9f8-abcde",
			Namespace: "debug",
			Node:      "worker-2",
			PodIP:     "10.1.2.3",
		}, info)
	})

	t.Run("wrong namespace", func(t *testing.T) {
		_, err := NewPodResolver(client, "default", "reqinfo-7d9f8-abcde", base).Resolve(context.Background())
		require.Error(t, err)
		require.True(t, apierrors.IsNotFound(err))
	})

	t.Run("unknown pod name", func(t *testing.T) {
		_, err := NewPodResolver(client, "debug", "", base).Resolve(context.Background())
		require.ErrorContains(t, err, "POD_NAME")
	})
}
