package factory

import (
	"context"
	"fmt"
	"os"

	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/config"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/core"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/discovery/kubernetes"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/discovery/memory"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/logger"

	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// InstanceFactory creates instance resolvers based on configuration
type InstanceFactory struct {
	cfg *config.Config
}

// NewInstanceFactory creates a new instance factory
func NewInstanceFactory(cfg *config.Config) *InstanceFactory {
	return &InstanceFactory{cfg: cfg}
}

// Create creates an instance resolver based on configuration
func (f *InstanceFactory) Create(ctx context.Context) (core.InstanceResolver, error) {
	switch f.cfg.DiscoveryMode {
	case config.DiscoveryStatic:
		return f.createStaticResolver(), nil
	case config.DiscoveryKubernetes:
		return f.createKubernetesResolver()
	default:
		return nil, fmt.Errorf("unknown discovery mode: %s", f.cfg.DiscoveryMode)
	}
}

// Resolve looks the instance up and falls back to the static details on any
// failure; the page can be served without them.
func (f *InstanceFactory) Resolve(ctx context.Context) core.InstanceInfo {
	static := f.baseInfo()

	resolver, err := f.Create(ctx)
	if err != nil {
		logger.Warn("Instance discovery unavailable, using static details", "error", err)
		return static
	}

	info, err := resolver.Resolve(ctx)
	if err != nil {
		logger.Warn("Instance lookup failed, using static details", "error", err)
		return static
	}

	logger.Info("Instance resolved", "pod", info.Pod, "namespace", info.Namespace, "node", info.Node)
	return info
}

func (f *InstanceFactory) baseInfo() core.InstanceInfo {
	hostname, _ := os.Hostname()
	info := core.InstanceInfo{
		Runtime:  string(f.cfg.Runtime),
		Hostname: hostname,
	}

	if f.cfg.Runtime == config.RuntimeKubernetes {
		info.Pod = f.cfg.PodName
		info.Namespace = f.cfg.Namespace
	}

	return info
}

func (f *InstanceFactory) createStaticResolver() core.InstanceResolver {
	logger.Info("Creating Static Instance Resolver", "runtime", f.cfg.Runtime)
	return memory.NewResolver(f.baseInfo())
}

func (f *InstanceFactory) createKubernetesResolver() (core.InstanceResolver, error) {
	logger.Info("Creating Kubernetes Instance Resolver",
		"runtime", f.cfg.Runtime,
		"kubeconfig", f.cfg.KubeConfigPath,
		"context", f.cfg.KubeContext)

	restConfig, err := f.restConfig()
	if err != nil {
		return nil, err
	}

	clientset, err := k8s.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return kubernetes.NewPodResolver(clientset, f.cfg.Namespace, f.cfg.PodName, f.baseInfo()), nil
}

func (f *InstanceFactory) restConfig() (*rest.Config, error) {
	kubeconfig := f.cfg.KubeConfigPath

	// Outside a cluster only a kubeconfig can work
	if f.cfg.Runtime != config.RuntimeKubernetes && kubeconfig == "" {
		if home := os.Getenv("HOME"); home != "" {
			kubeconfig = home + "/.kube/config"
		}
	}

	configOverrides := &clientcmd.ConfigOverrides{}
	if f.cfg.KubeContext != "" {
		configOverrides.CurrentContext = f.cfg.KubeContext
	}

	if kubeconfig != "" {
		restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
			configOverrides,
		).ClientConfig()
		if err == nil {
			return restConfig, nil
		}

		logger.Warn("Failed to load kubeconfig, will try in-cluster config", "error", err)
	}

	restConfig, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build kubernetes config (tried kubeconfig and in-cluster): %w", err)
	}

	return restConfig, nil
}
