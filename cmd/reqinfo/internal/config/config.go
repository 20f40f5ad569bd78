package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/handler"
	"github.com/hasirciogluhq/reqinfo/cmd/reqinfo/internal/parser/http1"
)

const DefaultPort = "80"

// RuntimeEnvironment represents the execution environment
type RuntimeEnvironment string

const (
	RuntimeKubernetes RuntimeEnvironment = "kubernetes"
	RuntimeContainer  RuntimeEnvironment = "container"
	RuntimeVM         RuntimeEnvironment = "vm"
)

// DiscoveryMode selects where the served-by instance details come from
type DiscoveryMode string

const (
	DiscoveryKubernetes DiscoveryMode = "kubernetes"
	DiscoveryStatic     DiscoveryMode = "static"
)

// Config holds all application configuration
type Config struct {
	// Core
	Debug bool

	// Server
	Port             string
	BindHost         string
	ReadBufferSize   int
	MaxHeadSize      int
	HealthServerPort string // empty disables the health server
	ShutdownTimeout  time.Duration

	// Runtime
	Runtime   RuntimeEnvironment
	Namespace string
	PodName   string

	// Instance discovery
	DiscoveryMode  DiscoveryMode
	KubeConfigPath string
	KubeContext    string
}

// Load builds the configuration from the command line arguments (without the
// program name) and the optional environment knobs. The only argument is the
// port to listen on.
func Load(args []string) (*Config, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("too many arguments: %q (usage: reqinfo [port])", args)
	}

	port := DefaultPort
	if len(args) == 1 {
		port = args[0]
	}

	cfg := &Config{
		// Core
		Debug: getEnvBool("DEBUG", false),

		// Server
		Port:             port,
		BindHost:         getEnv("BIND_HOST", ""),
		ReadBufferSize:   getEnvInt("READ_BUFFER_SIZE", handler.DefaultReadBufferSize),
		MaxHeadSize:      getEnvInt("MAX_HEAD_SIZE", http1.DefaultMaxHeadSize),
		HealthServerPort: getEnv("HEALTH_SERVER_PORT", ""),
		ShutdownTimeout:  time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,

		// Runtime - Auto-detect or explicit
		Runtime:   determineRuntime(),
		Namespace: determineNamespace(),
		PodName:   determinePodName(),

		// Instance discovery
		KubeConfigPath: getEnv("KUBECONFIG", ""),
		KubeContext:    getEnv("KUBE_CONTEXT", ""),
	}
	cfg.DiscoveryMode = determineDiscoveryMode(cfg.Runtime)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate ensures configuration is coherent
func (c *Config) validate() error {
	if err := validatePort("port", c.Port); err != nil {
		return err
	}

	if c.HealthServerPort != "" {
		if err := validatePort("HEALTH_SERVER_PORT", c.HealthServerPort); err != nil {
			return err
		}
		if c.HealthServerPort == c.Port {
			return fmt.Errorf("HEALTH_SERVER_PORT must differ from the listening port %s", c.Port)
		}
	}

	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("READ_BUFFER_SIZE must be positive, got %d", c.ReadBufferSize)
	}

	if c.MaxHeadSize < c.ReadBufferSize {
		return fmt.Errorf("MAX_HEAD_SIZE (%d) must not be smaller than READ_BUFFER_SIZE (%d)",
			c.MaxHeadSize, c.ReadBufferSize)
	}

	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT_SECONDS must not be negative")
	}

	return nil
}

// validatePort accepts numeric ports and service names; the transport
// resolves the latter.
func validatePort(name, port string) error {
	if port == "" {
		return fmt.Errorf("%s must not be empty", name)
	}

	if n, err := strconv.Atoi(port); err == nil && (n < 0 || n > 65535) {
		return fmt.Errorf("%s out of range: %s", name, port)
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func determineRuntime() RuntimeEnvironment {
	// Explicit runtime setting
	if runtime := os.Getenv("RUNTIME"); runtime != "" {
		switch strings.ToLower(runtime) {
		case "kubernetes", "k8s":
			return RuntimeKubernetes
		case "container", "docker":
			return RuntimeContainer
		case "vm", "virtual-machine", "bare-metal":
			return RuntimeVM
		}
	}

	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return RuntimeKubernetes
	}

	if _, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount"); err == nil {
		return RuntimeKubernetes
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return RuntimeContainer
	}

	return RuntimeVM
}

func determineNamespace() string {
	if ns := os.Getenv("NAMESPACE"); ns != "" {
		return ns
	}

	// Kubernetes downward API
	if ns := os.Getenv("POD_NAMESPACE"); ns != "" {
		return ns
	}

	// Read from service account (in-cluster)
	if data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
		return strings.TrimSpace(string(data))
	}

	return "default"
}

// determinePodName falls back to the hostname, which Kubernetes sets to the
// pod name unless the pod spec overrides it.
func determinePodName() string {
	if name := os.Getenv("POD_NAME"); name != "" {
		return name
	}

	hostname, _ := os.Hostname()
	return hostname
}

func determineDiscoveryMode(runtime RuntimeEnvironment) DiscoveryMode {
	if mode := os.Getenv("INSTANCE_DISCOVERY"); mode != "" {
		if strings.ToLower(mode) == "kubernetes" || strings.ToLower(mode) == "k8s" {
			return DiscoveryKubernetes
		}
		return DiscoveryStatic
	}

	if runtime == RuntimeKubernetes {
		return DiscoveryKubernetes
	}

	return DiscoveryStatic
}
