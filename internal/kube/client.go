package kube

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Config holds Kubernetes connection configuration
type Config struct {
	// Kubeconfig is the path to a kubeconfig file. Empty tries in-cluster
	// config first and falls back to ~/.kube/config.
	Kubeconfig string `mapstructure:"kubeconfig"`
	Context    string `mapstructure:"context"`

	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`

	// SummaryRPS throttles kubelet summary requests through the API server
	SummaryRPS   float64 `mapstructure:"summary_rps" validate:"gte=0"`
	SummaryBurst int     `mapstructure:"summary_burst" validate:"gte=0"`

	// MaxConcurrent bounds the number of nodes scraped at once
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"gte=1"`

	// MetricsAPIFallback fills in CPU and memory from metrics.k8s.io
	// for resources the kubelet summary did not report
	MetricsAPIFallback bool `mapstructure:"metrics_api_fallback"`
}

// DefaultConfig returns default Kubernetes configuration
func DefaultConfig() *Config {
	return &Config{
		Timeout:            15 * time.Second,
		SummaryRPS:         20,
		SummaryBurst:       10,
		MaxConcurrent:      8,
		MetricsAPIFallback: true,
	}
}

// Limiter returns the summary rate limiter, or nil when throttling is off
func (c *Config) Limiter() *rate.Limiter {
	if c.SummaryRPS <= 0 {
		return nil
	}
	burst := c.SummaryBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.SummaryRPS), burst)
}

// Clients bundles the API clients the collector needs
type Clients struct {
	Kubernetes kubernetes.Interface
	Metrics    metricsclient.Interface
	Config     *rest.Config
}

// NewClients builds clients from in-cluster config or a kubeconfig file
func NewClients(cfg *Config) (*Clients, error) {
	restConfig, err := restConfig(cfg.Kubeconfig, cfg.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to build config: %w", err)
	}
	restConfig.Timeout = cfg.Timeout

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	metrics, err := metricsclient.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics client: %w", err)
	}

	return &Clients{Kubernetes: clientset, Metrics: metrics, Config: restConfig}, nil
}

func restConfig(kubeconfigPath, context string) (*rest.Config, error) {
	if kubeconfigPath == "" {
		if config, err := rest.InClusterConfig(); err == nil {
			return config, nil
		}
		if home, _ := os.UserHomeDir(); home != "" {
			kubeconfigPath = filepath.Join(home, ".kube", "config")
		}
	}

	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfigPath},
		&clientcmd.ConfigOverrides{CurrentContext: context},
	).ClientConfig()
}
