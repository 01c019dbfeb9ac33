package kube

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/tsanders-rh/kubecostd/internal/logging"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// ErrNoSamples is returned when no node could be sampled
var ErrNoSamples = errors.New("no samples collected")

// Source samples every node of the cluster through the kubelet summary API
type Source struct {
	client        kubernetes.Interface
	fetcher       SummaryFetcher
	metrics       metricsclient.Interface
	limiter       *rate.Limiter
	maxConcurrent int
	logger        *zap.Logger
}

// NewSource creates a sample source from connected clients
func NewSource(clients *Clients, cfg *Config, logger *zap.Logger) *Source {
	var metrics metricsclient.Interface
	if cfg.MetricsAPIFallback {
		metrics = clients.Metrics
	}
	fetcher := NewProxyFetcher(clients.Kubernetes.CoreV1().RESTClient())
	return NewSourceWith(clients.Kubernetes, fetcher, metrics, cfg, logger)
}

// NewSourceWith creates a sample source from explicit collaborators. metrics may be nil.
func NewSourceWith(client kubernetes.Interface, fetcher SummaryFetcher, metrics metricsclient.Interface, cfg *Config, logger *zap.Logger) *Source {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Source{
		client:        client,
		fetcher:       fetcher,
		metrics:       metrics,
		limiter:       cfg.Limiter(),
		maxConcurrent: maxConcurrent,
		logger:        logging.OrNop(logger).Named("kube"),
	}
}

// Collect samples every node, pod and container at the given instant. A node
// whose summary cannot be read is skipped; Collect only fails when nothing
// at all was sampled.
func (s *Source) Collect(ctx context.Context, at time.Time) ([]types.Sample, error) {
	at = at.UTC().Truncate(time.Second)

	nodes, err := s.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	var (
		mu      sync.Mutex
		samples []types.Sample
		failed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for idx := range nodes.Items {
		name := nodes.Items[idx].Name
		g.Go(func() error {
			if s.limiter != nil {
				if err := s.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			summary, err := s.fetcher.Summary(gctx, name)
			if err != nil {
				s.logger.Warn("failed to read node summary", zap.String("node", name), zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			mapped := SummarySamples(summary, at)
			mu.Lock()
			samples = append(samples, mapped...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect summaries: %w", err)
	}

	if s.metrics != nil && (failed > 0 || len(samples) == 0) {
		fallback, err := MetricsAPISamples(ctx, s.metrics, at)
		if err != nil {
			s.logger.Warn("metrics API fallback failed", zap.Error(err))
		} else {
			samples = Merge(fallback, samples)
		}
	}

	if len(samples) == 0 && len(nodes.Items) > 0 {
		return nil, ErrNoSamples
	}

	s.logger.Debug("collected samples",
		zap.Int("nodes", len(nodes.Items)),
		zap.Int("failed", failed),
		zap.Int("samples", len(samples)))
	return samples, nil
}

// Merge overlays the samples of next onto base, resource by resource, and
// returns them ordered by kind and key
func Merge(base, next []types.Sample) []types.Sample {
	type id struct {
		kind types.ResourceKind
		key  string
	}
	merged := make(map[id]types.Record, len(base)+len(next))
	for _, group := range [][]types.Sample{base, next} {
		for _, smp := range group {
			k := id{smp.Kind, smp.Key}
			if prev, ok := merged[k]; ok {
				merged[k] = types.Overlay(prev, smp.Record)
			} else {
				merged[k] = smp.Record
			}
		}
	}

	out := make([]types.Sample, 0, len(merged))
	for k, rec := range merged {
		out = append(out, types.Sample{Kind: k.kind, Key: k.key, Record: rec})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return kindOrder(out[i].Kind) < kindOrder(out[j].Kind)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func kindOrder(k types.ResourceKind) int {
	for i, kind := range types.ResourceKinds {
		if kind == k {
			return i
		}
	}
	return len(types.ResourceKinds)
}
