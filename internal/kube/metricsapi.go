package kube

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// MetricsAPISamples lists node and pod usage from metrics.k8s.io. It only
// carries CPU rate and working set, so it is used to fill gaps in the
// kubelet summary, never to replace it.
func MetricsAPISamples(ctx context.Context, client metricsclient.Interface, at time.Time) ([]types.Sample, error) {
	nodes, err := client.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list node metrics: %w", err)
	}
	pods, err := client.MetricsV1beta1().PodMetricses(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list pod metrics: %w", err)
	}

	samples := make([]types.Sample, 0, len(nodes.Items)+len(pods.Items))
	for i := range nodes.Items {
		samples = append(samples, NodeMetricsSample(&nodes.Items[i], at))
	}
	for i := range pods.Items {
		samples = append(samples, PodMetricsSamples(&pods.Items[i], at)...)
	}
	return samples, nil
}

// NodeMetricsSample maps one NodeMetrics object
func NodeMetricsSample(m *metricsv1beta1.NodeMetrics, at time.Time) types.Sample {
	rec := types.NewRecord(at)
	setUsage(&rec, m.Usage)
	return types.Sample{Kind: types.ResourceKindNode, Key: m.Name, Record: rec}
}

// PodMetricsSamples maps one PodMetrics object into a pod sample summed over
// its containers, followed by one sample per container
func PodMetricsSamples(m *metricsv1beta1.PodMetrics, at time.Time) []types.Sample {
	podKey := m.Namespace + "/" + m.Name
	pod := types.NewRecord(at)
	samples := make([]types.Sample, 0, len(m.Containers)+1)
	samples = append(samples, types.Sample{})

	for _, c := range m.Containers {
		rec := types.NewRecord(at)
		setUsage(&rec, c.Usage)
		for field, v := range rec.Values {
			prev, _ := pod.Get(field)
			pod.Set(field, prev+v)
		}
		samples = append(samples, types.Sample{Kind: types.ResourceKindContainer, Key: podKey + "/" + c.Name, Record: rec})
	}

	samples[0] = types.Sample{Kind: types.ResourceKindPod, Key: podKey, Record: pod}
	return samples
}

func setUsage(rec *types.Record, usage corev1.ResourceList) {
	if q, ok := usage[corev1.ResourceCPU]; ok {
		rec.Set(tsdb.FieldCPUUsageNanoCores, nonNegative(q.ScaledValue(resource.Nano)))
	}
	if q, ok := usage[corev1.ResourceMemory]; ok {
		rec.Set(tsdb.FieldMemoryWorkingSetBytes, nonNegative(q.Value()))
	}
}

func nonNegative(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
