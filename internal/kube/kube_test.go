package kube_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	statsapi "k8s.io/kubelet/pkg/apis/stats/v1alpha1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"

	"github.com/tsanders-rh/kubecostd/internal/kube"
	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

const summaryJSON = `{
  "node": {
    "nodeName": "node-a",
    "cpu": {"time": "2024-05-01T10:00:00Z", "usageNanoCores": 1500000000, "usageCoreNanoSeconds": 90000000000},
    "memory": {"time": "2024-05-01T10:00:00Z", "usageBytes": 4000, "workingSetBytes": 3000, "rssBytes": 2000, "pageFaults": 7},
    "network": {"time": "2024-05-01T10:00:00Z", "rxBytes": 100, "rxErrors": 0, "txBytes": 200, "txErrors": 1},
    "fs": {"time": "2024-05-01T10:00:00Z", "capacityBytes": 1000000, "usedBytes": 250000, "inodes": 500, "inodesUsed": 50}
  },
  "pods": [
    {
      "podRef": {"name": "web-0", "namespace": "shop", "uid": "u1"},
      "cpu": {"time": "2024-05-01T10:00:00Z", "usageNanoCores": 250000000},
      "memory": {"time": "2024-05-01T10:00:00Z", "workingSetBytes": 512},
      "ephemeral-storage": {"time": "2024-05-01T10:00:00Z", "usedBytes": 64, "capacityBytes": 1000000},
      "volume": [
        {"name": "data", "usedBytes": 10, "capacityBytes": 100, "pvcRef": {"name": "data-web-0", "namespace": "shop"}},
        {"name": "cache", "usedBytes": 20, "capacityBytes": 200, "pvcRef": {"name": "cache-web-0", "namespace": "shop"}},
        {"name": "kube-api-access", "usedBytes": 4, "capacityBytes": 8}
      ],
      "containers": [
        {"name": "app", "cpu": {"usageNanoCores": 200000000}, "rootfs": {"usedBytes": 32, "capacityBytes": 1000000, "inodesUsed": 3}},
        {"name": "", "cpu": {"usageNanoCores": 1}}
      ]
    },
    {"podRef": {"name": "", "namespace": "shop"}}
  ]
}`

var at = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func find(t *testing.T, samples []types.Sample, kind types.ResourceKind, key string) types.Record {
	t.Helper()
	for _, s := range samples {
		if s.Kind == kind && s.Key == key {
			return s.Record
		}
	}
	t.Fatalf("no %s sample for %q", kind, key)
	return types.Record{}
}

func checkSchema(t *testing.T, kind types.ResourceKind, rec types.Record) {
	t.Helper()
	schema, err := tsdb.SchemaFor(kind)
	require.NoError(t, err)
	require.NoError(t, schema.Check(rec))
}

func TestSummarySamples(t *testing.T) {
	summary, err := kube.ParseSummary([]byte(summaryJSON))
	require.NoError(t, err)

	samples := kube.SummarySamples(summary, at)
	require.Len(t, samples, 3, "node, one pod, one named container")

	node := find(t, samples, types.ResourceKindNode, "node-a")
	assert.Equal(t, at, node.Time)
	assert.Equal(t, uint64(1500000000), node.Values[tsdb.FieldCPUUsageNanoCores])
	assert.Equal(t, uint64(90000000000), node.Values[tsdb.FieldCPUUsageCoreNanoSeconds])
	assert.Equal(t, uint64(3000), node.Values[tsdb.FieldMemoryWorkingSetBytes])
	assert.Equal(t, uint64(0), node.Values[tsdb.FieldNetworkRxErrors])
	assert.Equal(t, uint64(250000), node.Values[tsdb.FieldFsUsedBytes])
	assert.Equal(t, uint64(500), node.Values[tsdb.FieldFsInodes])
	checkSchema(t, types.ResourceKindNode, node)

	pod := find(t, samples, types.ResourceKindPod, "shop/web-0")
	assert.Equal(t, uint64(64), pod.Values[tsdb.FieldEphemeralUsedBytes])
	assert.Equal(t, uint64(30), pod.Values[tsdb.FieldPersistentUsedBytes], "only claim-backed volumes")
	assert.Equal(t, uint64(300), pod.Values[tsdb.FieldPersistentCapacityBytes])
	assert.False(t, pod.Has(tsdb.FieldCPUUsageCoreNanoSeconds), "absent stays absent")
	checkSchema(t, types.ResourceKindPod, pod)

	container := find(t, samples, types.ResourceKindContainer, "shop/web-0/app")
	assert.Equal(t, uint64(32), container.Values[tsdb.FieldFsUsedBytes])
	assert.Equal(t, uint64(3), container.Values[tsdb.FieldFsInodesUsed])
	checkSchema(t, types.ResourceKindContainer, container)
}

func TestParseSummary_Invalid(t *testing.T) {
	_, err := kube.ParseSummary([]byte("{"))
	assert.Error(t, err)
}

func TestMetricsAPIMapping(t *testing.T) {
	node := kube.NodeMetricsSample(&metricsv1beta1.NodeMetrics{
		ObjectMeta: metav1.ObjectMeta{Name: "node-a"},
		Usage: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse("1500m"),
			corev1.ResourceMemory: resource.MustParse("2Ki"),
		},
	}, at)
	assert.Equal(t, "node-a", node.Key)
	assert.Equal(t, uint64(1500000000), node.Record.Values[tsdb.FieldCPUUsageNanoCores])
	assert.Equal(t, uint64(2048), node.Record.Values[tsdb.FieldMemoryWorkingSetBytes])

	pods := kube.PodMetricsSamples(&metricsv1beta1.PodMetrics{
		ObjectMeta: metav1.ObjectMeta{Name: "web-0", Namespace: "shop"},
		Containers: []metricsv1beta1.ContainerMetrics{
			{Name: "app", Usage: corev1.ResourceList{corev1.ResourceCPU: resource.MustParse("100m")}},
			{Name: "proxy", Usage: corev1.ResourceList{corev1.ResourceCPU: resource.MustParse("50m"), corev1.ResourceMemory: resource.MustParse("1Ki")}},
		},
	}, at)
	require.Len(t, pods, 3)
	assert.Equal(t, types.ResourceKindPod, pods[0].Kind)
	assert.Equal(t, uint64(150000000), pods[0].Record.Values[tsdb.FieldCPUUsageNanoCores])
	assert.Equal(t, uint64(1024), pods[0].Record.Values[tsdb.FieldMemoryWorkingSetBytes])
	assert.Equal(t, "shop/web-0/proxy", pods[2].Key)
}

func TestMerge(t *testing.T) {
	fallback := []types.Sample{
		{Kind: types.ResourceKindPod, Key: "a/b", Record: types.Record{Time: at, Values: map[string]uint64{"cpu_usage_nano_cores": 1, "memory_working_set_bytes": 5}}},
		{Kind: types.ResourceKindNode, Key: "n2", Record: types.Record{Time: at, Values: map[string]uint64{"cpu_usage_nano_cores": 9}}},
	}
	summary := []types.Sample{
		{Kind: types.ResourceKindPod, Key: "a/b", Record: types.Record{Time: at, Values: map[string]uint64{"cpu_usage_nano_cores": 2}}},
		{Kind: types.ResourceKindNode, Key: "n1", Record: types.Record{Time: at, Values: map[string]uint64{"cpu_usage_nano_cores": 3}}},
	}

	merged := kube.Merge(fallback, summary)
	require.Len(t, merged, 3)
	assert.Equal(t, "n1", merged[0].Key, "nodes first, by key")
	assert.Equal(t, "n2", merged[1].Key)
	assert.Equal(t, map[string]uint64{"cpu_usage_nano_cores": 2, "memory_working_set_bytes": 5}, merged[2].Record.Values)
}

type fakeFetcher struct {
	summaries map[string]string
}

func (f *fakeFetcher) Summary(_ context.Context, node string) (*statsapi.Summary, error) {
	body, ok := f.summaries[node]
	if !ok {
		return nil, errors.New("proxy error")
	}
	return kube.ParseSummary([]byte(body))
}

func testNode(name string, cpu, memory string) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name, CreationTimestamp: metav1.NewTime(at.Add(-48 * time.Hour))},
		Status: corev1.NodeStatus{
			Capacity: corev1.ResourceList{
				corev1.ResourceCPU:              resource.MustParse(cpu),
				corev1.ResourceMemory:           resource.MustParse(memory),
				corev1.ResourceEphemeralStorage: resource.MustParse("100Gi"),
			},
			Allocatable: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("3500m"),
				corev1.ResourceMemory: resource.MustParse("7Gi"),
			},
			Conditions: []corev1.NodeCondition{{Type: corev1.NodeReady, Status: corev1.ConditionTrue}},
		},
	}
}

func TestSource_Collect(t *testing.T) {
	client := fake.NewSimpleClientset(testNode("node-a", "4", "8Gi"), testNode("node-b", "4", "8Gi"))

	t.Run("skips failing nodes", func(t *testing.T) {
		src := kube.NewSourceWith(client, &fakeFetcher{summaries: map[string]string{"node-a": summaryJSON}}, nil, nil, nil)
		samples, err := src.Collect(context.Background(), at.Add(300*time.Millisecond))
		require.NoError(t, err)
		assert.Len(t, samples, 3)
		assert.Equal(t, at, samples[0].Record.Time, "stamped at the tick, truncated to seconds")
	})

	t.Run("nothing sampled", func(t *testing.T) {
		src := kube.NewSourceWith(client, &fakeFetcher{}, nil, nil, nil)
		_, err := src.Collect(context.Background(), at)
		assert.ErrorIs(t, err, kube.ErrNoSamples)
	})

	t.Run("empty cluster", func(t *testing.T) {
		src := kube.NewSourceWith(fake.NewSimpleClientset(), &fakeFetcher{}, nil, nil, nil)
		samples, err := src.Collect(context.Background(), at)
		require.NoError(t, err)
		assert.Empty(t, samples)
	})
}

func TestInventory_Nodes(t *testing.T) {
	client := fake.NewSimpleClientset(testNode("node-b", "8", "16Gi"), testNode("node-a", "4", "8Gi"))

	nodes, err := kube.NewInventory(client).Nodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	a := nodes[0]
	assert.Equal(t, "node-a", a.Name)
	assert.InDelta(t, 4.0, a.Capacity.CPUCores, 1e-9)
	assert.Equal(t, uint64(8<<30), a.Capacity.MemoryBytes)
	assert.Equal(t, uint64(100<<30), a.Capacity.StorageBytes)
	assert.InDelta(t, 3.5, a.Allocatable.CPUCores, 1e-9)
	assert.Equal(t, uint64(7<<30), a.Allocatable.MemoryBytes)
	assert.True(t, a.Ready)
	assert.Equal(t, at.Add(-48*time.Hour), a.CreatedAt)
}

func TestConfig_Limiter(t *testing.T) {
	cfg := kube.DefaultConfig()
	assert.NotNil(t, cfg.Limiter())
	cfg.SummaryRPS = 0
	assert.Nil(t, cfg.Limiter())
}
