package kube

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/json"
	"k8s.io/client-go/rest"
	statsapi "k8s.io/kubelet/pkg/apis/stats/v1alpha1"

	"github.com/tsanders-rh/kubecostd/internal/tsdb"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// SummaryFetcher retrieves the kubelet summary of one node
type SummaryFetcher interface {
	Summary(ctx context.Context, node string) (*statsapi.Summary, error)
}

// ProxyFetcher reads summaries through the API server node proxy, so no
// direct network path to the kubelets is needed
type ProxyFetcher struct {
	client rest.Interface
}

// NewProxyFetcher creates a fetcher around the core/v1 REST client
func NewProxyFetcher(client rest.Interface) *ProxyFetcher {
	return &ProxyFetcher{client: client}
}

// Summary fetches /api/v1/nodes/<node>/proxy/stats/summary
func (f *ProxyFetcher) Summary(ctx context.Context, node string) (*statsapi.Summary, error) {
	body, err := f.client.Get().
		AbsPath("/api/v1/nodes", node, "proxy", "stats", "summary").
		DoRaw(ctx)
	if err != nil {
		return nil, fmt.Errorf("get summary of node %s: %w", node, err)
	}
	return ParseSummary(body)
}

// ParseSummary decodes a kubelet summary document
func ParseSummary(body []byte) (*statsapi.Summary, error) {
	var s statsapi.Summary
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &s, nil
}

// SummarySamples maps a summary into node, pod and container samples stamped at
func SummarySamples(s *statsapi.Summary, at time.Time) []types.Sample {
	var samples []types.Sample

	if s.Node.NodeName != "" {
		rec := types.NewRecord(at)
		setCPU(&rec, s.Node.CPU)
		setMemory(&rec, s.Node.Memory)
		setNetwork(&rec, s.Node.Network)
		setFs(&rec, s.Node.Fs, tsdb.FieldFsUsedBytes, tsdb.FieldFsCapacityBytes)
		setInodes(&rec, s.Node.Fs)
		samples = append(samples, types.Sample{Kind: types.ResourceKindNode, Key: s.Node.NodeName, Record: rec})
	}

	for _, pod := range s.Pods {
		if pod.PodRef.Namespace == "" || pod.PodRef.Name == "" {
			continue
		}
		podKey := pod.PodRef.Namespace + "/" + pod.PodRef.Name

		rec := types.NewRecord(at)
		setCPU(&rec, pod.CPU)
		setMemory(&rec, pod.Memory)
		setNetwork(&rec, pod.Network)
		setFs(&rec, pod.EphemeralStorage, tsdb.FieldEphemeralUsedBytes, tsdb.FieldEphemeralCapacityBytes)
		setPersistent(&rec, pod.VolumeStats)
		samples = append(samples, types.Sample{Kind: types.ResourceKindPod, Key: podKey, Record: rec})

		for _, c := range pod.Containers {
			if c.Name == "" {
				continue
			}
			crec := types.NewRecord(at)
			setCPU(&crec, c.CPU)
			setMemory(&crec, c.Memory)
			setFs(&crec, c.Rootfs, tsdb.FieldFsUsedBytes, tsdb.FieldFsCapacityBytes)
			setInodes(&crec, c.Rootfs)
			samples = append(samples, types.Sample{Kind: types.ResourceKindContainer, Key: podKey + "/" + c.Name, Record: crec})
		}
	}

	return samples
}

func setPtr(rec *types.Record, field string, v *uint64) {
	if v != nil {
		rec.Set(field, *v)
	}
}

func setCPU(rec *types.Record, s *statsapi.CPUStats) {
	if s == nil {
		return
	}
	setPtr(rec, tsdb.FieldCPUUsageNanoCores, s.UsageNanoCores)
	setPtr(rec, tsdb.FieldCPUUsageCoreNanoSeconds, s.UsageCoreNanoSeconds)
}

func setMemory(rec *types.Record, s *statsapi.MemoryStats) {
	if s == nil {
		return
	}
	setPtr(rec, tsdb.FieldMemoryUsageBytes, s.UsageBytes)
	setPtr(rec, tsdb.FieldMemoryWorkingSetBytes, s.WorkingSetBytes)
	setPtr(rec, tsdb.FieldMemoryRSSBytes, s.RSSBytes)
	setPtr(rec, tsdb.FieldMemoryPageFaults, s.PageFaults)
}

func setNetwork(rec *types.Record, s *statsapi.NetworkStats) {
	if s == nil {
		return
	}
	setPtr(rec, tsdb.FieldNetworkRxBytes, s.RxBytes)
	setPtr(rec, tsdb.FieldNetworkRxErrors, s.RxErrors)
	setPtr(rec, tsdb.FieldNetworkTxBytes, s.TxBytes)
	setPtr(rec, tsdb.FieldNetworkTxErrors, s.TxErrors)
}

func setFs(rec *types.Record, s *statsapi.FsStats, used, capacity string) {
	if s == nil {
		return
	}
	setPtr(rec, used, s.UsedBytes)
	setPtr(rec, capacity, s.CapacityBytes)
}

func setInodes(rec *types.Record, s *statsapi.FsStats) {
	if s == nil {
		return
	}
	setPtr(rec, tsdb.FieldFsInodesUsed, s.InodesUsed)
	setPtr(rec, tsdb.FieldFsInodes, s.Inodes)
}

// setPersistent sums the volumes backed by a persistent volume claim
func setPersistent(rec *types.Record, volumes []statsapi.VolumeStats) {
	var used, capacity uint64
	var hasUsed, hasCapacity bool
	for _, v := range volumes {
		if v.PVCRef == nil {
			continue
		}
		if v.UsedBytes != nil {
			used += *v.UsedBytes
			hasUsed = true
		}
		if v.CapacityBytes != nil {
			capacity += *v.CapacityBytes
			hasCapacity = true
		}
	}
	rec.SetOpt(tsdb.FieldPersistentUsedBytes, used, hasUsed)
	rec.SetOpt(tsdb.FieldPersistentCapacityBytes, capacity, hasCapacity)
}
