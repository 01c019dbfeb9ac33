package kube

import (
	"context"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// Inventory reports node capacity and allocatable resources
type Inventory struct {
	client kubernetes.Interface
}

// NewInventory creates an inventory source
func NewInventory(client kubernetes.Interface) *Inventory {
	return &Inventory{client: client}
}

// Nodes lists every node, sorted by name
func (i *Inventory) Nodes(ctx context.Context) ([]types.NodeInventory, error) {
	list, err := i.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	nodes := make([]types.NodeInventory, 0, len(list.Items))
	for idx := range list.Items {
		nodes = append(nodes, NodeInventoryOf(&list.Items[idx]))
	}
	sort.Slice(nodes, func(a, b int) bool { return nodes[a].Name < nodes[b].Name })
	return nodes, nil
}

// NodeInventoryOf converts a Node object
func NodeInventoryOf(n *corev1.Node) types.NodeInventory {
	inv := types.NodeInventory{
		Name:        n.Name,
		Capacity:    capacityOf(n.Status.Capacity),
		Allocatable: capacityOf(n.Status.Allocatable),
		CreatedAt:   n.CreationTimestamp.UTC(),
	}
	for _, c := range n.Status.Conditions {
		if c.Type == corev1.NodeReady {
			inv.Ready = c.Status == corev1.ConditionTrue
		}
	}
	return inv
}

func capacityOf(rl corev1.ResourceList) types.Capacity {
	var c types.Capacity
	if q, ok := rl[corev1.ResourceCPU]; ok {
		c.CPUCores = q.AsApproximateFloat64()
	}
	if q, ok := rl[corev1.ResourceMemory]; ok {
		c.MemoryBytes = nonNegative(q.Value())
	}
	if q, ok := rl[corev1.ResourceEphemeralStorage]; ok {
		c.StorageBytes = nonNegative(q.Value())
	}
	return c
}
