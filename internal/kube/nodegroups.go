package kube

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Labels that differ between otherwise identical nodes and are left out of
// the group signature.
var ignoredNodeLabels = map[string]bool{
	"kubernetes.io/hostname":                 true,
	"topology.kubernetes.io/zone":            true,
	"failure-domain.beta.kubernetes.io/zone": true,
	"topology.ebs.csi.aws.com/zone":          true,
}

// NodeGroup is a set of nodes sharing the same label signature.
type NodeGroup struct {
	ID        string
	Signature string
	Nodes     []string
}

// GroupNodes partitions nodes by their label signature (all labels except
// per-node ones such as hostname and zone). Group IDs are assigned "0", "1",
// ... in signature order so they are stable across runs.
func GroupNodes(nodes []corev1.Node) []NodeGroup {
	bySignature := make(map[string][]string)
	for i := range nodes {
		sig := nodeSignature(nodes[i].Labels)
		bySignature[sig] = append(bySignature[sig], nodes[i].Name)
	}

	signatures := make([]string, 0, len(bySignature))
	for sig := range bySignature {
		signatures = append(signatures, sig)
	}
	sort.Strings(signatures)

	groups := make([]NodeGroup, len(signatures))
	for i, sig := range signatures {
		names := bySignature[sig]
		sort.Strings(names)
		groups[i] = NodeGroup{ID: strconv.Itoa(i), Signature: sig, Nodes: names}
	}
	return groups
}

// NodeGroupIndex lists the cluster's nodes and maps each node name to its
// group ID.
func NodeGroupIndex(ctx context.Context, client kubernetes.Interface) (map[string]string, []NodeGroup, error) {
	list, err := client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("listing nodes: %w", err)
	}

	groups := GroupNodes(list.Items)
	index := make(map[string]string, len(list.Items))
	for _, g := range groups {
		for _, n := range g.Nodes {
			index[n] = g.ID
		}
	}
	return index, groups, nil
}

func nodeSignature(labels map[string]string) string {
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		if ignoredNodeLabels[k] {
			continue
		}
		parts = append(parts, k+":"+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
