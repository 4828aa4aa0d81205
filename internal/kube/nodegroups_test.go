package kube

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func node(name string, labels map[string]string) *corev1.Node {
	return &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels}}
}

func TestNodeGroupIndex(t *testing.T) {
	client := fake.NewSimpleClientset( //nolint:staticcheck // NewClientset requires generated apply configs
		node("a-1", map[string]string{
			"kubernetes.io/hostname":           "a-1",
			"topology.kubernetes.io/zone":      "eu-west-1a",
			"eks.amazonaws.com/nodegroup":      "apps",
			"node.kubernetes.io/instance-type": "m5.xlarge",
		}),
		node("a-2", map[string]string{
			"kubernetes.io/hostname":           "a-2",
			"topology.kubernetes.io/zone":      "eu-west-1b",
			"eks.amazonaws.com/nodegroup":      "apps",
			"node.kubernetes.io/instance-type": "m5.xlarge",
		}),
		node("b-1", map[string]string{
			"kubernetes.io/hostname":           "b-1",
			"eks.amazonaws.com/nodegroup":      "batch",
			"node.kubernetes.io/instance-type": "c5.2xlarge",
		}),
	)

	index, groups, err := NodeGroupIndex(context.Background(), client)
	if err != nil {
		t.Fatal(err)
	}

	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	want := map[string]string{"a-1": "0", "a-2": "0", "b-1": "1"}
	if diff := cmp.Diff(want, index); diff != "" {
		t.Errorf("node group index mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a-1", "a-2"}, groups[0].Nodes); diff != "" {
		t.Errorf("group 0 nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestNodeSignatureIgnoresPerNodeLabels(t *testing.T) {
	a := nodeSignature(map[string]string{"kubernetes.io/hostname": "x", "role": "web"})
	b := nodeSignature(map[string]string{"kubernetes.io/hostname": "y", "role": "web"})
	if a != b {
		t.Errorf("signatures differ: %q vs %q", a, b)
	}
	if a != "role:web" {
		t.Errorf("signature = %q, want role:web", a)
	}
}
