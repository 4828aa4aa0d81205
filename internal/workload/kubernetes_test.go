package workload

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func container(cpu, mem string) corev1.Container {
	return corev1.Container{
		Name: "c",
		Resources: corev1.ResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse(cpu),
				corev1.ResourceMemory: resource.MustParse(mem),
			},
		},
	}
}

func pod(ns, name, node, ownerKind, ownerName string, phase corev1.PodPhase, containers ...corev1.Container) *corev1.Pod {
	p := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Namespace: ns, Name: name},
		Spec:       corev1.PodSpec{NodeName: node, Containers: containers},
		Status:     corev1.PodStatus{Phase: phase},
	}
	if ownerKind != "" {
		p.OwnerReferences = []metav1.OwnerReference{{Kind: ownerKind, Name: ownerName}}
	}
	return p
}

func kubeFixture() *fake.Clientset {
	return fake.NewSimpleClientset( //nolint:staticcheck // NewClientset requires generated apply configs
		&corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "n1", Labels: map[string]string{"role": "apps"}}},
		&corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "n2", Labels: map[string]string{"role": "batch"}}},
		pod("prod", "web", "n1", "ReplicaSet", "web-rs", corev1.PodRunning,
			container("250m", "600M"), container("250m", "400M")),
		pod("batch", "job", "n2", "Job", "nightly", corev1.PodRunning,
			container("2", "4G")),
		pod("batch", "finished", "n2", "Job", "nightly", corev1.PodSucceeded,
			container("2", "4G")),
		pod("logging", "fluent-a", "n1", "DaemonSet", "fluent", corev1.PodRunning,
			container("100m", "200M")),
	)
}

func TestKubernetesSource_Load(t *testing.T) {
	src := NewKubernetesSource(kubeFixture())

	if err := src.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	snap, err := src.Load(context.Background(), LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Workloads) != 2 {
		t.Fatalf("expected 2 workloads, got %d", len(snap.Workloads))
	}

	job, web := snap.Workloads[0], snap.Workloads[1]
	if job.ID != "batch/job" || web.ID != "prod/web" {
		t.Fatalf("unexpected ids %s, %s", job.ID, web.ID)
	}
	if web.CPUMillis != 500 || web.MemoryMB != 1000 {
		t.Errorf("web demand = (%v, %v), want (500, 1000)", web.CPUMillis, web.MemoryMB)
	}
	if job.CPUMillis != 2000 || job.MemoryMB != 4000 {
		t.Errorf("job demand = (%v, %v), want (2000, 4000)", job.CPUMillis, job.MemoryMB)
	}
	if snap.DaemonSetOverhead.CPUMillis != 100 || snap.DaemonSetOverhead.MemoryMB != 200 {
		t.Errorf("overhead = %+v", snap.DaemonSetOverhead)
	}
}

func TestKubernetesSource_Records(t *testing.T) {
	src := NewKubernetesSource(kubeFixture())

	records, err := src.Records(context.Background(), LoadOptions{Namespaces: []string{"prod"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	// Node groups are numbered in label signature order: role:apps < role:batch.
	if r.NodeName != "n1" || r.NodeGroup != "0" {
		t.Errorf("placement = %s/%s, want n1/0", r.NodeName, r.NodeGroup)
	}
	if r.OwnerKind != "ReplicaSet" || r.ReqMemBytes != 1_000_000_000 {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestKubernetesSource_NodeGroupFilter(t *testing.T) {
	src := NewKubernetesSource(kubeFixture())

	snap, err := src.Load(context.Background(), LoadOptions{NodeGroup: "1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Workloads) != 1 || snap.Workloads[0].ID != "batch/job" {
		t.Errorf("expected only batch/job, got %+v", snap.Workloads)
	}
	if snap.DaemonSetCount != 0 {
		t.Errorf("DaemonSet on another group counted: %d", snap.DaemonSetCount)
	}
}
