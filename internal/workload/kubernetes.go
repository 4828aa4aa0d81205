package workload

import (
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	"github.com/guimove/fleetfit/internal/kube"
	"github.com/guimove/fleetfit/internal/model"
)

// KubernetesSource reads pod requests straight from the API server.
type KubernetesSource struct {
	client kubernetes.Interface
}

// NewKubernetesSource creates a source backed by client.
func NewKubernetesSource(client kubernetes.Interface) *KubernetesSource {
	return &KubernetesSource{client: client}
}

// Name returns "kubernetes".
func (k *KubernetesSource) Name() string {
	return "kubernetes"
}

// Ping checks that the API server answers.
func (k *KubernetesSource) Ping(ctx context.Context) error {
	if _, err := k.client.Discovery().ServerVersion(); err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	return nil
}

// Records lists pods and sums container requests and limits per pod. Each
// pod is tagged with the node group of the node it runs on. Finished pods
// are left out since they hold no capacity.
func (k *KubernetesSource) Records(ctx context.Context, opts LoadOptions) ([]PodRecord, error) {
	nodeGroups, groups, err := kube.NodeGroupIndex(ctx, k.client)
	if err != nil {
		return nil, err
	}
	klog.V(2).InfoS("Detected node groups", "groups", len(groups), "nodes", len(nodeGroups))

	namespaces := opts.Namespaces
	if len(namespaces) == 0 {
		namespaces = []string{metav1.NamespaceAll}
	}

	var records []PodRecord
	for _, ns := range namespaces {
		list, err := k.client.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("listing pods in %q: %w", ns, err)
		}
		for i := range list.Items {
			pod := &list.Items[i]
			if pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed {
				continue
			}
			records = append(records, podRecord(pod, nodeGroups[pod.Spec.NodeName]))
		}
	}

	sortRecords(records)
	if opts.HashNames {
		HashRecords(records)
	}
	return records, nil
}

// Load lists pods and builds a snapshot.
func (k *KubernetesSource) Load(ctx context.Context, opts LoadOptions) (*model.Snapshot, error) {
	records, err := k.Records(ctx, opts)
	if err != nil {
		return nil, err
	}
	return BuildSnapshot(records, opts, k.Name())
}

func podRecord(pod *corev1.Pod, nodeGroup string) PodRecord {
	r := PodRecord{
		PodName:   pod.Name,
		NodeName:  pod.Spec.NodeName,
		NodeGroup: nodeGroup,
		Namespace: pod.Namespace,
	}
	for _, c := range pod.Spec.Containers {
		r.ReqCPUMilli += c.Resources.Requests.Cpu().MilliValue()
		r.ReqMemBytes += c.Resources.Requests.Memory().Value()
		r.LimitCPUMilli += c.Resources.Limits.Cpu().MilliValue()
		r.LimitMemBytes += c.Resources.Limits.Memory().Value()
	}

	kinds := make([]string, 0, len(pod.OwnerReferences))
	names := make([]string, 0, len(pod.OwnerReferences))
	for _, o := range pod.OwnerReferences {
		kinds = append(kinds, o.Kind)
		names = append(names, o.Name)
	}
	r.OwnerKind = strings.Join(kinds, ownerSeparator)
	r.OwnerName = strings.Join(names, ownerSeparator)
	return r
}
