package kube

import (
	"context"
	"errors"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"
)

// ErrNoMetricsService is returned when no known metrics backend is found.
var ErrNoMetricsService = errors.New("no Prometheus-compatible service found in the cluster; " +
	"use --prometheus-url to specify the endpoint manually")

// MetricsEndpoint is a Prometheus-compatible query service found in the
// cluster.
type MetricsEndpoint struct {
	Backend   string // "thanos", "victoria-metrics", "mimir", "cortex", "prometheus"
	Namespace string
	Service   string
	Port      corev1.ServicePort
}

// URL returns the in-cluster service URL.
func (e *MetricsEndpoint) URL() string {
	return fmt.Sprintf("http://%s.%s.svc:%d", e.Service, e.Namespace, e.Port.Port)
}

// DiscoveryOptions configures the service discovery search.
type DiscoveryOptions struct {
	Namespace string // empty = search all namespaces
}

// backendSelectors lists label selectors per backend, in priority order.
// Query frontends come before plain Prometheus since they usually span
// more data.
var backendSelectors = []struct {
	backend   string
	selectors []string
}{
	{"thanos", []string{
		"app.kubernetes.io/component=query,app.kubernetes.io/name=thanos",
		"app.kubernetes.io/name=thanos-query",
		"app=thanos-query",
		"app=thanos-querier",
	}},
	{"victoria-metrics", []string{
		"app.kubernetes.io/name=vmsingle",
		"app.kubernetes.io/name=victoria-metrics-single",
		"app.kubernetes.io/name=vmselect",
		"app=vmselect",
	}},
	{"mimir", []string{
		"app.kubernetes.io/name=mimir,app.kubernetes.io/component=query-frontend",
	}},
	{"cortex", []string{
		"app.kubernetes.io/name=cortex,app.kubernetes.io/component=query-frontend",
	}},
	{"prometheus", []string{
		"app=kube-prometheus-stack-prometheus",
		"app=prometheus,component=server",
		"app=prometheus-server",
		"app=prometheus-operator-prometheus",
		"app=prometheus-prometheus",
		"app.kubernetes.io/name=prometheus",
	}},
}

// Discover lists the services once and returns the highest-priority metrics
// backend with a usable port. Several services matching the same selector
// are resolved by namespace and name so the pick is stable.
func Discover(ctx context.Context, client kubernetes.Interface, opts DiscoveryOptions) (*MetricsEndpoint, error) {
	list, err := client.CoreV1().Services(opts.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}
	services := list.Items
	sort.Slice(services, func(i, j int) bool {
		if services[i].Namespace != services[j].Namespace {
			return services[i].Namespace < services[j].Namespace
		}
		return services[i].Name < services[j].Name
	})

	for _, b := range backendSelectors {
		for _, raw := range b.selectors {
			selector, err := labels.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("parsing selector %q: %w", raw, err)
			}
			for i := range services {
				svc := &services[i]
				if !selector.Matches(labels.Set(svc.Labels)) {
					continue
				}
				port, ok := servicePort(svc)
				if !ok {
					klog.V(4).InfoS("Skipping metrics service without TCP port", "service", klog.KObj(svc))
					continue
				}
				return &MetricsEndpoint{
					Backend:   b.backend,
					Namespace: svc.Namespace,
					Service:   svc.Name,
					Port:      port,
				}, nil
			}
		}
	}

	return nil, ErrNoMetricsService
}

// servicePort picks the HTTP API port of a service: a port named like the
// Prometheus web port if any, else the first TCP port.
func servicePort(svc *corev1.Service) (corev1.ServicePort, bool) {
	for _, p := range svc.Spec.Ports {
		switch p.Name {
		case "http", "web", "http-web":
			return p, true
		}
	}
	for _, p := range svc.Spec.Ports {
		if p.Protocol == corev1.ProtocolTCP || p.Protocol == "" {
			return p, true
		}
	}
	return corev1.ServicePort{}, false
}
