package kube

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
	"k8s.io/klog/v2"
)

// PortForwardSession is an open tunnel from a local port to a pod backing a
// metrics service.
type PortForwardSession struct {
	LocalPort int32
	PodName   string

	stop      chan struct{}
	closeOnce sync.Once
}

// URL returns the local URL of the tunnelled service.
func (s *PortForwardSession) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.LocalPort)
}

// Close terminates the tunnel. It is safe to call more than once.
func (s *PortForwardSession) Close() {
	s.closeOnce.Do(func() { close(s.stop) })
}

// PortForward opens a tunnel to a ready pod behind the endpoint's service,
// for use from outside the cluster where service DNS does not resolve.
func PortForward(ctx context.Context, restConfig *rest.Config, client kubernetes.Interface, ep *MetricsEndpoint) (*PortForwardSession, error) {
	pod, port, err := backendPod(ctx, client, ep)
	if err != nil {
		return nil, err
	}

	session, err := forward(ctx, restConfig, client, pod, port)
	if err != nil {
		return nil, fmt.Errorf("forwarding to pod %s/%s: %w", pod.Namespace, pod.Name, err)
	}
	klog.V(2).InfoS("Port-forward ready", "pod", klog.KObj(pod), "podPort", port, "url", session.URL())
	return session, nil
}

// backendPod selects the pod to forward to and the container port behind
// the endpoint's service port. Ready pods are preferred over pods that are
// only running.
func backendPod(ctx context.Context, client kubernetes.Interface, ep *MetricsEndpoint) (*corev1.Pod, int32, error) {
	svc, err := client.CoreV1().Services(ep.Namespace).Get(ctx, ep.Service, metav1.GetOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("getting service %s/%s: %w", ep.Namespace, ep.Service, err)
	}
	if len(svc.Spec.Selector) == 0 {
		return nil, 0, fmt.Errorf("service %s/%s has no pod selector", ep.Namespace, ep.Service)
	}

	pods, err := client.CoreV1().Pods(ep.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: metav1.FormatLabelSelector(&metav1.LabelSelector{MatchLabels: svc.Spec.Selector}),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("listing pods of service %s/%s: %w", ep.Namespace, ep.Service, err)
	}

	var running *corev1.Pod
	for i := range pods.Items {
		p := &pods.Items[i]
		if p.Status.Phase != corev1.PodRunning || p.DeletionTimestamp != nil {
			continue
		}
		if podReady(p) {
			return p, containerPort(ep.Port, p), nil
		}
		if running == nil {
			running = p
		}
	}
	if running == nil {
		return nil, 0, fmt.Errorf("no running pod found for service %s/%s", ep.Namespace, ep.Service)
	}
	return running, containerPort(ep.Port, running), nil
}

func podReady(p *corev1.Pod) bool {
	for _, c := range p.Status.Conditions {
		if c.Type == corev1.PodReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}

// containerPort maps a service port onto the pod: a numeric target port is
// used as is, a named one is looked up in the pod's containers, and an
// unset or unknown one falls back to the service port.
func containerPort(sp corev1.ServicePort, pod *corev1.Pod) int32 {
	tp := sp.TargetPort
	switch {
	case tp.Type == intstr.Int && tp.IntVal != 0:
		return tp.IntVal
	case tp.Type == intstr.String && tp.StrVal != "":
		for _, c := range pod.Spec.Containers {
			for _, cp := range c.Ports {
				if cp.Name == tp.StrVal {
					return cp.ContainerPort
				}
			}
		}
	}
	return sp.Port
}

func forward(ctx context.Context, restConfig *rest.Config, client kubernetes.Interface, pod *corev1.Pod, port int32) (*PortForwardSession, error) {
	transport, upgrader, err := spdy.RoundTripperFor(restConfig)
	if err != nil {
		return nil, fmt.Errorf("creating SPDY round-tripper: %w", err)
	}
	reqURL := client.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(pod.Namespace).
		Name(pod.Name).
		SubResource("portforward").
		URL()
	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, reqURL)

	session := &PortForwardSession{PodName: pod.Name, stop: make(chan struct{})}
	ready := make(chan struct{})
	out := klogWriter{pod: klog.KObj(pod)}
	fw, err := portforward.New(dialer, []string{fmt.Sprintf("0:%d", port)}, session.stop, ready, out, out)
	if err != nil {
		return nil, fmt.Errorf("creating port-forwarder: %w", err)
	}

	failed := make(chan error, 1)
	go func() { failed <- fw.ForwardPorts() }()

	select {
	case <-ready:
	case err := <-failed:
		return nil, err
	case <-ctx.Done():
		session.Close()
		return nil, ctx.Err()
	}

	forwarded, err := fw.GetPorts()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("getting forwarded ports: %w", err)
	}
	if len(forwarded) == 0 {
		session.Close()
		return nil, fmt.Errorf("no port forwarded")
	}
	session.LocalPort = int32(forwarded[0].Local)
	return session, nil
}

// klogWriter sends port-forward chatter to the debug log.
type klogWriter struct {
	pod klog.ObjectRef
}

func (w klogWriter) Write(p []byte) (int, error) {
	klog.V(4).InfoS("Port-forward", "pod", w.pod, "msg", strings.TrimSpace(string(p)))
	return len(p), nil
}
