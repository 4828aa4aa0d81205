package kube

import (
	"fmt"
	"os"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"
)

const userAgent = "fleetfit"

// Client bundles a clientset with the config it was built from.
type Client struct {
	Clientset  kubernetes.Interface
	RestConfig *rest.Config

	// Context is the kubeconfig context in use; empty in-cluster.
	Context   string
	InCluster bool
}

// NewClient connects to the cluster named by kubeconfig and context.
//
// An explicit kubeconfig wins, then $KUBECONFIG and ~/.kube/config. When none
// of them exists and the process runs in a pod, the service account is used.
func NewClient(kubeconfig, context string) (*Client, error) {
	c, err := resolveConfig(kubeconfig, context)
	if err != nil {
		return nil, fmt.Errorf("building kubernetes config: %w", err)
	}
	c.RestConfig.UserAgent = userAgent
	// Listing pods of large clusters page by page hits the default limits.
	c.RestConfig.QPS, c.RestConfig.Burst = 50, 100

	if c.Clientset, err = kubernetes.NewForConfig(c.RestConfig); err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	klog.V(2).InfoS("Connected to Kubernetes", "host", c.RestConfig.Host, "context", c.Context, "inCluster", c.InCluster)
	return c, nil
}

func resolveConfig(kubeconfig, context string) (*Client, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}

	if kubeconfig == "" && !anyExists(rules.Precedence) {
		restConfig, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("no kubeconfig found and not running in-cluster: %w", err)
		}
		return &Client{RestConfig: restConfig, InCluster: true}, nil
	}

	loader := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules,
		&clientcmd.ConfigOverrides{CurrentContext: context})
	raw, err := loader.RawConfig()
	if err != nil {
		return nil, err
	}
	restConfig, err := loader.ClientConfig()
	if err != nil {
		return nil, err
	}

	name := context
	if name == "" {
		name = raw.CurrentContext
	}
	return &Client{RestConfig: restConfig, Context: name}, nil
}

func anyExists(paths []string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}
