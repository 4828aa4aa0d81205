package workload

import "fmt"

// PromQL templates. They rely on kube-state-metrics for requests, owners and
// placement, and on cAdvisor for observed usage. They work unchanged against
// Prometheus, Thanos and Cortex.

// queryPodResourceRequests returns the summed container requests per pod.
// CPU is in cores, memory in bytes.
func queryPodResourceRequests(resource string) string {
	return fmt.Sprintf(`sum by (namespace, pod) (
  kube_pod_container_resource_requests{resource="%s"}
)`, resource)
}

func queryPodResourceLimits(resource string) string {
	return fmt.Sprintf(`sum by (namespace, pod) (
  kube_pod_container_resource_limits{resource="%s"}
)`, resource)
}

func queryRunningPods() string {
	return `kube_pod_status_phase{phase="Running"} == 1`
}

func queryPodOwner() string {
	return `kube_pod_owner{}`
}

func queryPodNode() string {
	return `kube_pod_info{node!=""}`
}

// queryCPUPercentile returns CPU usage in cores per pod at the given
// percentile over the window.
func queryCPUPercentile(percentile float64, window, step string) string {
	return fmt.Sprintf(`quantile_over_time(%g,
  sum by (namespace, pod) (
    rate(container_cpu_usage_seconds_total{
      container!="",
      container!="POD",
      image!=""
    }[5m])
  )[%s:%s]
)`, percentile, window, step)
}

// queryMemoryPercentile returns the working set in bytes per pod at the
// given percentile over the window.
func queryMemoryPercentile(percentile float64, window, step string) string {
	return fmt.Sprintf(`quantile_over_time(%g,
  sum by (namespace, pod) (
    container_memory_working_set_bytes{
      container!="",
      container!="POD",
      image!=""
    }
  )[%s:%s]
)`, percentile, window, step)
}
