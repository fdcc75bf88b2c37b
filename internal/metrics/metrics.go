package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics for the job service.
// This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	jobsCreated       = make(map[string]int64)
	statusUpdates     = make(map[statusKey]int64)
	webhookDeliveries = make(map[webhookKey]int64)

	sweeperRequeued      int64
	retentionJobsDeleted = make(map[string]int64)
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type statusKey struct {
	JobType string
	Status  string
}

type webhookKey struct {
	Event   string
	Success string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	requestsTotal[reqKey{Method: method, Path: path, Status: status}]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordJobCreated increments the counter of jobs created for a job type.
func RecordJobCreated(jobType string) {
	mu.Lock()
	defer mu.Unlock()
	jobsCreated[jobType]++
}

// RecordStatusUpdate counts ingested status updates per job type and
// resulting status.
func RecordStatusUpdate(jobType, status string) {
	mu.Lock()
	defer mu.Unlock()
	statusUpdates[statusKey{JobType: jobType, Status: status}]++
}

// RecordWebhookDelivery counts callback delivery outcomes per event.
func RecordWebhookDelivery(event string, success bool) {
	mu.Lock()
	defer mu.Unlock()

	s := "false"
	if success {
		s = "true"
	}
	webhookDeliveries[webhookKey{Event: event, Success: s}]++
}

// RecordSweeperRequeued increments the counter of stale PENDING jobs
// pushed back onto their queues.
func RecordSweeperRequeued(n int64) {
	if n <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	sweeperRequeued += n
}

// RecordRetentionJobs increments the counter of jobs deleted by TTL for
// a given job type.
func RecordRetentionJobs(jobType string, deleted int64) {
	if deleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionJobsDeleted[jobType] += deleted
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP bindery_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE bindery_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		fmt.Fprintf(&b, "bindery_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP bindery_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE bindery_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP bindery_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE bindery_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "bindery_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "bindery_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP bindery_jobs_created_total Total jobs created by type\n")
	b.WriteString("# TYPE bindery_jobs_created_total counter\n")

	var jobTypes []string
	for t := range jobsCreated {
		jobTypes = append(jobTypes, t)
	}
	sort.Strings(jobTypes)
	for _, t := range jobTypes {
		fmt.Fprintf(&b, "bindery_jobs_created_total{job_type=\"%s\"} %d\n", t, jobsCreated[t])
	}

	b.WriteString("# HELP bindery_job_status_updates_total Total ingested job status updates\n")
	b.WriteString("# TYPE bindery_job_status_updates_total counter\n")

	var stKeys []statusKey
	for k := range statusUpdates {
		stKeys = append(stKeys, k)
	}
	sort.Slice(stKeys, func(i, j int) bool {
		if stKeys[i].JobType != stKeys[j].JobType {
			return stKeys[i].JobType < stKeys[j].JobType
		}
		return stKeys[i].Status < stKeys[j].Status
	})
	for _, k := range stKeys {
		fmt.Fprintf(&b, "bindery_job_status_updates_total{job_type=\"%s\",status=\"%s\"} %d\n",
			k.JobType, k.Status, statusUpdates[k])
	}

	b.WriteString("# HELP bindery_webhook_deliveries_total Total webhook delivery outcomes\n")
	b.WriteString("# TYPE bindery_webhook_deliveries_total counter\n")

	var whKeys []webhookKey
	for k := range webhookDeliveries {
		whKeys = append(whKeys, k)
	}
	sort.Slice(whKeys, func(i, j int) bool {
		if whKeys[i].Event != whKeys[j].Event {
			return whKeys[i].Event < whKeys[j].Event
		}
		return whKeys[i].Success < whKeys[j].Success
	})
	for _, k := range whKeys {
		fmt.Fprintf(&b, "bindery_webhook_deliveries_total{event=\"%s\",success=\"%s\"} %d\n",
			k.Event, k.Success, webhookDeliveries[k])
	}

	b.WriteString("# HELP bindery_sweeper_requeued_total Total stale PENDING jobs re-enqueued\n")
	b.WriteString("# TYPE bindery_sweeper_requeued_total counter\n")
	fmt.Fprintf(&b, "bindery_sweeper_requeued_total %d\n", sweeperRequeued)

	b.WriteString("# HELP bindery_retention_jobs_deleted_total Total jobs deleted by TTL\n")
	b.WriteString("# TYPE bindery_retention_jobs_deleted_total counter\n")

	var retTypes []string
	for t := range retentionJobsDeleted {
		retTypes = append(retTypes, t)
	}
	sort.Strings(retTypes)
	for _, t := range retTypes {
		fmt.Fprintf(&b, "bindery_retention_jobs_deleted_total{job_type=\"%s\"} %d\n",
			t, retentionJobsDeleted[t])
	}

	return b.String()
}
