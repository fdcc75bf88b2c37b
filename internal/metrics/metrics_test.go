package metrics

import (
	"strings"
	"testing"
)

func TestRecordRequestAndExport(t *testing.T) {
	// Record a single request and ensure it appears in the export.
	RecordRequest("POST", "/v1/jobs/validate", 200, 12)

	out := Export()
	if !strings.Contains(out, "bindery_http_requests_total{method=\"POST\",path=\"/v1/jobs/validate\",status=\"200\"}") {
		t.Fatalf("expected HTTP request metric for POST /v1/jobs/validate in export, got:\n%s", out)
	}
	if !strings.Contains(out, "bindery_http_request_duration_ms_sum") || !strings.Contains(out, "bindery_http_request_duration_ms_count") {
		t.Fatalf("expected latency metrics headers in export, got:\n%s", out)
	}
}

func TestRecordJobMetrics(t *testing.T) {
	RecordJobCreated("validate")
	RecordStatusUpdate("validate", "completed")
	RecordStatusUpdate("synthesize", "failed")

	out := Export()
	if !strings.Contains(out, "bindery_jobs_created_total{job_type=\"validate\"}") {
		t.Fatalf("expected jobs_created_total for validate, got:\n%s", out)
	}
	if !strings.Contains(out, "bindery_job_status_updates_total{job_type=\"validate\",status=\"completed\"}") {
		t.Fatalf("expected status update metric for validate/completed, got:\n%s", out)
	}
	if !strings.Contains(out, "bindery_job_status_updates_total{job_type=\"synthesize\",status=\"failed\"}") {
		t.Fatalf("expected status update metric for synthesize/failed, got:\n%s", out)
	}
}

func TestRecordWebhookAndSweeperMetrics(t *testing.T) {
	RecordWebhookDelivery("session.validated", true)
	RecordWebhookDelivery("synthesis.failed", false)
	RecordSweeperRequeued(2)
	RecordRetentionJobs("convert", 3)

	out := Export()
	if !strings.Contains(out, "bindery_webhook_deliveries_total{event=\"session.validated\",success=\"true\"}") {
		t.Fatalf("expected webhook delivery success metric, got:\n%s", out)
	}
	if !strings.Contains(out, "bindery_webhook_deliveries_total{event=\"synthesis.failed\",success=\"false\"}") {
		t.Fatalf("expected webhook delivery failure metric, got:\n%s", out)
	}
	if !strings.Contains(out, "bindery_sweeper_requeued_total") {
		t.Fatalf("expected sweeper requeue counter, got:\n%s", out)
	}
	if !strings.Contains(out, "bindery_retention_jobs_deleted_total{job_type=\"convert\"}") {
		t.Fatalf("expected retention delete metric for convert, got:\n%s", out)
	}
}
