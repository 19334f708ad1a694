package metrics

import (
	"errors"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/docs", "/docs"},
		{"/docs/assets/x.js", "/docs"},
		{"/metrics", "/metrics"},
		{"/openapi.json", "/openapi.json"},
		{"/", "/"},
		{"", "/"},
		{"/cdmi_objectid/", "/cdmi_objectid/"},
		{"/cdmi_objectid/0123abcd/", "/cdmi_objectid/{id}"},
		{"/photos/", "/{container}/"},
		{"/photos/2024/", "/{container}/"},
		{"/photos/cat.jpg", "/{object}"},
		{"/readme", "/{object}"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := NormalizePath(tt.path); got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestMetricsRegistered(t *testing.T) {
	Register()
	Register()

	HTTPRequestsTotal.WithLabelValues("GET", "/health", "200").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/health").Observe(0.001)
	HTTPResponseSize.WithLabelValues("GET", "/{object}").Observe(2048)
	BackendOperationDuration.WithLabelValues("file", "save").Observe(0.01)
	AuditEventsTotal.WithLabelValues("log", "success").Inc()
	IndexEntries.Set(3)
	BytesReceivedTotal.Add(1024)
	BytesSentTotal.Add(2048)

	CDMIOperationsTotal.WithLabelValues("create", "object", Status(nil)).Inc()
	BackendOperationsTotal.WithLabelValues("s3", "load", Status(nil)).Inc()
	if Status(nil) != "success" {
		t.Error("Status(nil) should be success")
	}
	if Status(errors.New("x")) != "error" {
		t.Error("Status(err) should be error")
	}
}
