// Package observability provides metrics, tracing, and logging utilities.
package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod    = "method"
	attrRoute     = "route"
	attrStatus    = "status"
	attrReason    = "reason"
	attrObtained  = "obtained"
	attrJobStatus = "job_status"
)

// Admission rejection reasons.
const (
	ReasonLockContention = "lock_contention"
	ReasonAlreadyRunning = "already_running"
	ReasonError          = "error"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func routeAttr(route string) attribute.KeyValue {
	// Unmatched requests share one series instead of one per raw path
	if route == "" {
		route = "unmatched"
	}
	return attribute.String(attrRoute, route)
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func reasonAttr(reason string) attribute.KeyValue {
	return attribute.String(attrReason, reason)
}

func obtainedAttr(obtained bool) attribute.KeyValue {
	return attribute.Bool(attrObtained, obtained)
}

func jobStatusAttr(status string) attribute.KeyValue {
	return attribute.String(attrJobStatus, status)
}
