// Package health aggregates component checks into one readiness report.
package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status        Status
	Checks        map[string]CheckResult
	IndexReady    bool
	IndexedPhotos int
}

// Service coordinates health checks.
type Service struct {
	cache     CachePinger
	extractor ExtractorChecker
	index     IndexReporter
}

// New creates a Service. cache and extractor can be nil when the
// corresponding component is not configured.
func New(cache CachePinger, extractor ExtractorChecker, index IndexReporter) *Service {
	return &Service{cache: cache, extractor: extractor, index: index}
}

// Check runs health checks against all configured components. The index
// state is informational and never degrades the status: an empty index is a
// fresh session, not a failure.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			checks["cache"] = CheckError
		} else {
			checks["cache"] = CheckOK
		}
	}

	if s.extractor != nil {
		if err := s.extractor.HealthCheck(ctx); err != nil {
			checks["extractor"] = CheckError
		} else {
			checks["extractor"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	report := Report{Status: status, Checks: checks}
	if s.index != nil {
		report.IndexReady = s.index.Ready()
		report.IndexedPhotos = s.index.Size()
	}
	return report
}
