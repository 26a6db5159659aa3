package health

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure. Search still serves lexical results.
	Degraded Status = "degraded"
	// Unhealthy indicates the index is unreachable.
	Unhealthy Status = "error"
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
	Status Status
	Checks map[string]CheckResult
	// MissingIndexes names collections whose index does not exist.
	MissingIndexes []string
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedders map[string]EmbeddingChecker
	indexes   IndexChecker
}

// New creates a Service. embedders is keyed by model kind and may be empty; indexes can be nil.
func New(db DBPinger, embedders map[string]EmbeddingChecker, indexes IndexChecker) *Service {
	return &Service{db: db, embedders: embedders, indexes: indexes}
}

// Check runs all health checks concurrently.
func (s *Service) Check(ctx context.Context) Report {
	type outcome struct {
		name    string
		ok      bool
		missing []string
	}

	names := make([]string, 0, len(s.embedders))
	for name := range s.embedders {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]outcome, len(names)+2)
	var g errgroup.Group

	g.Go(func() error {
		results[0] = outcome{name: "database", ok: s.db.Ping(ctx) == nil}
		return nil
	})
	if s.indexes != nil {
		g.Go(func() error {
			missing, err := s.indexes.Missing(ctx)
			results[1] = outcome{name: "indexes", ok: err == nil && len(missing) == 0, missing: missing}
			return nil
		})
	}
	for i, name := range names {
		g.Go(func() error {
			err := s.embedders[name].HealthCheck(ctx)
			results[i+2] = outcome{name: "embedding_" + name, ok: err == nil}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Status: Healthy, Checks: make(map[string]CheckResult)}
	for _, r := range results {
		if r.name == "" {
			continue
		}
		if r.ok {
			report.Checks[r.name] = CheckOK
			continue
		}
		report.Checks[r.name] = CheckError
		report.MissingIndexes = append(report.MissingIndexes, r.missing...)
		if report.Status == Healthy {
			report.Status = Degraded
		}
	}
	if report.Checks["database"] == CheckError {
		report.Status = Unhealthy
	}

	return report
}
