// Package health reports whether the process and its dependencies can serve traffic.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// checkTimeout bounds each dependency check.
const checkTimeout = 2 * time.Second

// Pinger checks connectivity. *sql.DB and *sqlx.DB satisfy it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the role policy is loaded and evaluable.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// PingFunc adapts a function to Pinger, e.g. a Redis client's Ping.
type PingFunc func(ctx context.Context) error

// PingContext calls f.
func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Checker runs the readiness checks. Nil dependencies are skipped.
type Checker struct {
	db     Pinger
	cache  Pinger
	policy PolicyChecker
}

// NewChecker returns a Checker over the given dependencies; any of them may be nil.
func NewChecker(db, cache Pinger, policy PolicyChecker) *Checker {
	return &Checker{db: db, cache: cache, policy: policy}
}

// Result is the outcome of one named check; Error is empty when it passed.
type Result struct {
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

// Check runs every configured check and returns the per-check results and a joined error.
func (c *Checker) Check(ctx context.Context) ([]Result, error) {
	if c == nil {
		return nil, nil
	}
	var (
		results []Result
		errs    []error
	)
	run := func(name string, fn func(context.Context) error) {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		r := Result{Name: name}
		if err := fn(cctx); err != nil {
			r.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		results = append(results, r)
	}
	if c.db != nil {
		run("database", c.db.PingContext)
	}
	if c.cache != nil {
		run("revocation_store", c.cache.PingContext)
	}
	if c.policy != nil {
		run("policy", c.policy.HealthCheck)
	}
	return results, errors.Join(errs...)
}
