// Package checker compiles classes on every selected OS fixture and reports
// pass or fail per fixture.
package checker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/masterchef/catalogcheck/internal/compiler"
	"github.com/masterchef/catalogcheck/internal/facts"
	"github.com/masterchef/catalogcheck/internal/state"
)

const (
	// ReasonNondeterministic marks a case whose two compiles disagreed.
	ReasonNondeterministic compiler.Reason = "nondeterministic"
	// ReasonCanceled marks a case that never ran or was interrupted.
	ReasonCanceled compiler.Reason = "canceled"
	// ReasonInternal marks a compiler error that is not a CompileError.
	ReasonInternal compiler.Reason = "internal"
)

// Case is one class compiled on one fixture.
type Case struct {
	Ref     compiler.ModuleRef
	Fixture facts.Fixture
}

func (c Case) String() string {
	return fmt.Sprintf("%s on %s", c.Ref, c.Fixture.Name)
}

// Cases is the cross product of refs and fixtures.
func Cases(refs []compiler.ModuleRef, fixtures []facts.Fixture) []Case {
	out := make([]Case, 0, len(refs)*len(fixtures))
	for _, ref := range refs {
		for _, fx := range fixtures {
			out = append(out, Case{Ref: ref, Fixture: fx})
		}
	}
	return out
}

type Result struct {
	Class     string          `json:"class"`
	Params    map[string]any  `json:"params,omitempty"`
	Fixture   string          `json:"fixture"`
	Passed    bool            `json:"passed"`
	Reason    compiler.Reason `json:"reason,omitempty"`
	Resource  string          `json:"resource,omitempty"`
	Message   string          `json:"message,omitempty"`
	Digest    string          `json:"digest,omitempty"`
	Resources int             `json:"resources,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

type Report struct {
	ID        string    `json:"id"`
	Module    string    `json:"module,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Total     int       `json:"total"`
	Passed    int       `json:"passed"`
	Failed    int       `json:"failed"`
	// Missing lists supported platforms that had no fact set.
	Missing []string `json:"missing,omitempty"`
	Results []Result `json:"results"`
}

type Options struct {
	Jobs             int
	VerifyIdempotent bool
	Logger           *zap.Logger
	Module           string
	Missing          []string
}

// Run checks every case. Cases run concurrently up to Jobs, and a failing
// case never stops the others. When ctx ends, cases not yet finished fail
// with reason canceled.
func Run(ctx context.Context, c compiler.Compiler, cases []Case, opts Options) Report {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = 1
	}
	rep := Report{
		ID:        uuid.NewString(),
		Module:    opts.Module,
		StartedAt: time.Now().UTC(),
		Missing:   append([]string{}, opts.Missing...),
	}
	log.Info("check started",
		zap.String("run_id", rep.ID),
		zap.Int("cases", len(cases)),
		zap.Int("jobs", jobs),
	)

	results := make([]Result, len(cases))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, cs := range cases {
		if ctx.Err() != nil {
			results[i] = canceledResult(cs, ctx.Err())
			continue
		}
		g.Go(func() error {
			results[i] = RunCase(ctx, c, cs, opts.VerifyIdempotent)
			r := results[i]
			if r.Passed {
				log.Debug("case passed", zap.String("class", r.Class), zap.String("fixture", r.Fixture), zap.Duration("duration", r.Duration))
			} else {
				log.Warn("case failed",
					zap.String("class", r.Class),
					zap.String("fixture", r.Fixture),
					zap.String("reason", string(r.Reason)),
					zap.String("message", r.Message),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Class != results[j].Class {
			return results[i].Class < results[j].Class
		}
		return results[i].Fixture < results[j].Fixture
	})
	rep.Results = results
	rep.Total = len(results)
	for _, r := range results {
		if r.Passed {
			rep.Passed++
		} else {
			rep.Failed++
		}
	}
	rep.EndedAt = time.Now().UTC()
	log.Info("check finished",
		zap.String("run_id", rep.ID),
		zap.Int("passed", rep.Passed),
		zap.Int("failed", rep.Failed),
		zap.Strings("missing", rep.Missing),
		zap.Duration("elapsed", rep.EndedAt.Sub(rep.StartedAt)),
	)
	return rep
}

// RunCase compiles one case. With verify set the case compiles twice and
// fails unless both catalogs have the same digest. The second compile runs
// under compiler.Fresh so a memoizing compiler cannot replay the first result.
func RunCase(ctx context.Context, c compiler.Compiler, cs Case, verify bool) Result {
	start := time.Now()
	res := Result{Class: cs.Ref.Class, Params: cs.Ref.Params, Fixture: cs.Fixture.Name}

	cat, err := c.Compile(ctx, cs.Ref, cs.Fixture.Facts.Clone())
	if err != nil {
		res = failure(res, cs, err)
		res.Duration = time.Since(start)
		return res
	}
	res.Digest = cat.Digest()
	res.Resources = len(cat.Resources)
	if verify {
		again, err := c.Compile(compiler.Fresh(ctx), cs.Ref, cs.Fixture.Facts.Clone())
		if err != nil {
			res = failure(res, cs, err)
			res.Duration = time.Since(start)
			return res
		}
		if d := again.Digest(); d != res.Digest {
			res.Reason = ReasonNondeterministic
			res.Message = fmt.Sprintf("catalog digest changed between compiles (%s != %s)", short(res.Digest), short(d))
			res.Duration = time.Since(start)
			return res
		}
	}
	res.Passed = true
	res.Duration = time.Since(start)
	return res
}

func failure(res Result, cs Case, err error) Result {
	res.Passed = false
	if ce, ok := compiler.AsCompileError(err); ok {
		res.Reason = ce.Reason
		res.Resource = ce.Resource
		res.Message = ce.Message
		return res
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return canceledResult(cs, err)
	}
	res.Reason = ReasonInternal
	res.Message = err.Error()
	return res
}

func canceledResult(cs Case, err error) Result {
	return Result{
		Class:   cs.Ref.Class,
		Params:  cs.Ref.Params,
		Fixture: cs.Fixture.Name,
		Reason:  ReasonCanceled,
		Message: err.Error(),
	}
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}

// Failures returns the failed results.
func (r Report) Failures() []Result {
	out := make([]Result, 0, r.Failed)
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}

// Err summarizes failed cases, naming each offending fixture. It is nil when
// every case passed.
func (r Report) Err() error {
	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s on %s (%s)", f.Class, f.Fixture, f.Reason))
	}
	return fmt.Errorf("%d of %d checks failed: %s", len(failures), r.Total, strings.Join(parts, "; "))
}

// Record converts the report for the run history store.
func (r Report) Record() state.RunRecord {
	status := state.RunSucceeded
	if r.Failed > 0 {
		status = state.RunFailed
	}
	out := state.RunRecord{
		ID:        r.ID,
		Module:    r.Module,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
		Status:    status,
		Total:     r.Total,
		Passed:    r.Passed,
		Failed:    r.Failed,
		Missing:   r.Missing,
		Results:   make([]state.CaseRun, 0, len(r.Results)),
	}
	for _, res := range r.Results {
		out.Results = append(out.Results, state.CaseRun{
			Class:      res.Class,
			Params:     res.Params,
			Fixture:    res.Fixture,
			Passed:     res.Passed,
			Reason:     string(res.Reason),
			Resource:   res.Resource,
			Message:    res.Message,
			Digest:     res.Digest,
			Resources:  res.Resources,
			DurationMS: res.Duration.Milliseconds(),
		})
	}
	return out
}
