package landmark

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/radar.overlay/internal/monitoring"
)

// Outcome records which path a group took during Recompute.
type Outcome int

const (
	// OutcomeMissing means the tile had no observations; the group was
	// marked invalid and its centers left unchanged.
	OutcomeMissing Outcome = iota
	// OutcomeCopied means the observation count matched and positions were
	// copied by index.
	OutcomeCopied
	// OutcomeClustered means K-means ran.
	OutcomeClustered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMissing:
		return "missing"
	case OutcomeCopied:
		return "copied"
	case OutcomeClustered:
		return "clustered"
	default:
		return "unknown"
	}
}

// Options controls Recompute.
type Options struct {
	// Area is used for log context only.
	Area string
	// Workers bounds the number of groups processed concurrently. Zero
	// uses GOMAXPROCS.
	Workers int
	// MaxIterations bounds K-means iterations per group.
	MaxIterations int
}

// Report summarises one Recompute pass.
type Report struct {
	Outcomes map[string]Outcome
	Elapsed  time.Duration
}

// Count returns how many groups took outcome o.
func (r Report) Count(o Outcome) int {
	n := 0
	for _, got := range r.Outcomes {
		if got == o {
			n++
		}
	}
	return n
}

// missingTileLog throttles the missing-tile warning; a misconfigured area
// would otherwise log on every area change.
var missingTileLog = rate.Sometimes{First: 5, Interval: 30 * time.Second}

// Recompute returns a new index holding the updated groups. The input
// index is not modified, so callers can discard the result if it is stale.
// Groups are split into disjoint slices and each slice is handled by one
// worker.
func Recompute(ctx context.Context, groups AreaIndex, obs Observations, opts Options) (AreaIndex, Report, error) {
	start := time.Now()
	names := groups.Names()
	results := make([]Group, len(names))
	outcomes := make([]Outcome, len(names))

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(names) {
		workers = len(names)
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * len(names) / workers
		hi := (w + 1) * len(names) / workers
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i], outcomes[i] = recomputeGroup(groups[names[i]], obs[names[i]], opts)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Report{}, err
	}

	out := make(AreaIndex, len(names))
	report := Report{Outcomes: make(map[string]Outcome, len(names))}
	for i, name := range names {
		out[name] = results[i]
		report.Outcomes[name] = outcomes[i]
		if outcomes[i] == OutcomeMissing {
			missingTileLog.Do(func() {
				monitoring.Opsf("landmark: tile %q not found in area %q; check the landmark configuration", name, opts.Area)
			})
		}
	}
	report.Elapsed = time.Since(start)
	return out, report, nil
}

func recomputeGroup(in Group, points []r2.Vec, opts Options) (Group, Outcome) {
	g := in.Clone()
	if len(points) == 0 {
		g.Valid = false
		return g, OutcomeMissing
	}
	g.Valid = true

	n := g.ExpectedClusterCount
	if len(points) == n {
		copy(g.Centers, points)
		return g, OutcomeCopied
	}

	assign := KMeans(points, n, opts.MaxIterations)
	g.Centers = means(points, assign, g.Centers)
	return g, OutcomeClustered
}
