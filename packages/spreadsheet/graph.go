package spreadsheet

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vogtb/go-spreadflow/packages/logging"
)

// UnresolvedReference is a reference that named no formula, alias or
// value. the graph silently treats it as an external input, so it is
// reported instead of dropped.
type UnresolvedReference struct {
	Root      Location // egress root whose traversal found it
	From      Location // formula holding the reference
	Line      int
	Reference string
}

func (u UnresolvedReference) String() string {
	return fmt.Sprintf("%s (line %d) references unknown %s", u.From, u.Line, u.Reference)
}

// CallTree is everything one egress formula transitively reads. Records
// starts with the root and follows breadth-first discovery order.
type CallTree struct {
	Root       *Formula
	Records    []*Formula
	Unresolved []UnresolvedReference
	Visits     int
	Truncated  bool
}

// Locations lists the tree's members as locations, root first
func (t *CallTree) Locations() []Location {
	locs := make([]Location, len(t.Records))
	for i, f := range t.Records {
		locs[i] = f.Location()
	}
	return locs
}

// Contains reports whether f is part of the tree
func (t *CallTree) Contains(f *Formula) bool {
	return slices.Contains(t.Records, f)
}

func (t *CallTree) unresolved(from *Formula, ref string) {
	t.Unresolved = append(t.Unresolved, UnresolvedReference{
		Root:      t.Root.Location(),
		From:      from.Location(),
		Line:      from.Line,
		Reference: ref,
	})
}

// Report is the result of one engine run
type Report struct {
	// Trees holds one call tree per egress root, in egress order.
	Trees []*CallTree
	// Errors holds per-root failures that did not stop the run, such as a
	// blown visit budget.
	Errors []error

	index map[Location]*CallTree
}

// Tree finds the call tree of the egress formula at loc
func (r *Report) Tree(loc Location) (*CallTree, bool) {
	t, ok := r.index[loc]
	return t, ok
}

// Unresolved collects every unresolved reference across all trees
func (r *Report) Unresolved() []UnresolvedReference {
	var all []UnresolvedReference
	for _, t := range r.Trees {
		all = append(all, t.Unresolved...)
	}
	return all
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithWorkers traverses up to n roots at once. n <= 1 runs sequentially.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithVisitBudget caps how many records a single root may visit. 0 means
// no cap.
func WithVisitBudget(n int) EngineOption {
	return func(e *Engine) {
		e.budget = n
	}
}

// WithLogger sets the engine's logger. without it the logger is taken from
// the context.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// Engine walks the program from every egress formula and records each
// egress location on the outputs of every formula it reads.
type Engine struct {
	program *Program
	workers int
	budget  int
	logger  *slog.Logger
}

// NewEngine creates an engine over a classified program
func NewEngine(p *Program, opts ...EngineOption) *Engine {
	e := &Engine{program: p, workers: 1}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) loggerFor(ctx context.Context) *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return logging.FromContext(ctx)
}

// Run traverses from every egress formula. consumer links are applied in
// egress order once each root's tree is known, so outputs come out the same
// whether roots run in parallel or not. a cancelled context stops the run;
// anything else is reported per root.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if !e.program.Classified() {
		return nil, NewApplicationError(FailedPrecondition, "program must be classified before traversal")
	}

	roots := e.program.Egress()
	ctx, span := startRunSpan(ctx, len(roots), e.workers)
	defer span.End()

	logger := e.loggerFor(ctx)
	logger.Debug("traversal started", "roots", len(roots), "workers", e.workers)

	trees := make([]*CallTree, len(roots))
	errs := make([]error, len(roots))

	if e.workers <= 1 {
		for i, root := range roots {
			trees[i], errs[i] = e.traverse(ctx, root)
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers)
		for i, root := range roots {
			g.Go(func() error {
				trees[i], errs[i] = e.traverse(gctx, root)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	report := &Report{
		Trees: trees,
		index: make(map[Location]*CallTree, len(trees)),
	}
	visited := 0
	for i, tree := range trees {
		e.apply(tree)
		report.index[tree.Root.Location()] = tree
		visited += len(tree.Records)
		if errs[i] != nil {
			report.Errors = append(report.Errors, errs[i])
			logger.Warn("traversal incomplete", "root", tree.Root.Location().String(), "error", errs[i])
		}
	}

	setRunSpanResult(span, visited, len(report.Unresolved()))
	logger.Info("traversal finished",
		"roots", len(roots),
		"visited", visited,
		"unresolved", len(report.Unresolved()),
		"errors", len(report.Errors))
	return report, nil
}

// Traverse runs a single root and records its consumer links
func (e *Engine) Traverse(ctx context.Context, root *Formula) (*CallTree, error) {
	tree, err := e.traverse(ctx, root)
	e.apply(tree)
	return tree, err
}

// apply records the root on every other member of its tree. AddConsumer
// ignores duplicates, so applying the same tree twice is a no-op.
func (e *Engine) apply(tree *CallTree) {
	if tree == nil || len(tree.Records) == 0 {
		return
	}
	id := tree.Root.Location()
	for _, f := range tree.Records[1:] {
		f.AddConsumer(id)
	}
}

// traverse is the breadth-first walk for one root. it only reads shared
// state, so several may run at once. each record is queued at most once
// per root, which is what makes cyclic references terminate.
func (e *Engine) traverse(ctx context.Context, root *Formula) (*CallTree, error) {
	ctx, span := startTraverseSpan(ctx, root.Location().String())
	defer span.End()
	start := time.Now()

	tree := &CallTree{Root: root, Records: []*Formula{root}}
	visited := map[*Formula]struct{}{root: {}}
	seen := make(map[Location]struct{})
	queue := []*Formula{root}

	reach := func(f *Formula) {
		if _, done := visited[f]; done {
			return
		}
		visited[f] = struct{}{}
		tree.Records = append(tree.Records, f)
		queue = append(queue, f)
	}

	var err error
	for head := 0; head < len(queue); head++ {
		if err = ctx.Err(); err != nil {
			break
		}
		if e.budget > 0 && tree.Visits >= e.budget {
			tree.Truncated = true
			err = fmt.Errorf("%s after %d records: %w", root.Location(), tree.Visits, ErrVisitBudgetExceeded)
			break
		}

		rec := queue[head]
		tree.Visits++
		for _, loc := range e.resolveRefs(ctx, rec, tree) {
			e.expand(ctx, rec, loc, seen, reach, tree)
		}
	}

	recordTraversal(ctx, time.Since(start), len(tree.Records), len(tree.Unresolved), tree.Truncated)
	return tree, err
}

// resolveRefs turns a record's reference pool into distinct locations.
// names that are constants (TRUE, FALSE, plain values) drop out quietly.
func (e *Engine) resolveRefs(ctx context.Context, rec *Formula, tree *CallTree) []Location {
	locs := make([]Location, 0, len(rec.Refs))
	dedup := make(map[Location]struct{}, len(rec.Refs))

	for _, ref := range rec.Refs {
		loc, ok := ref.Resolve(rec.Sheet, e.program.aliases)
		if !ok {
			if e.program.values.Has(rec.Sheet, ref.Name) {
				continue
			}
			e.reportUnresolved(ctx, rec, ref.String(), tree)
			continue
		}
		if _, dup := dedup[loc]; dup {
			continue
		}
		dedup[loc] = struct{}{}
		locs = append(locs, loc)
	}
	return locs
}

// expand reaches every formula a location touches. alias targets found on
// the way go onto an explicit work-list; seen is shared by the whole root
// so a chain that loops back on itself stops.
func (e *Engine) expand(ctx context.Context, rec *Formula, start Location, seen map[Location]struct{}, reach func(*Formula), tree *CallTree) {
	work := []Location{start}

	for len(work) > 0 {
		loc := work[len(work)-1]
		work = work[:len(work)-1]
		if _, done := seen[loc]; done {
			continue
		}
		seen[loc] = struct{}{}

		ws := e.program.sheets[loc.Sheet]

		// range formulas first: one link per block, however many of its
		// cells the reference covers
		var blocks []*Formula
		if ws != nil {
			blocks = ws.Overlapping(loc.Area)
		}
		covered := false
		for _, f := range blocks {
			reach(f)
			if f.Target.Covers(loc.Area) {
				covered = true
			}
		}
		if covered {
			continue
		}

		for c := range e.occupied(ws, loc) {
			if inBlock(blocks, c) {
				continue
			}
			if ws != nil {
				if f, ok := ws.cellFormula(c); ok {
					reach(f)
					continue
				}
			}
			if target, ok := e.program.aliases.Lookup(loc.Sheet, c.String()); ok {
				work = append(work, target)
				continue
			}
			if loc.Area.IsCell() && !e.program.values.Has(loc.Sheet, c.String()) {
				e.reportUnresolved(ctx, rec, loc.String(), tree)
			}
		}
	}
}

// occupied yields the coordinates of loc worth checking. small areas are
// enumerated cell by cell; areas much larger than what the sheet holds
// only yield coordinates that have a formula or a coordinate alias, in the
// same column-major order.
func (e *Engine) occupied(ws *Worksheet, loc Location) iter.Seq[Coordinate] {
	held := e.program.aliases.scopeLen(loc.Sheet)
	if ws != nil {
		held += len(ws.cells)
	}
	if loc.Area.IsCell() || loc.Area.Len() <= 4*held {
		return loc.Area.Cells()
	}

	var coords []Coordinate
	if ws != nil {
		for c := range ws.cells {
			if loc.Area.Contains(c) {
				coords = append(coords, c)
			}
		}
	}
	for _, c := range e.program.aliases.coordinateKeys(loc.Sheet) {
		if loc.Area.Contains(c) {
			coords = append(coords, c)
		}
	}
	slices.SortFunc(coords, func(a, b Coordinate) int {
		if n := cmp.Compare(a.Column, b.Column); n != 0 {
			return n
		}
		return cmp.Compare(a.Row, b.Row)
	})
	coords = slices.Compact(coords)
	return slices.Values(coords)
}

func inBlock(blocks []*Formula, c Coordinate) bool {
	for _, f := range blocks {
		if f.Target.Contains(c) {
			return true
		}
	}
	return false
}

func (e *Engine) reportUnresolved(ctx context.Context, rec *Formula, ref string, tree *CallTree) {
	tree.unresolved(rec, ref)
	e.loggerFor(ctx).Warn("unresolved reference",
		"root", tree.Root.Location().String(),
		"sheet", rec.Sheet,
		"target", rec.Target.String(),
		"line", rec.Line,
		"reference", ref)
}
