package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/fleximart-etl/internal/config"
	"github.com/JonMunkholm/fleximart-etl/internal/logging"
	"github.com/JonMunkholm/fleximart-etl/internal/schema"
)

// Stage is a state of the pipeline run.
type Stage int

const (
	StageExtracting Stage = iota
	StageNormalizing
	StageDeduplicating
	StageResolvingMissing
	StageAssigningKeys
	StageLoading
	StageReporting
	StageDone
	StageFailed
)

var stageNames = map[Stage]string{
	StageExtracting:       "extracting",
	StageNormalizing:      "normalizing",
	StageDeduplicating:    "deduplicating",
	StageResolvingMissing: "resolving_missing",
	StageAssigningKeys:    "assigning_keys",
	StageLoading:          "loading",
	StageReporting:        "reporting",
	StageDone:             "done",
	StageFailed:           "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseStage is the inverse of Stage.String.
func ParseStage(name string) (Stage, bool) {
	for s, n := range stageNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

// RunRecorder is implemented by stores that keep run history.
type RunRecorder interface {
	RecordRun(ctx context.Context, report *Report, rejections []Rejection) error
}

// Options configures a pipeline.
type Options struct {
	// Paths maps source key to raw file path.
	Paths      map[string]string
	Rules      config.Rules
	Retry      RetryConfig
	ReportPath string // empty skips writing the report file
}

// Result is everything a run produced.
type Result struct {
	Report     *Report
	Rejections []Rejection
	Keys       *KeyMap
	// Loaded holds the committed entities per type.
	Loaded map[EntityType][]Entity
}

// Products returns the committed products in load order.
func (r *Result) Products() []*Product {
	var out []*Product
	for _, e := range r.Loaded[TypeProduct] {
		if p, ok := e.(*Product); ok {
			out = append(out, p)
		}
	}
	return out
}

// Pipeline runs the FlexiMart ETL. It holds no per-run state and may be
// reused, but runs must not overlap.
type Pipeline struct {
	store      Store
	opts       Options
	normalizer *Normalizer
	resolver   *Resolver
	now        func() time.Time
}

// New validates the options and builds a pipeline.
func New(store Store, opts Options) (*Pipeline, error) {
	if store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if err := opts.Rules.Validate(); err != nil {
		return nil, err
	}
	for _, src := range schema.Sources {
		if opts.Paths[src.Key] == "" {
			return nil, fmt.Errorf("pipeline: no path for source %q", src.Key)
		}
	}
	resolver, err := NewResolver(opts.Rules)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		store:      store,
		opts:       opts,
		normalizer: NewNormalizer(opts.Rules),
		resolver:   resolver,
		now:        time.Now,
	}, nil
}

// runState is the explicit state of one run, owned by Run and passed to
// every stage.
type runState struct {
	id        string
	stage     Stage
	startedAt time.Time

	counters   map[string]*QualityCounters
	keys       *KeyMap
	records    map[string][]RawRecord
	entities   map[string][]Entity
	rejections []Rejection
	loaded     map[EntityType][]Entity
	log        *slog.Logger

	// interrupted reports cancellation of the caller's context.
	interrupted func() error
}

func (st *runState) reject(r Rejection) {
	st.rejections = append(st.rejections, r)
	if c, ok := st.counters[r.Source]; ok {
		c.Reject(r)
	}
	st.log.Warn("record rejected",
		"source", r.Source,
		"line", r.Line,
		"natural_key", r.Key,
		"reason", string(r.Reason),
		"kind", r.Kind.String(),
		"detail", r.Detail,
	)
}

// Run executes one pass. Cancellation of ctx is honored between stages and
// between entity-type batches; work already committed is kept. The report is
// produced even when the run fails, and the returned Result is never nil.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	id := uuid.NewString()
	ctx = logging.WithRunID(ctx, id)

	st := &runState{
		id:        id,
		startedAt: p.now(),
		counters:  newCounters(p.opts.Paths),
		keys:      NewKeyMap(),
		records:   make(map[string][]RawRecord),
		entities:  make(map[string][]Entity),
		loaded:    make(map[EntityType][]Entity),
		log:       logging.FromContext(ctx),

		interrupted: ctx.Err,
	}
	st.log.Info("pipeline run started")

	// Stages run to completion once started.
	work := context.WithoutCancel(ctx)

	stages := []struct {
		stage Stage
		run   func(context.Context, *runState) error
	}{
		{StageExtracting, p.extract},
		{StageNormalizing, p.normalize},
		{StageDeduplicating, p.deduplicate},
		{StageResolvingMissing, p.resolveMissing},
		{StageAssigningKeys, p.assignKeys},
		{StageLoading, p.load},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return p.finish(work, st, fmt.Errorf("cancelled before %s: %w", s.stage, err))
		}
		st.stage = s.stage
		st.log.Info("stage started", "stage", s.stage.String())
		if err := s.run(work, st); err != nil {
			return p.finish(work, st, fmt.Errorf("%s: %w", s.stage, err))
		}
	}

	if err := ctx.Err(); err != nil {
		return p.finish(work, st, fmt.Errorf("cancelled before %s: %w", StageReporting, err))
	}
	return p.finish(work, st, nil)
}

func (p *Pipeline) extract(ctx context.Context, st *runState) error {
	for _, src := range schema.Sources {
		ext, err := ExtractFile(ctx, src, p.opts.Paths[src.Key])
		if err != nil {
			return err
		}
		st.counters[src.Key].Processed = ext.Processed()
		for _, r := range ext.Rejections {
			st.reject(r)
		}
		st.records[src.Key] = ext.Records
		st.log.Info("source extracted", "source", src.Key, "rows", ext.Processed(), "rejected", len(ext.Rejections))
	}
	return nil
}

func (p *Pipeline) normalize(_ context.Context, st *runState) error {
	for _, src := range schema.Sources {
		c := st.counters[src.Key]
		var out []Entity
		for _, rec := range st.records[src.Key] {
			res := p.normalizer.Normalize(rec)
			if res.Rejection != nil {
				st.reject(*res.Rejection)
				continue
			}
			for _, fe := range res.Malformed {
				c.FieldsMalformed++
				st.log.Warn("malformed field treated as missing",
					"source", fe.Source, "line", fe.Line, "field", fe.Field, "kind", fe.Kind.String(), "error", fe.Err)
			}
			if res.UnknownCategory != "" {
				c.CategoriesUnrecognized++
				st.log.Warn("unrecognized category", "source", src.Key, "line", rec.Line(), "category", res.UnknownCategory)
			}
			out = append(out, res.Entity)
		}
		st.entities[src.Key] = out
		delete(st.records, src.Key)
	}
	return nil
}

func (p *Pipeline) deduplicate(_ context.Context, st *runState) error {
	for _, src := range schema.Sources {
		res := Deduplicate(st.entities[src.Key])
		for _, r := range res.Removed {
			st.reject(r)
		}
		st.entities[src.Key] = res.Kept
	}
	return nil
}

func (p *Pipeline) resolveMissing(_ context.Context, st *runState) error {
	for _, src := range schema.Sources {
		res := p.resolver.Resolve(src.Key, st.entities[src.Key])
		for _, r := range res.Dropped {
			st.reject(r)
		}
		st.counters[src.Key].MissingHandled += res.Handled
		if len(res.Aggregates) > 0 {
			st.log.Info("imputed values", "source", src.Key, "aggregates", res.Aggregates)
		}
		st.entities[src.Key] = res.Kept
	}
	return nil
}

func (p *Pipeline) assignKeys(_ context.Context, st *runState) error {
	for _, src := range schema.Sources {
		kept, rejected, warnings := AssignKeys(st.keys, st.entities[src.Key])
		for _, r := range rejected {
			st.reject(r)
		}
		for _, w := range warnings {
			st.log.Warn("key alias ignored", "source", src.Key, "error", w)
		}
		st.entities[src.Key] = kept
	}
	st.keys.Freeze()
	return nil
}

func (p *Pipeline) load(ctx context.Context, st *runState) error {
	loader := NewLoader(p.store, st.keys, p.opts.Retry)
	if err := loader.Reset(ctx); err != nil {
		return fmt.Errorf("reset destination: %w", err)
	}

	for _, t := range LoadOrder {
		if err := st.interrupted(); err != nil {
			return fmt.Errorf("cancelled before %s batch: %w", t, err)
		}

		var batch []Entity
		switch t {
		case TypeOrderItem:
			for _, e := range st.loaded[TypeOrder] {
				if o := e.(*Order); o.Item != nil {
					batch = append(batch, o.Item)
				}
			}
		default:
			batch = st.entities[t.Source()]
		}

		out := loader.Load(ctx, t, batch)
		for _, r := range out.Rejected {
			st.reject(r)
		}
		if out.Err != nil {
			return out.Err
		}

		st.loaded[t] = out.Loaded
		// A sales row counts as loaded once its line item is.
		if t != TypeOrder {
			st.counters[t.Source()].Loaded += len(out.Loaded)
		}
		st.log.Info("batch loaded", "type", t.String(), "rows", len(out.Loaded), "rejected", len(out.Rejected))
	}
	return nil
}

// finish runs the Reporting stage and moves the run to its terminal state.
func (p *Pipeline) finish(ctx context.Context, st *runState, runErr error) (*Result, error) {
	failedAt := st.stage
	st.stage = StageReporting

	report := &Report{
		RunID:      st.id,
		State:      StageDone,
		StartedAt:  st.startedAt,
		FinishedAt: p.now(),
	}
	if runErr != nil {
		report.State = StageFailed
		report.Error = runErr.Error()
	}
	for _, src := range schema.Sources {
		report.Sources = append(report.Sources, *st.counters[src.Key])
	}

	result := &Result{Report: report, Rejections: st.rejections, Keys: st.keys, Loaded: st.loaded}

	if p.opts.ReportPath != "" {
		if err := os.WriteFile(p.opts.ReportPath, []byte(report.Render()), 0o644); err != nil {
			st.log.Error("writing quality report", "path", p.opts.ReportPath, "error", err)
			if runErr == nil {
				runErr = fmt.Errorf("%s: write report: %w", StageReporting, err)
				failedAt = StageReporting
				report.State = StageFailed
				report.Error = runErr.Error()
			}
		}
	}

	if rec, ok := p.store.(RunRecorder); ok {
		rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := rec.RecordRun(rctx, report, st.rejections); err != nil {
			st.log.Error("recording run history", "error", err)
		}
		cancel()
	}

	if runErr != nil {
		st.stage = StageFailed
		st.log.Error("pipeline run failed", "stage", failedAt.String(), "kind", KindOf(runErr).String(), "error", runErr)
		return result, runErr
	}

	st.stage = StageDone
	st.log.Info("pipeline run finished", "duration", report.FinishedAt.Sub(report.StartedAt).String())
	return result, nil
}
