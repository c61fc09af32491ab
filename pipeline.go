package pipeline

import (
	"cmp"
	"context"

	"github.com/tollgate-run/pipeline/telemetry"
)

// PipelineConfig configures a Pipeline.
type PipelineConfig[T cmp.Ordered] struct {
	Orchestrator    *Orchestrator[T]
	Repository      Repository[T]
	ManualBarriers  []*ManualBarrierController[T]
	CountedBarriers []*CountedBarrierController[T]
	Logger          telemetry.Logger
}

// Pipeline is the external surface spec §6 describes: Push starts
// orchestration for a passenger and returns a Job handle; ManualBarriers and
// CountedBarriers expose every controller the pipeline owns, e.g. for an
// external caller driving a ManualBarrierController's Lift.
type Pipeline[T cmp.Ordered] struct {
	orchestrator    *Orchestrator[T]
	repo            Repository[T]
	manualBarriers  []*ManualBarrierController[T]
	countedBarriers []*CountedBarrierController[T]
	logger          telemetry.Logger
}

// NewPipeline constructs a Pipeline. Repository defaults to a fresh
// MemRepository if cfg.Repository is nil.
func NewPipeline[T cmp.Ordered](cfg PipelineConfig[T]) *Pipeline[T] {
	repo := cfg.Repository
	if repo == nil {
		repo = NewMemRepository[T]()
	}
	return &Pipeline[T]{
		orchestrator:    cfg.Orchestrator,
		repo:            repo,
		manualBarriers:  cfg.ManualBarriers,
		countedBarriers: cfg.CountedBarriers,
		logger:          cfg.Logger,
	}
}

// ManualBarriers returns every ManualBarrierController this pipeline owns.
func (p *Pipeline[T]) ManualBarriers() []*ManualBarrierController[T] { return p.manualBarriers }

// CountedBarriers returns every CountedBarrierController this pipeline owns.
func (p *Pipeline[T]) CountedBarriers() []*CountedBarrierController[T] { return p.countedBarriers }

// Push starts a fresh orchestration run for input and returns a Job handle
// to await its outcome. If tag is empty a fresh one is generated, and if
// that generated tag collides Push retries once with another fresh tag. A
// collision on a caller-supplied tag is returned as an error, not retried.
func (p *Pipeline[T]) Push(ctx context.Context, input T, tag string) (*Job[T], error) {
	useTag := tag
	if useTag == "" {
		useTag = NewTag()
	}

	job := newJob[T](useTag)
	if err := p.repo.Add(useTag, job); err != nil {
		if tag != "" {
			return nil, err
		}
		// Caller left tag generation to us: retry once with a fresh tag
		// rather than surfacing a collision the caller can't have caused.
		useTag = NewTag()
		job = newJob[T](useTag)
		if err := p.repo.Add(useTag, job); err != nil {
			return nil, err
		}
	}

	go func() {
		result, completed, err := p.orchestrator.Run(ctx, input)
		job.complete(result, completed, err)
		p.repo.Remove(useTag)
	}()

	return job, nil
}
