// Package pipeline orchestrates one extraction run: it walks a
// source's catalog in dependency order and hands each resource's
// record stream to the destination.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/pkg/connector/base"
	"github.com/ajitpratap0/comet/pkg/connector/core"
	"github.com/ajitpratap0/comet/pkg/errors"
	"github.com/ajitpratap0/comet/pkg/logger"
	"github.com/ajitpratap0/comet/pkg/mask"
)

// Runner drives one source into one destination.
type Runner struct {
	source      core.Source
	destination core.Destination
	masker      *mask.Engine
	log         *zap.Logger
}

// NewRunner wires an initialized source and destination together.
func NewRunner(source core.Source, destination core.Destination) *Runner {
	return &Runner{
		source:      source,
		destination: destination,
		log:         logger.Get().With(zap.String("component", "pipeline")),
	}
}

// WithMask installs a masking engine applied to every record before
// it reaches the destination.
func (r *Runner) WithMask(engine *mask.Engine) *Runner {
	r.masker = engine
	return r
}

// Result summarizes one run.
type Result struct {
	Resources int
	Failed    []string
	Elapsed   time.Duration
}

// Run extracts the named resources, or the entire catalog when the
// list is empty. Resources run strictly sequentially in catalog
// order, so parents are always loaded before their children. A
// failing resource aborts that resource only; siblings still run.
func (r *Runner) Run(ctx context.Context, resources []string) (*Result, error) {
	started := time.Now()

	catalog, err := r.source.Discover(ctx)
	if err != nil {
		return nil, err
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	defs, err := selectResources(catalog, resources)
	if err != nil {
		return nil, err
	}

	result := &Result{Resources: len(defs)}

	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(err, errors.ErrorTypeTimeout, "run cancelled")
		}

		r.log.Info("extracting resource",
			zap.String("resource", def.Name),
			zap.String("disposition", string(def.WriteDisposition)))

		if err := r.runResource(ctx, def); err != nil {
			r.log.Error("resource extraction failed",
				zap.String("resource", def.Name),
				zap.Error(err))
			result.Failed = append(result.Failed, def.Name)
			continue
		}
	}

	result.Elapsed = time.Since(started)

	if len(result.Failed) > 0 {
		return result, errors.New(errors.ErrorTypeInternal,
			fmt.Sprintf("%d of %d resources failed", len(result.Failed), len(defs))).
			WithDetail("failed", result.Failed)
	}
	return result, nil
}

func (r *Runner) runResource(ctx context.Context, def *core.ResourceDef) error {
	stream, err := r.source.Read(ctx, def.Name)
	if err != nil {
		return err
	}

	progress := base.NewProgressReporter(r.log, def.Name, 0)
	stream = r.observeStream(stream, progress)
	if r.masker != nil {
		stream = r.maskStream(stream)
	}

	if err := r.destination.Write(ctx, def, stream); err != nil {
		return err
	}
	progress.Finish()
	return nil
}

// observeStream counts records as they pass so long extractions log
// periodic progress.
func (r *Runner) observeStream(in *core.RecordStream, progress *base.ProgressReporter) *core.RecordStream {
	out := core.NewRecordStream(cap(in.Records))

	go func() {
		defer out.Close()
		for record := range in.Records {
			progress.Record()
			out.Records <- record
		}
		for err := range in.Errors {
			out.Errors <- err
		}
	}()

	return out
}

// maskStream interposes the masking engine between source and
// destination, rewriting each record's fields in place.
func (r *Runner) maskStream(in *core.RecordStream) *core.RecordStream {
	out := core.NewRecordStream(cap(in.Records))

	go func() {
		defer out.Close()
		for record := range in.Records {
			r.masker.Apply(record.Data)
			out.Records <- record
		}
		for err := range in.Errors {
			out.Errors <- err
		}
	}()

	return out
}

// selectResources resolves the requested names against the catalog,
// preserving catalog order so dependencies run first.
func selectResources(catalog *core.Catalog, names []string) ([]*core.ResourceDef, error) {
	if len(names) == 0 {
		return catalog.Resources, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := catalog.Get(name); !ok {
			return nil, errors.New(errors.ErrorTypeValidation,
				fmt.Sprintf("unknown resource %q", name)).
				WithDetail("available", catalog.Names())
		}
		wanted[name] = true
	}

	var defs []*core.ResourceDef
	for _, def := range catalog.Resources {
		if wanted[def.Name] {
			defs = append(defs, def)
		}
	}
	return defs, nil
}
