package transfer

import (
	"context"
	"fmt"

	"github.com/FocuswithJustin/annotransfer/core/align"
	"github.com/FocuswithJustin/annotransfer/core/bundle"
	"github.com/FocuswithJustin/annotransfer/core/errors"
	"github.com/FocuswithJustin/annotransfer/core/migrate"
	"github.com/FocuswithJustin/annotransfer/internal/logging"
	"github.com/FocuswithJustin/annotransfer/internal/validation"
)

// Operation names one transfer operation.
type Operation string

const (
	OpRootMapping          Operation = "root_mapping"
	OpTranslationMapping   Operation = "translation_mapping"
	OpSerializeCommentary  Operation = "serialize_commentary"
	OpAlignedCommentary    Operation = "aligned_commentary"
	OpSerializeTranslation Operation = "serialize_translation"
	OpAlignedTranslation   Operation = "aligned_translation"
)

// Operations lists every operation in the order RunJob runs them.
var Operations = []Operation{
	OpRootMapping,
	OpTranslationMapping,
	OpSerializeCommentary,
	OpAlignedCommentary,
	OpSerializeTranslation,
	OpAlignedTranslation,
}

// Job names the renderings of one text. Only the renderings needed by the
// requested operations must be set.
type Job struct {
	Name               string            `toml:"name" yaml:"name"`
	Operations         []Operation       `toml:"operations" yaml:"operations"`
	Root               migrate.Rendering `toml:"root" yaml:"root"`
	RootDisplay        migrate.Rendering `toml:"root_display" yaml:"root_display"`
	Commentary         migrate.Rendering `toml:"commentary" yaml:"commentary"`
	Translation        migrate.Rendering `toml:"translation" yaml:"translation"`
	TranslationDisplay migrate.Rendering `toml:"translation_display" yaml:"translation_display"`
	Output             string            `toml:"output" yaml:"output"`
	Compression        string            `toml:"compression" yaml:"compression"`
}

// Requires returns the renderings op reads.
func (j Job) Requires(op Operation) ([]migrate.Rendering, error) {
	switch op {
	case OpRootMapping:
		return []migrate.Rendering{j.Root, j.RootDisplay}, nil
	case OpTranslationMapping:
		return []migrate.Rendering{j.Translation, j.TranslationDisplay}, nil
	case OpSerializeCommentary, OpAlignedCommentary:
		return []migrate.Rendering{j.Root, j.RootDisplay, j.Commentary}, nil
	case OpSerializeTranslation, OpAlignedTranslation:
		return []migrate.Rendering{j.Root, j.RootDisplay, j.Translation}, nil
	}
	v := errors.NewValidation("operations", "unknown operation")
	v.Value = string(op)
	return nil, v
}

// Validate checks every rendering the job's operations read.
func (j Job) Validate() error {
	if err := validation.ValidateID("name", j.Name); err != nil {
		return err
	}
	if len(j.Operations) == 0 {
		return errors.NewValidation("operations", "job "+j.Name+" has no operations")
	}
	for _, op := range j.Operations {
		renderings, err := j.Requires(op)
		if err != nil {
			return err
		}
		for _, r := range renderings {
			if err := r.Validate(); err != nil {
				return errors.Wrapf(err, "job %s, %s", j.Name, op)
			}
		}
	}
	return nil
}

// Result is the output of one operation. Exactly one of Mapping, Segments
// and Aligned is set.
type Result struct {
	Job       string        `json:"job"`
	RequestID string        `json:"request_id"`
	Operation Operation     `json:"operation"`
	Mapping   align.Mapping `json:"mapping,omitempty"`
	Segments  []string      `json:"segments,omitempty"`
	Aligned   [][]string    `json:"aligned,omitempty"`
}

// Run executes a single operation of job.
func (t *Transfer) Run(ctx context.Context, job Job, op Operation) (*Result, error) {
	ctx, id := t.begin(ctx)
	res := &Result{Job: job.Name, RequestID: id, Operation: op}
	var err error
	switch op {
	case OpRootMapping:
		res.Mapping, err = t.RootMapping(ctx, job.Root, job.RootDisplay)
	case OpTranslationMapping:
		res.Mapping, err = t.TranslationMapping(ctx, job.Translation, job.TranslationDisplay)
	case OpSerializeCommentary:
		res.Segments, err = t.SerializeCommentary(ctx, job.Root, job.RootDisplay, job.Commentary)
	case OpAlignedCommentary:
		res.Aligned, err = t.AlignedDisplayCommentary(ctx, job.Root, job.RootDisplay, job.Commentary)
	case OpSerializeTranslation:
		res.Segments, err = t.SerializeTranslation(ctx, job.Root, job.RootDisplay, job.Translation)
	case OpAlignedTranslation:
		res.Aligned, err = t.AlignedDisplayTranslation(ctx, job.Root, job.RootDisplay, job.Translation)
	default:
		_, err = job.Requires(op)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", job.Name, op)
	}
	return res, nil
}

// RunJob runs the job's operations in order under one request id and stops
// at the first failure.
func (t *Transfer) RunJob(ctx context.Context, job Job) ([]*Result, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	ctx, id := t.begin(ctx)
	logging.InfoContext(ctx, "job started", "job", job.Name, "operations", len(job.Operations))

	results := make([]*Result, 0, len(job.Operations))
	for _, op := range job.Operations {
		res, err := t.Run(ctx, job, op)
		if err != nil {
			logging.ErrorContext(ctx, "job failed", "job", job.Name, "operation", string(op), "error", err.Error())
			return nil, err
		}
		results = append(results, res)
	}
	logging.InfoContext(ctx, "job finished", "job", job.Name, "request_id", id)
	return results, nil
}

// WriteBundle packs results into a bundle archive at archivePath, using
// workDir for the unpacked blobs.
func WriteBundle(job Job, results []*Result, workDir, archivePath string) (*bundle.Bundle, error) {
	requestID := ""
	if len(results) > 0 {
		requestID = results[0].RequestID
	}
	b, err := bundle.New(workDir, requestID)
	if err != nil {
		return nil, err
	}
	b.Manifest.Job = job.Name

	for _, res := range results {
		name := fmt.Sprintf("%s.%s.json", job.Name, res.Operation)
		var err error
		switch {
		case res.Mapping != nil:
			_, err = b.AddJSON(name, bundle.KindMapping, res.Mapping)
		case res.Aligned != nil:
			_, err = b.AddJSON(name, bundle.KindAligned, res.Aligned)
		default:
			segments := res.Segments
			if segments == nil {
				segments = []string{}
			}
			_, err = b.AddJSON(name, bundle.KindSegments, segments)
		}
		if err != nil {
			return nil, err
		}
	}

	opts := bundle.DefaultPackOptions()
	if job.Compression != "" {
		opts.Compression = bundle.CompressionType(job.Compression)
	}
	if err := b.Pack(archivePath, opts); err != nil {
		return nil, err
	}
	return b, nil
}
