// Package datasets hosts the source-specific pipelines that turn raw
// registry rows into canonical entities and relationships. Each dataset
// package owns its field mapping tables, code tables, and per-record state
// machine; this package provides what they share: the pipeline context, the
// record stream abstraction, and dataset metadata.
package datasets

import (
	"log/slog"

	"github.com/opensanctions/graph/pkg/graph"
	"github.com/opensanctions/graph/pkg/identity"
	"github.com/opensanctions/graph/pkg/mapping"
	"github.com/opensanctions/graph/pkg/model"
)

// A RecordReader produces the raw rows of one source stream. Next returns
// io.EOF when the stream is exhausted. Decoding the container format is the
// caller's concern; pipelines only ever see decoded records.
type RecordReader interface {
	Next() (*model.RawRecord, error)
}

// Stats counts per-record outcomes of a pipeline run.
type Stats struct {
	Records  int `json:"records"`
	Skipped  int `json:"skipped"`
	Warnings int `json:"warnings"`
}

// Context carries the collaborators a pipeline needs: the emitter funnel,
// the dataset-scoped identity assigner, the mapping spec registry, and a
// structured logger. Processing is sequential; a Context must not be shared
// across goroutines.
type Context struct {
	Emitter  *graph.Emitter
	Assigner *identity.Assigner
	Registry *mapping.Registry
	Log      *slog.Logger

	stats Stats
}

// NewContext assembles a pipeline context. A nil registry gets an empty
// one; a nil logger is discarded-to-default.
func NewContext(emitter *graph.Emitter, assigner *identity.Assigner, registry *mapping.Registry, log *slog.Logger) *Context {
	if registry == nil {
		registry = mapping.NewRegistry()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Context{
		Emitter:  emitter,
		Assigner: assigner,
		Registry: registry,
		Log:      log,
	}
}

// Spec resolves a mapping spec by name, preferring a registered override
// over the built-in fallback.
func (c *Context) Spec(name string, fallback *mapping.Spec) *mapping.Spec {
	if spec, ok := c.Registry.Get(name); ok {
		return spec
	}
	return fallback
}

// Record counts one source record read.
func (c *Context) Record() {
	c.stats.Records++
}

// Warn logs a non-fatal audit signal and counts it. The record is still
// processed.
func (c *Context) Warn(msg string, args ...any) {
	c.stats.Warnings++
	c.Log.Warn(msg, args...)
}

// Skip logs a record-fatal problem and counts the skipped record. The run
// continues with the next record.
func (c *Context) Skip(err error, args ...any) {
	c.stats.Skipped++
	c.Log.Error("record skipped", append([]any{"error", err}, args...)...)
}

// Stats returns the per-record counters.
func (c *Context) Stats() Stats {
	return c.stats
}

// Metadata describes a dataset: its canonical name, the namespace prefix
// for identity assignment, and where the source lives. Declared in code per
// dataset and overridable from a metadata.yml file.
type Metadata struct {
	Name      string `yaml:"name"`
	Title     string `yaml:"title"`
	Prefix    string `yaml:"prefix"`
	URL       string `yaml:"url,omitempty"`
	Publisher string `yaml:"publisher,omitempty"`
}
