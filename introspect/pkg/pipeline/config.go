// Package pipeline assembles the introspection pipeline for one worker:
// time bucketing, stateful event demultiplexing, per-kind aggregation, and
// materialization of the active variants into indexed, queryable relations.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/brookdb/brook/introspect/pkg/relation"
)

// Config configures one worker's pipeline.
type Config struct {
	Logger *slog.Logger

	// GranularityNs is the reporting granularity in nanoseconds. Output
	// times are bucketed to whole milliseconds, so the effective
	// granularity is never finer than one millisecond.
	GranularityNs uint64

	// ActiveVariants lists the relations to materialize. Variants not
	// listed are never computed: no aggregator state, no arrangement.
	ActiveVariants []relation.Variant
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.GranularityNs == 0 {
		return errors.New("granularity must be greater than 0")
	}
	for _, v := range c.ActiveVariants {
		if !v.Valid() {
			return fmt.Errorf("unknown variant %q", v)
		}
	}
	return nil
}

func (c *Config) active() map[relation.Variant]bool {
	m := make(map[relation.Variant]bool, len(c.ActiveVariants))
	for _, v := range c.ActiveVariants {
		m[v] = true
	}
	return m
}
