package preflight

import (
	"context"
	"fmt"
	"time"
)

// EmbedderProbeTimeout bounds the probe request.
const EmbedderProbeTimeout = 10 * time.Second

const probeText = "notebrain preflight probe"

// CheckEmbedder sends one short text to the embedder. Retrieval still works
// lexically without it, so the check is optional.
func (c *Checker) CheckEmbedder(ctx context.Context, embedder Prober) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: false,
	}

	ctx, cancel := context.WithTimeout(ctx, EmbedderProbeTimeout)
	defer cancel()

	start := time.Now()
	vec, err := embedder.Embed(ctx, probeText)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s unreachable: %v", embedder.ModelName(), err)
		result.Details = "Queries fall back to lexical search until the embedder answers"
		return result
	}
	if len(vec) == 0 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s returned an empty vector", embedder.ModelName())
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dims, %s)", embedder.ModelName(), len(vec), time.Since(start).Round(time.Millisecond))
	return result
}

// CheckIndex compares entry counts across the metadata, lexical and vector
// stores.
func (c *Checker) CheckIndex(ctx context.Context, index IndexChecker) CheckResult {
	result := CheckResult{
		Name:     "index",
		Required: false,
	}

	consistent, err := index.QuickCheck(ctx)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot read index: %v", err)
		return result
	}
	if !consistent {
		result.Status = StatusWarn
		result.Message = "store counts disagree"
		result.Details = "Run 'notebrain check --repair' to fix"
		return result
	}

	result.Status = StatusPass
	result.Message = "consistent"
	return result
}
