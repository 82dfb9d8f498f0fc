package workers

import (
	"context"

	"repolens/internal/artifact"
	"repolens/internal/codefacts"
)

// CodeFactsWorker runs the local pattern analyzer. It never calls the network.
type CodeFactsWorker struct{}

func (CodeFactsWorker) Run(ctx context.Context, samples []artifact.FileSample) (artifact.CodeFacts, error) {
	if err := ctx.Err(); err != nil {
		return artifact.CodeFacts{}, err
	}
	return codefacts.Analyze(samples), nil
}
