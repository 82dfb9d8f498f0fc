// Package source reads repository metadata, tree listings, commit history and
// file content from the hosting API. It does no analysis.
package source

import (
	"context"

	"repolens/internal/artifact"
)

// Fetcher is the narrow view of the source host that the pipeline consumes.
type Fetcher interface {
	GetMetadata(ctx context.Context, ref artifact.RepositoryRef) (artifact.RepoMetadata, error)
	GetTree(ctx context.Context, ref artifact.RepositoryRef, path string, maxDepth int) ([]artifact.TreeNode, error)
	GetChangedFiles(ctx context.Context, ref artifact.RepositoryRef, limit int) ([]artifact.ChangedFile, error)
	GetFileContent(ctx context.Context, ref artifact.RepositoryRef, path string) (string, error)
}

const (
	DefaultChangedLimit = 10
	DefaultSampleCount  = 5
	DefaultTreeDepth    = 3
)
