package artifact

import "time"

// CompositeAnalysis is the persisted union of every succeeded task. A task
// that did not succeed has no key in the encoded document.
type CompositeAnalysis struct {
	Repository      RepositoryRef    `json:"repository"`
	Metadata        *RepoMetadata    `json:"metadata,omitempty"`
	Structure       *Structure       `json:"structure,omitempty"`
	CodeFacts       *CodeFacts       `json:"codeFacts,omitempty"`
	CriticalPaths   *CriticalPaths   `json:"criticalPaths,omitempty"`
	DependencyGraph *DependencyGraph `json:"dependencyGraph,omitempty"`
	Tutorial        *Tutorial        `json:"tutorial,omitempty"`
	Role            string           `json:"role,omitempty"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}
