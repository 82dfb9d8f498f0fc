package artifact

import "time"

// RepositoryRef identifies a hosted repository. Built once by source.ParseRepositoryRef.
type RepositoryRef struct {
	Owner        string `json:"owner"`
	Name         string `json:"name"`
	CanonicalURL string `json:"canonicalUrl"`
}

// FullName returns "owner/name".
func (r RepositoryRef) FullName() string {
	return r.Owner + "/" + r.Name
}

// RepoMetadata is the host's description of a repository.
type RepoMetadata struct {
	Name          string    `json:"name"`
	FullName      string    `json:"fullName"`
	Description   string    `json:"description,omitempty"`
	Language      string    `json:"language,omitempty"`
	DefaultBranch string    `json:"defaultBranch"`
	OpenIssues    int       `json:"openIssues"`
	License       string    `json:"license,omitempty"`
	Stars         int       `json:"stars"`
	Private       bool      `json:"private"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty"`
}

// Node types in a tree listing.
const (
	NodeFile    = "file"
	NodeDir     = "dir"
	NodeSummary = "summary" // excluded directory, listed but not expanded
)

// TreeNode is one entry of a depth-bounded tree listing.
type TreeNode struct {
	Path     string     `json:"path"`
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	Size     int        `json:"size,omitempty"`
	Children []TreeNode `json:"children,omitempty"`
}

// ChangedFile is a path and how many recent commits touched it.
type ChangedFile struct {
	Path        string `json:"path"`
	ChangeCount int    `json:"changeCount"`
}

// FileSample is the content of one frequently changed file.
type FileSample struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	ChangeCount int    `json:"changeCount"`
}

// FlattenTree returns every node path in depth-first order. Summary leaves are
// suffixed with "/…" so prompts can tell them apart.
func FlattenTree(nodes []TreeNode) []string {
	var out []string
	var walk func([]TreeNode)
	walk = func(ns []TreeNode) {
		for _, n := range ns {
			switch n.Type {
			case NodeDir:
				out = append(out, n.Path+"/")
				walk(n.Children)
			case NodeSummary:
				out = append(out, n.Path+"/…")
			default:
				out = append(out, n.Path)
			}
		}
	}
	walk(nodes)
	return out
}
