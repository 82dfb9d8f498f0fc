package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repolens/internal/apperr"
	"repolens/internal/artifact"
)

var widgets = artifact.RepositoryRef{Owner: "acme", Name: "widgets", CanonicalURL: "https://github.com/acme/widgets"}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func fileContent(path, body string) map[string]any {
	return map[string]any{
		"type":     "file",
		"name":     path,
		"path":     path,
		"encoding": "base64",
		"content":  base64.StdEncoding.EncodeToString([]byte(body)),
		"size":     len(body),
	}
}

func newTestFetcher(t *testing.T, mux *http.ServeMux, token string) *GitHubFetcher {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	f, err := NewGitHubFetcher(GitHubConfig{Token: token, BaseURL: srv.URL})
	require.NoError(t, err)
	return f
}

// widgetsHistory serves nine commits: every one touches package-lock.json,
// the first five touch src/a.ts and the first two touch src/b.ts.
func widgetsHistory(mux *http.ServeMux, detailCalls *atomic.Int32) {
	mux.HandleFunc("GET /repos/acme/widgets/commits", func(w http.ResponseWriter, r *http.Request) {
		var list []map[string]any
		for i := 0; i < 9; i++ {
			list = append(list, map[string]any{"sha": fmt.Sprintf("sha%d", i)})
		}
		writeJSON(w, list)
	})
	mux.HandleFunc("GET /repos/acme/widgets/commits/{sha}", func(w http.ResponseWriter, r *http.Request) {
		if detailCalls != nil {
			detailCalls.Add(1)
		}
		var i int
		_, _ = fmt.Sscanf(r.PathValue("sha"), "sha%d", &i)
		files := []map[string]any{{"filename": "package-lock.json"}}
		if i < 5 {
			files = append(files, map[string]any{"filename": "src/a.ts"})
		}
		if i < 2 {
			files = append(files, map[string]any{"filename": "src/b.ts"})
		}
		writeJSON(w, map[string]any{"sha": r.PathValue("sha"), "files": files})
	})
}

func TestGetChangedFilesExcludesLockfiles(t *testing.T) {
	mux := http.NewServeMux()
	widgetsHistory(mux, nil)
	f := newTestFetcher(t, mux, "")

	got, err := f.GetChangedFiles(context.Background(), widgets, 3)
	require.NoError(t, err)
	assert.Equal(t, []artifact.ChangedFile{
		{Path: "src/a.ts", ChangeCount: 5},
		{Path: "src/b.ts", ChangeCount: 2},
	}, got)
}

func TestGetChangedFilesDetailWindow(t *testing.T) {
	mux := http.NewServeMux()
	var calls atomic.Int32
	widgetsHistory(mux, &calls)
	srv := httptest.NewServer(mux)
	defer srv.Close()
	f, err := NewGitHubFetcher(GitHubConfig{BaseURL: srv.URL, DetailWindow: 3})
	require.NoError(t, err)

	got, err := f.GetChangedFiles(context.Background(), widgets, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []artifact.ChangedFile{
		{Path: "src/a.ts", ChangeCount: 3},
		{Path: "src/b.ts", ChangeCount: 2},
	}, got)
}

func TestGetChangedFilesEmptyRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/commits", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		writeJSON(w, map[string]any{"message": "Git Repository is empty."})
	})
	f := newTestFetcher(t, mux, "")

	got, err := f.GetChangedFiles(context.Background(), widgets, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRankChangedTieBreak(t *testing.T) {
	got := rankChanged(map[string]int{"b.go": 2, "a.go": 2, "c.go": 7, "d.go": 1}, 3)
	assert.Equal(t, []artifact.ChangedFile{
		{Path: "c.go", ChangeCount: 7},
		{Path: "a.go", ChangeCount: 2},
		{Path: "b.go", ChangeCount: 2},
	}, got)
}

func TestGetMetadata(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"name":              "widgets",
			"full_name":         "acme/widgets",
			"description":       "Widgets for everyone",
			"language":          "TypeScript",
			"default_branch":    "main",
			"open_issues_count": 4,
			"stargazers_count":  12,
			"license":           map[string]any{"spdx_id": "MIT", "name": "MIT License"},
		})
	})
	f := newTestFetcher(t, mux, "")

	md, err := f.GetMetadata(context.Background(), widgets)
	require.NoError(t, err)
	assert.Equal(t, "acme/widgets", md.FullName)
	assert.Equal(t, "TypeScript", md.Language)
	assert.Equal(t, "main", md.DefaultBranch)
	assert.Equal(t, 4, md.OpenIssues)
	assert.Equal(t, "MIT", md.License)
}

func TestGetMetadataNotFoundDependsOnAuth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]any{"message": "Not Found"})
	})

	_, err := newTestFetcher(t, mux, "").GetMetadata(context.Background(), widgets)
	assert.True(t, errors.Is(err, apperr.ErrAccessDenied), "anonymous 404 should be access denied: %v", err)
	assert.Contains(t, err.Error(), "may be private")

	_, err = newTestFetcher(t, mux, "token").GetMetadata(context.Background(), widgets)
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "authenticated 404 should be not found: %v", err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestGetTreeSummarizesExcludedDirs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/contents/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/widgets/contents/":
			writeJSON(w, []map[string]any{
				{"type": "file", "name": "README.md", "path": "README.md", "size": 10},
				{"type": "dir", "name": "node_modules", "path": "node_modules"},
				{"type": "dir", "name": "src", "path": "src"},
			})
		case "/repos/acme/widgets/contents/src":
			writeJSON(w, []map[string]any{
				{"type": "file", "name": "a.ts", "path": "src/a.ts", "size": 3},
				{"type": "dir", "name": "lib", "path": "src/lib"},
			})
		default:
			t.Errorf("unexpected listing %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	f := newTestFetcher(t, mux, "")

	nodes, err := f.GetTree(context.Background(), widgets, "", 2)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, artifact.NodeFile, nodes[0].Type)
	assert.Equal(t, artifact.NodeSummary, nodes[1].Type)
	assert.Empty(t, nodes[1].Children)
	assert.Equal(t, artifact.NodeDir, nodes[2].Type)
	require.Len(t, nodes[2].Children, 2)
	assert.Equal(t, artifact.NodeDir, nodes[2].Children[1].Type)
	assert.Empty(t, nodes[2].Children[1].Children)

	assert.Equal(t, []string{"README.md", "node_modules/…", "src/", "src/a.ts", "src/lib/"}, artifact.FlattenTree(nodes))
}

func TestGetFileContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/widgets/contents/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/widgets/contents/src/a.ts":
			writeJSON(w, fileContent("src/a.ts", "export const a = 1\n"))
		case "/repos/acme/widgets/contents/src":
			writeJSON(w, []map[string]any{{"type": "file", "name": "a.ts", "path": "src/a.ts"}})
		case "/repos/acme/widgets/contents/big.bin":
			writeJSON(w, map[string]any{"type": "file", "name": "big.bin", "path": "big.bin", "encoding": "none"})
		default:
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"message": "Not Found"})
		}
	})
	f := newTestFetcher(t, mux, "")
	ctx := context.Background()

	got, err := f.GetFileContent(ctx, widgets, "src/a.ts")
	require.NoError(t, err)
	assert.Equal(t, "export const a = 1\n", got)

	_, err = f.GetFileContent(ctx, widgets, "src")
	assert.True(t, errors.Is(err, apperr.ErrContentUnavailable), "%v", err)

	_, err = f.GetFileContent(ctx, widgets, "big.bin")
	assert.True(t, errors.Is(err, apperr.ErrContentUnavailable), "%v", err)

	_, err = f.GetFileContent(ctx, widgets, "missing.ts")
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "%v", err)
}
