package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"repolens/internal/apperr"
	"repolens/internal/artifact"
)

// GitHubConfig configures a GitHubFetcher. Zero values pick the defaults.
type GitHubConfig struct {
	Token        string
	BaseURL      string // API root, e.g. an httptest server or GitHub Enterprise
	HTTPClient   *http.Client
	Filter       *Filter
	CommitWindow int // commits listed for change ranking
	DetailWindow int // most recent commits fetched in detail
	MaxFileBytes int
	CallTimeout  time.Duration
	MinDelay     time.Duration
}

// GitHubFetcher implements Fetcher over the GitHub REST API.
type GitHubFetcher struct {
	client        *github.Client
	authenticated bool
	filter        *Filter
	commitWindow  int
	detailWindow  int
	maxFileBytes  int
	callTimeout   time.Duration
	pacer         *pacer
}

func NewGitHubFetcher(cfg GitHubConfig) (*GitHubFetcher, error) {
	httpClient := cfg.HTTPClient
	token := strings.TrimSpace(cfg.Token)
	if token != "" {
		ctx := context.Background()
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	client := github.NewClient(httpClient)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		client.BaseURL = u
	}
	f := &GitHubFetcher{
		client:        client,
		authenticated: token != "",
		filter:        cfg.Filter,
		commitWindow:  cfg.CommitWindow,
		detailWindow:  cfg.DetailWindow,
		maxFileBytes:  cfg.MaxFileBytes,
		callTimeout:   cfg.CallTimeout,
		pacer:         newPacer(cfg.MinDelay),
	}
	if f.filter == nil {
		f.filter = DefaultFilter()
	}
	if f.commitWindow <= 0 {
		f.commitWindow = 100
	}
	if f.detailWindow <= 0 {
		f.detailWindow = 30
	}
	if f.maxFileBytes <= 0 {
		f.maxFileBytes = 64 * 1024
	}
	if f.callTimeout <= 0 {
		f.callTimeout = 30 * time.Second
	}
	return f, nil
}

func (f *GitHubFetcher) call(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := f.pacer.Wait(ctx); err != nil {
		return nil, nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
	return callCtx, cancel, nil
}

func (f *GitHubFetcher) GetMetadata(ctx context.Context, ref artifact.RepositoryRef) (artifact.RepoMetadata, error) {
	callCtx, cancel, err := f.call(ctx)
	if err != nil {
		return artifact.RepoMetadata{}, err
	}
	defer cancel()

	repo, resp, err := f.client.Repositories.Get(callCtx, ref.Owner, ref.Name)
	f.pacer.Observe(resp)
	if err != nil {
		return artifact.RepoMetadata{}, f.repoError(ref, resp, err)
	}
	md := artifact.RepoMetadata{
		Name:          repo.GetName(),
		FullName:      repo.GetFullName(),
		Description:   repo.GetDescription(),
		Language:      repo.GetLanguage(),
		DefaultBranch: repo.GetDefaultBranch(),
		OpenIssues:    repo.GetOpenIssuesCount(),
		Stars:         repo.GetStargazersCount(),
		Private:       repo.GetPrivate(),
		UpdatedAt:     repo.GetUpdatedAt().Time,
	}
	if lic := repo.GetLicense(); lic != nil {
		md.License = firstNonEmpty(lic.GetSPDXID(), lic.GetName())
	}
	return md, nil
}

func (f *GitHubFetcher) GetTree(ctx context.Context, ref artifact.RepositoryRef, path string, maxDepth int) ([]artifact.TreeNode, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultTreeDepth
	}
	return f.listDir(ctx, ref, strings.Trim(path, "/"), 1, maxDepth)
}

func (f *GitHubFetcher) listDir(ctx context.Context, ref artifact.RepositoryRef, dir string, depth, maxDepth int) ([]artifact.TreeNode, error) {
	callCtx, cancel, err := f.call(ctx)
	if err != nil {
		return nil, err
	}
	file, entries, resp, err := f.client.Repositories.GetContents(callCtx, ref.Owner, ref.Name, dir, nil)
	cancel()
	f.pacer.Observe(resp)
	if err != nil {
		return nil, f.repoError(ref, resp, err)
	}
	if file != nil {
		return []artifact.TreeNode{{Path: file.GetPath(), Name: file.GetName(), Type: artifact.NodeFile, Size: file.GetSize()}}, nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].GetPath() < entries[j].GetPath() })
	nodes := make([]artifact.TreeNode, 0, len(entries))
	for _, e := range entries {
		node := artifact.TreeNode{Path: e.GetPath(), Name: e.GetName(), Type: artifact.NodeFile, Size: e.GetSize()}
		if e.GetType() == "dir" {
			node.Size = 0
			switch {
			case f.filter.ExcludedDir(e.GetName()):
				node.Type = artifact.NodeSummary
			case depth < maxDepth:
				node.Type = artifact.NodeDir
				children, err := f.listDir(ctx, ref, e.GetPath(), depth+1, maxDepth)
				if err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					log.Printf("source: list %s/%s: %v", ref.FullName(), e.GetPath(), err)
				}
				node.Children = children
			default:
				node.Type = artifact.NodeDir
			}
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (f *GitHubFetcher) GetChangedFiles(ctx context.Context, ref artifact.RepositoryRef, limit int) ([]artifact.ChangedFile, error) {
	if limit <= 0 {
		limit = DefaultChangedLimit
	}
	callCtx, cancel, err := f.call(ctx)
	if err != nil {
		return nil, err
	}
	commits, resp, err := f.client.Repositories.ListCommits(callCtx, ref.Owner, ref.Name, &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: f.commitWindow},
	})
	cancel()
	f.pacer.Observe(resp)
	if err != nil {
		// empty repository
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return []artifact.ChangedFile{}, nil
		}
		return nil, f.repoError(ref, resp, err)
	}
	if len(commits) > f.commitWindow {
		commits = commits[:f.commitWindow]
	}

	counts := make(map[string]int)
	detailed := 0
	for _, c := range commits {
		if detailed >= f.detailWindow {
			break
		}
		detailed++
		callCtx, cancel, err := f.call(ctx)
		if err != nil {
			return nil, err
		}
		detail, resp, err := f.client.Repositories.GetCommit(callCtx, ref.Owner, ref.Name, c.GetSHA(), nil)
		cancel()
		f.pacer.Observe(resp)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("source: commit %s of %s: %v", shortSHA(c.GetSHA()), ref.FullName(), err)
			continue
		}
		for _, file := range detail.Files {
			p := file.GetFilename()
			if p == "" || f.filter.Noise(p) {
				continue
			}
			counts[p]++
		}
	}
	return rankChanged(counts, limit), nil
}

// rankChanged orders by count descending, then path ascending, and keeps limit.
func rankChanged(counts map[string]int, limit int) []artifact.ChangedFile {
	out := make([]artifact.ChangedFile, 0, len(counts))
	for p, n := range counts {
		out = append(out, artifact.ChangedFile{Path: p, ChangeCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChangeCount != out[j].ChangeCount {
			return out[i].ChangeCount > out[j].ChangeCount
		}
		return out[i].Path < out[j].Path
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *GitHubFetcher) GetFileContent(ctx context.Context, ref artifact.RepositoryRef, path string) (string, error) {
	path = strings.Trim(path, "/")
	callCtx, cancel, err := f.call(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	file, entries, resp, err := f.client.Repositories.GetContents(callCtx, ref.Owner, ref.Name, path, nil)
	f.pacer.Observe(resp)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", apperr.Newf(apperr.CodeNotFound, "%s not found in %s", path, ref.FullName())
		}
		return "", f.repoError(ref, resp, err)
	}
	if file == nil || entries != nil {
		return "", apperr.Newf(apperr.CodeContentUnavailable, "%s is a directory", path)
	}
	if t := file.GetType(); t != "" && t != "file" {
		return "", apperr.Newf(apperr.CodeContentUnavailable, "%s is a %s", path, t)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", apperr.Wrap(apperr.CodeContentUnavailable, fmt.Sprintf("%s could not be decoded", path), err)
	}
	if !utf8.ValidString(content) || strings.ContainsRune(content, 0) {
		return "", apperr.Newf(apperr.CodeContentUnavailable, "%s is binary", path)
	}
	if len(content) > f.maxFileBytes {
		content = TruncateUTF8(content, f.maxFileBytes)
	}
	return content, nil
}

// repoError maps host failures to the error taxonomy. A 404 means "missing"
// only when the request was authenticated; anonymous callers cannot tell a
// missing repository from a private one.
func (f *GitHubFetcher) repoError(ref artifact.RepositoryRef, resp *github.Response, err error) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("github rate limit for %s: %w", ref.FullName(), err)
	}
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	switch status {
	case http.StatusNotFound:
		if f.authenticated {
			return apperr.Wrap(apperr.CodeNotFound, fmt.Sprintf("repository %s does not exist", ref.FullName()), err)
		}
		return apperr.Wrap(apperr.CodeAccessDenied, fmt.Sprintf("repository %s was not found; it may be private, authenticate to access it", ref.FullName()), err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.Wrap(apperr.CodeAccessDenied, fmt.Sprintf("access to %s denied", ref.FullName()), err)
	}
	return fmt.Errorf("github %s: %w", ref.FullName(), err)
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// TruncateUTF8 cuts s to at most n bytes without splitting a rune.
func TruncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
