package source

import (
	"strings"

	"repolens/internal/apperr"
	"repolens/internal/artifact"
)

const githubHost = "github.com"

// ParseRepositoryRef accepts https://github.com/<owner>/<name> and the usual
// variations people paste: http, www., no scheme, a .git suffix, a trailing
// slash, deeper paths such as /tree/main/src, a query string or a fragment.
func ParseRepositoryRef(raw string) (artifact.RepositoryRef, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return artifact.RepositoryRef{}, apperr.New(apperr.CodeInvalidRepositoryRef, "repository URL is required")
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	lower := strings.ToLower(s)
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(lower, scheme) {
			s = s[len(scheme):]
			lower = lower[len(scheme):]
			break
		}
	}
	if strings.HasPrefix(lower, "www.") {
		s = s[len("www."):]
		lower = lower[len("www."):]
	}
	if !strings.HasPrefix(lower, githubHost+"/") {
		return artifact.RepositoryRef{}, apperr.Newf(apperr.CodeInvalidRepositoryRef, "%q is not a %s repository URL", raw, githubHost)
	}
	segments := strings.Split(strings.Trim(s[len(githubHost):], "/"), "/")
	if len(segments) < 2 {
		return artifact.RepositoryRef{}, apperr.Newf(apperr.CodeInvalidRepositoryRef, "%q must name an owner and a repository", raw)
	}
	owner := segments[0]
	name := strings.TrimSuffix(segments[1], ".git")
	if !validSegment(owner) || !validSegment(name) {
		return artifact.RepositoryRef{}, apperr.Newf(apperr.CodeInvalidRepositoryRef, "%q has an invalid owner or repository name", raw)
	}
	return artifact.RepositoryRef{
		Owner:        owner,
		Name:         name,
		CanonicalURL: "https://" + githubHost + "/" + owner + "/" + name,
	}, nil
}

// validSegment allows the characters GitHub accepts in owner and repo names.
func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
