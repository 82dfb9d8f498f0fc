package source

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// DefaultExcludedDirs are listed in a tree but never expanded.
var DefaultExcludedDirs = []string{
	".git", ".hg", ".svn",
	"node_modules", "bower_components", "vendor",
	"dist", "build", "out", "target", "bin", "obj",
	".next", ".nuxt", ".cache", ".gradle", ".idea", ".vscode",
	"__pycache__", ".venv", "venv", ".tox", ".pytest_cache",
	"coverage", ".terraform",
}

// DefaultNoisePatterns are doublestar globs for paths that never count as a
// meaningful change: lockfiles, generated or minified output, VCS metadata.
var DefaultNoisePatterns = []string{
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
	"**/Cargo.lock",
	"**/composer.lock",
	"**/Gemfile.lock",
	"**/poetry.lock",
	"**/uv.lock",
	"**/Pipfile.lock",
	"**/*.min.js",
	"**/*.min.css",
	"**/*.map",
	"**/*.snap",
	"**/.gitignore",
	"**/.gitattributes",
	"**/.gitmodules",
	"**/.git/**",
	"**/dist/**",
	"**/build/**",
	"**/out/**",
	"**/target/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/*.png",
	"**/*.jpg",
	"**/*.jpeg",
	"**/*.gif",
	"**/*.ico",
	"**/*.svg",
	"**/*.woff",
	"**/*.woff2",
}

// Filter decides which directories are summarized and which paths are noise.
type Filter struct {
	ExcludedDirs  []string
	NoisePatterns []string

	dirs map[string]bool
}

func NewFilter(excludedDirs, noisePatterns []string) *Filter {
	if excludedDirs == nil {
		excludedDirs = DefaultExcludedDirs
	}
	if noisePatterns == nil {
		noisePatterns = DefaultNoisePatterns
	}
	dirs := make(map[string]bool, len(excludedDirs))
	for _, d := range excludedDirs {
		dirs[strings.ToLower(strings.Trim(d, "/"))] = true
	}
	return &Filter{ExcludedDirs: excludedDirs, NoisePatterns: noisePatterns, dirs: dirs}
}

func DefaultFilter() *Filter {
	return NewFilter(nil, nil)
}

// ExcludedDir reports whether a directory with this base name is summarized.
func (f *Filter) ExcludedDir(name string) bool {
	return f.dirs[strings.ToLower(name)]
}

// Noise reports whether a changed path should be dropped from the ranking.
func (f *Filter) Noise(p string) bool {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	for _, pattern := range f.NoisePatterns {
		if ok, err := doublestar.Match(pattern, p); err == nil && ok {
			return true
		}
		// top-level paths: "**/x" must also match "x"
		if rest := strings.TrimPrefix(pattern, "**/"); rest != pattern {
			if ok, err := doublestar.Match(rest, p); err == nil && ok {
				return true
			}
		}
	}
	return false
}
