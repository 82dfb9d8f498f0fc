package source

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repolens/internal/apperr"
)

func TestParseRepositoryRef(t *testing.T) {
	tests := []struct {
		raw   string
		owner string
		name  string
	}{
		{"https://github.com/acme/widgets", "acme", "widgets"},
		{"https://github.com/acme/widgets/", "acme", "widgets"},
		{"https://github.com/acme/widgets.git", "acme", "widgets"},
		{"https://github.com/acme/widgets?tab=readme", "acme", "widgets"},
		{"https://github.com/acme/widgets.git?foo=bar#frag", "acme", "widgets"},
		{"http://www.github.com/acme/widgets", "acme", "widgets"},
		{"github.com/acme/widgets", "acme", "widgets"},
		{"  https://GitHub.com/Acme/Widgets  ", "Acme", "Widgets"},
		{"https://github.com/acme/widgets/tree/main/src", "acme", "widgets"},
		{"https://github.com/a-b_c/x.y-z", "a-b_c", "x.y-z"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			ref, err := ParseRepositoryRef(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.owner, ref.Owner)
			assert.Equal(t, tt.name, ref.Name)
			assert.Equal(t, "https://github.com/"+tt.owner+"/"+tt.name, ref.CanonicalURL)
		})
	}
}

func TestParseRepositoryRefRejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"https://gitlab.com/acme/widgets",
		"https://github.com/acme",
		"https://github.com/",
		"https://github.com/acme/.git",
		"ftp://github.com/acme/widgets",
		"https://github.com/ac me/widgets",
		"https://notgithub.com/acme/widgets",
	} {
		_, err := ParseRepositoryRef(raw)
		assert.True(t, errors.Is(err, apperr.ErrInvalidRepositoryRef), "raw=%q err=%v", raw, err)
	}
}

func TestFilterNoise(t *testing.T) {
	f := DefaultFilter()
	for _, p := range []string{"package-lock.json", "web/package-lock.json", "go.sum", "static/app.min.js", "dist/index.js", "pkg/build/out.o", ".gitignore"} {
		assert.True(t, f.Noise(p), p)
	}
	for _, p := range []string{"src/a.ts", "main.go", "internal/builder/x.go", "README.md"} {
		assert.False(t, f.Noise(p), p)
	}
	assert.True(t, f.ExcludedDir("node_modules"))
	assert.False(t, f.ExcludedDir("src"))
}
