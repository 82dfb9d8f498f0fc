// Package codefacts builds CodeFacts from file samples with lexical heuristics.
// It performs no I/O and its output depends only on its input.
package codefacts

import (
	"fmt"
	"log"
	"path"
	"sort"
	"strings"

	"repolens/internal/artifact"
)

type fileFacts struct {
	path       string
	language   string
	imports    []string
	patterns   []string
	complexity artifact.ComplexityMetrics
}

// Analyze aggregates per-file facts. A file whose analysis fails is omitted.
func Analyze(samples []artifact.FileSample) artifact.CodeFacts {
	facts := artifact.CodeFacts{
		Modules:      []string{},
		Dependencies: []artifact.Dependency{},
		Patterns:     []artifact.Pattern{},
		Complexity:   map[string]artifact.ComplexityMetrics{},
		Languages:    map[string]int{},
	}

	var files []fileFacts
	seen := make(map[string]bool)
	for _, s := range samples {
		p := cleanPath(s.Path)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		ff, err := analyzeFile(p, s.Content)
		if err != nil {
			log.Printf("codefacts: skip %s: %v", p, err)
			continue
		}
		files = append(files, ff)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	modules := make(map[string]bool)
	for _, ff := range files {
		modules[moduleOf(ff.path)] = true
	}
	for m := range modules {
		facts.Modules = append(facts.Modules, m)
	}
	sort.Strings(facts.Modules)

	byPattern := make(map[string][]string)
	depSeen := make(map[artifact.Dependency]bool)
	for _, ff := range files {
		facts.Complexity[ff.path] = ff.complexity
		facts.Languages[ff.language]++
		for _, name := range ff.patterns {
			byPattern[name] = append(byPattern[name], ff.path)
		}
		for _, imp := range ff.imports {
			dep := resolveImport(ff.path, ff.language, imp, modules)
			if depSeen[dep] {
				continue
			}
			depSeen[dep] = true
			facts.Dependencies = append(facts.Dependencies, dep)
		}
	}
	sort.Slice(facts.Dependencies, func(i, j int) bool {
		a, b := facts.Dependencies[i], facts.Dependencies[j]
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	names := make([]string, 0, len(byPattern))
	for name := range byPattern {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		facts.Patterns = append(facts.Patterns, artifact.Pattern{Name: name, Files: byPattern[name]})
	}
	return facts
}

func analyzeFile(p, content string) (ff fileFacts, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	lang := detectLanguage(p)
	ff = fileFacts{
		path:       p,
		language:   lang.name,
		imports:    extractImports(lang, content),
		patterns:   detectPatterns(p, lang, content),
		complexity: measure(lang, content),
	}
	return ff, nil
}

func extractImports(lang *language, content string) []string {
	if len(lang.imports) == 0 {
		return nil
	}
	var out []string
	inGoBlock := false
	for _, line := range strings.Split(content, "\n") {
		if lang.name == "go" {
			trimmed := strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(trimmed, "import ("):
				inGoBlock = true
				continue
			case inGoBlock && strings.HasPrefix(trimmed, ")"):
				inGoBlock = false
				continue
			case inGoBlock:
				if m := reGoImportLine.FindStringSubmatch(line); m != nil {
					out = append(out, m[1])
				}
				continue
			}
		}
		for _, re := range lang.imports {
			for _, m := range re.FindAllStringSubmatch(line, -1) {
				if len(m) > 1 && m[1] != "" {
					out = append(out, m[1])
				}
			}
		}
	}
	return out
}

// measure counts lines, code lines, functions, branch points and nesting.
func measure(lang *language, content string) artifact.ComplexityMetrics {
	var m artifact.ComplexityMetrics
	if content == "" {
		return m
	}
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	m.Lines = len(lines)

	inBlock := false
	depth := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if inBlock {
			if strings.Contains(trimmed, lang.blockComment[1]) {
				inBlock = false
			}
			continue
		}
		if open := lang.blockComment[0]; open != "" && strings.HasPrefix(trimmed, open) {
			rest := trimmed[len(open):]
			if !strings.Contains(rest, lang.blockComment[1]) {
				inBlock = true
			}
			continue
		}
		if hasAnyPrefix(trimmed, lang.lineComments) {
			continue
		}
		m.CodeLines++
		if lang.functions != nil && lang.functions.MatchString(line) {
			m.Functions++
		}
		m.Branches += len(reBranch.FindAllStringIndex(stripStrings(trimmed), -1))

		if lang.braces {
			for _, r := range trimmed {
				switch r {
				case '{':
					depth++
					if depth > m.MaxNesting {
						m.MaxNesting = depth
					}
				case '}':
					if depth > 0 {
						depth--
					}
				}
			}
		} else {
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			if level := indent / 4; level > m.MaxNesting {
				m.MaxNesting = level
			}
		}
	}
	units := m.Functions
	if units == 0 {
		units = 1
	}
	m.Cyclomatic = m.Branches + units
	return m
}

// stripStrings blanks out quoted literals so keywords inside strings do not count.
func stripStrings(s string) string {
	var b strings.Builder
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'' || r == '`':
			quote = r
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func cleanPath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func moduleOf(p string) string {
	dir := path.Dir(p)
	if dir == "" {
		return "."
	}
	return dir
}

// resolveImport classifies an import as internal when it is relative or
// names one of the sampled modules, external otherwise.
func resolveImport(from, lang, imp string, modules map[string]bool) artifact.Dependency {
	dep := artifact.Dependency{From: from, To: imp, External: true}
	switch {
	case strings.HasPrefix(imp, "."):
		dep.External = false
		if lang == "python" {
			dep.To = strings.TrimLeft(imp, ".")
			return dep
		}
		dep.To = path.Clean(path.Join(path.Dir(from), imp))
		return dep
	case lang == "ruby" && !strings.Contains(imp, "/") && modules[imp]:
		dep.External = false
		return dep
	}
	asPath := imp
	switch lang {
	case "python", "java", "csharp":
		asPath = strings.ReplaceAll(imp, ".", "/")
	case "rust":
		asPath = strings.ReplaceAll(strings.TrimPrefix(strings.TrimPrefix(imp, "crate::"), "super::"), "::", "/")
		if strings.HasPrefix(imp, "crate::") || strings.HasPrefix(imp, "super::") || strings.HasPrefix(imp, "self::") {
			dep.External = false
			return dep
		}
	case "php":
		asPath = strings.ReplaceAll(imp, "\\", "/")
	}
	for m := range modules {
		if m == "." {
			continue
		}
		if asPath == m || strings.HasSuffix(asPath, "/"+m) || strings.HasPrefix(asPath, m+"/") {
			dep.External = false
			return dep
		}
	}
	return dep
}
