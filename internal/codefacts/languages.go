package codefacts

import (
	"path"
	"regexp"
	"strings"
)

// language holds the lexical rules used for one family of source files.
type language struct {
	name         string
	lineComments []string
	blockComment [2]string
	braces       bool // nesting follows { }, otherwise indentation
	imports      []*regexp.Regexp
	functions    *regexp.Regexp
}

var (
	reGoImportSingle = regexp.MustCompile(`^\s*import\s+(?:[\w.]+\s+)?"([^"]+)"`)
	reGoImportLine   = regexp.MustCompile(`^\s*(?:[\w.]+\s+)?"([^"]+)"`)
	reBranch         = regexp.MustCompile(`\b(?:if|for|while|case|catch|except|elif|foreach|when|match|unless|until)\b|&&|\|\||\?\?`)
)

var languages = map[string]*language{
	"go": {
		name:         "go",
		lineComments: []string{"//"},
		blockComment: [2]string{"/*", "*/"},
		braces:       true,
		imports:      []*regexp.Regexp{reGoImportSingle},
		functions:    regexp.MustCompile(`^\s*func\b`),
	},
	"javascript": {
		name:         "javascript",
		lineComments: []string{"//"},
		blockComment: [2]string{"/*", "*/"},
		braces:       true,
		imports: []*regexp.Regexp{
			regexp.MustCompile(`(?:^|\s)(?:import|export)\s[^'"]*?from\s*['"]([^'"]+)['"]`),
			regexp.MustCompile(`^\s*import\s*['"]([^'"]+)['"]`),
			regexp.MustCompile(`\b(?:require|import)\(\s*['"]([^'"]+)['"]\s*\)`),
		},
		functions: regexp.MustCompile(`\bfunction\b|=>\s*[{(]|^\s*(?:async\s+)?[a-zA-Z_$][\w$]*\s*\([^)]*\)\s*\{`),
	},
	"python": {
		name:         "python",
		lineComments: []string{"#"},
		blockComment: [2]string{`"""`, `"""`},
		imports: []*regexp.Regexp{
			regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\b`),
			regexp.MustCompile(`^\s*import\s+([\w.]+)`),
		},
		functions: regexp.MustCompile(`^\s*(?:async\s+)?def\s+\w+`),
	},
	"java": {
		name:         "java",
		lineComments: []string{"//"},
		blockComment: [2]string{"/*", "*/"},
		braces:       true,
		imports:      []*regexp.Regexp{regexp.MustCompile(`^\s*import\s+(?:static\s+)?([\w.]+)`)},
		functions:    regexp.MustCompile(`^\s*(?:(?:public|private|protected|static|final|abstract|synchronized|override|suspend)\s+)*(?:fun\s+\w+|[\w<>\[\],\s]+\s+\w+\s*\([^;]*\)\s*(?:throws\s+[\w.,\s]+)?\{)`),
	},
	"rust": {
		name:         "rust",
		lineComments: []string{"//"},
		blockComment: [2]string{"/*", "*/"},
		braces:       true,
		imports: []*regexp.Regexp{
			regexp.MustCompile(`^\s*(?:pub\s+)?use\s+([\w:]+)`),
			regexp.MustCompile(`^\s*extern\s+crate\s+(\w+)`),
		},
		functions: regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+\w+`),
	},
	"ruby": {
		name:         "ruby",
		lineComments: []string{"#"},
		blockComment: [2]string{"=begin", "=end"},
		imports:      []*regexp.Regexp{regexp.MustCompile(`^\s*require(?:_relative)?\s*\(?\s*['"]([^'"]+)['"]`)},
		functions:    regexp.MustCompile(`^\s*def\s+`),
	},
	"csharp": {
		name:         "csharp",
		lineComments: []string{"//"},
		blockComment: [2]string{"/*", "*/"},
		braces:       true,
		imports:      []*regexp.Regexp{regexp.MustCompile(`^\s*using\s+(?:static\s+)?([\w.]+)\s*;`)},
		functions:    regexp.MustCompile(`^\s*(?:(?:public|private|protected|internal|static|async|virtual|override|abstract)\s+)+[\w<>\[\],\s]+\s+\w+\s*\(`),
	},
	"php": {
		name:         "php",
		lineComments: []string{"//", "#"},
		blockComment: [2]string{"/*", "*/"},
		braces:       true,
		imports: []*regexp.Regexp{
			regexp.MustCompile(`^\s*use\s+([\w\\]+)`),
			regexp.MustCompile(`\b(?:require|include)(?:_once)?\s*\(?\s*['"]([^'"]+)['"]`),
		},
		functions: regexp.MustCompile(`\bfunction\s+\w+`),
	},
}

var extLanguage = map[string]string{
	".go":    "go",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".ts":    "javascript",
	".tsx":   "javascript",
	".mts":   "javascript",
	".vue":   "javascript",
	".py":    "python",
	".java":  "java",
	".kt":    "java",
	".kts":   "java",
	".scala": "java",
	".rs":    "rust",
	".rb":    "ruby",
	".cs":    "csharp",
	".php":   "php",
}

// generic covers files whose extension is unknown: complexity only.
var generic = &language{
	name:         "other",
	lineComments: []string{"//", "#"},
	blockComment: [2]string{"/*", "*/"},
	braces:       true,
	functions:    regexp.MustCompile(`\bfunc(?:tion)?\b|\bdef\s+\w+`),
}

func detectLanguage(p string) *language {
	if name, ok := extLanguage[strings.ToLower(path.Ext(p))]; ok {
		return languages[name]
	}
	return generic
}
