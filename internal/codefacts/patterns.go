package codefacts

import (
	"regexp"
	"strings"
)

type patternRule struct {
	name  string
	langs map[string]bool // nil means every language
	re    *regexp.Regexp
	path  func(string) bool
}

func langs(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

var patternRules = []patternRule{
	{name: "class", re: regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:default\s+)?(?:public\s+|abstract\s+|final\s+|data\s+)*class\s+[A-Z]\w*`)},
	{name: "interface", re: regexp.MustCompile(`(?m)^\s*(?:export\s+)?(?:public\s+)?interface\s+\w+|\btype\s+\w+\s+interface\s*\{|^\s*(?:pub\s+)?trait\s+\w+`)},
	{name: "react-component", langs: langs("javascript"), re: regexp.MustCompile(`(?m)return\s*\(?\s*<[A-Za-z>]|^\s*(?:export\s+)?(?:default\s+)?function\s+[A-Z]\w*\s*\(`),
		path: func(p string) bool { return strings.HasSuffix(p, ".tsx") || strings.HasSuffix(p, ".jsx") }},
	{name: "react-hook", langs: langs("javascript"), re: regexp.MustCompile(`\buse(?:State|Effect|Memo|Callback|Ref|Context|Reducer|[A-Z]\w*)\(`)},
	{name: "http-handler", re: regexp.MustCompile(`http\.ResponseWriter|\bhttp\.HandleFunc\(|\b(?:app|router|server)\.(?:get|post|put|patch|delete|use)\(|@(?:app|router|bp)\.(?:route|get|post|put|delete)\(|@(?:Get|Post|Put|Delete|Request)Mapping|#\[(?:get|post|put|delete)\(`)},
	{name: "async", re: regexp.MustCompile(`\basync\b|\bawait\b|\bgo\s+func\b|\bgo\s+\w+(?:\.\w+)*\(|\bPromise\.|\bFuture<|\bCompletableFuture\b`)},
	{name: "concurrency", re: regexp.MustCompile(`\bchan\s+\w|sync\.(?:Mutex|RWMutex|WaitGroup|Once)|\bthreading\.|\bThread\(|\bArc<Mutex|\bsynchronized\b|\bExecutorService\b`)},
	{name: "error-handling", re: regexp.MustCompile(`if\s+err\s*!=\s*nil|\btry\s*[{:]|\bcatch\s*[({]|^\s*except\b|\.catch\(|\bResult<|\brescue\b`)},
	{name: "dependency-injection", re: regexp.MustCompile(`@Inject(?:able)?\b|@Autowired|constructor\(\s*(?:private|public|readonly)\s`)},
	{name: "singleton", re: regexp.MustCompile(`\bgetInstance\(|\bsync\.Once\b|@Singleton\b`)},
	{name: "orm-model", re: regexp.MustCompile(`models\.Model\b|@Entity\b|\bgorm\.Model\b|\bsequelize\.define\(|\bprisma\.\w+\.|ActiveRecord::Base`)},
	{name: "test", re: regexp.MustCompile(`(?m)^func\s+Test\w*\(\s*t\s+\*testing\.T|\bdescribe\(\s*['"]|^\s*def\s+test_\w+|@Test\b|#\[test\]`),
		path: isTestPath},
}

func isTestPath(p string) bool {
	lower := strings.ToLower(p)
	base := lower[strings.LastIndex(lower, "/")+1:]
	return strings.HasSuffix(base, "_test.go") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.") ||
		strings.HasPrefix(base, "test_") ||
		strings.Contains(lower, "/__tests__/")
}

func detectPatterns(p string, lang *language, content string) []string {
	var found []string
	for _, rule := range patternRules {
		if rule.langs != nil && !rule.langs[lang.name] {
			continue
		}
		if (rule.path != nil && rule.path(p)) || rule.re.MatchString(content) {
			found = append(found, rule.name)
		}
	}
	return found
}
