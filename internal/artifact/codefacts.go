package artifact

// CodeFacts is the aggregate output of the local pattern analyzer.
type CodeFacts struct {
	Modules      []string                     `json:"modules"`
	Dependencies []Dependency                 `json:"dependencies"`
	Patterns     []Pattern                    `json:"patterns"`
	Complexity   map[string]ComplexityMetrics `json:"complexity"`
	Languages    map[string]int               `json:"languages,omitempty"`
}

// Dependency is one import edge found in a file.
type Dependency struct {
	From     string `json:"from"`
	To       string `json:"to"`
	External bool   `json:"external"`
}

// Pattern is a structural pattern detected in a file.
type Pattern struct {
	Name  string   `json:"name"`
	Files []string `json:"files"`
}

// ComplexityMetrics are lexical size and branching estimates for one file.
type ComplexityMetrics struct {
	Lines      int `json:"lines"`
	CodeLines  int `json:"codeLines"`
	Functions  int `json:"functions"`
	Branches   int `json:"branches"`
	Cyclomatic int `json:"cyclomatic"`
	MaxNesting int `json:"maxNesting"`
}

// ExternalDependencies returns the distinct external import targets, in first-seen order.
func (c CodeFacts) ExternalDependencies() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range c.Dependencies {
		if !d.External || seen[d.To] {
			continue
		}
		seen[d.To] = true
		out = append(out, d.To)
	}
	return out
}
