package artifact

// StructureIn is the prompt input for the structure task.
type StructureIn struct {
	Repo         string        `json:"repo"`
	Tree         []string      `json:"tree"`
	ChangedFiles []ChangedFile `json:"changedFiles"`
}

// Structure describes the repository architecture.
type Structure struct {
	Architecture string      `json:"architecture" prompt_desc:"Architectural style in a few words, e.g. layered monolith, CLI, microservices."`
	Summary      string      `json:"summary" prompt_desc:"Two to four sentences on what the repository does and how it is organised."`
	Components   []Component `json:"components" prompt_type:"[]{name, path, responsibility}" prompt_desc:"Main components; path must be a directory or file from the tree."`
	EntryPoints  []string    `json:"entryPoints" prompt_desc:"Paths where execution or the public API starts."`
	TechStack    []string    `json:"techStack" prompt_desc:"Languages, frameworks and notable tools observed."`
}

type Component struct {
	Name           string `json:"name"`
	Path           string `json:"path"`
	Responsibility string `json:"responsibility"`
}

// CriticalPathsIn is the prompt input for the critical paths task.
type CriticalPathsIn struct {
	Repo         string        `json:"repo"`
	ChangedFiles []ChangedFile `json:"changedFiles"`
	Samples      []FileSample  `json:"samples"`
	Facts        CodeFacts     `json:"facts"`
}

type CriticalPaths struct {
	CriticalPaths []CriticalPath `json:"criticalPaths" prompt_type:"[]{name, description, files[], importance}" prompt_desc:"Code paths a newcomer must understand first; importance is high, medium or low."`
	Hotspots      []Hotspot      `json:"hotspots" prompt_type:"[]{path, reason}" prompt_desc:"Files that change often or carry high complexity."`
}

type CriticalPath struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Files       []string `json:"files"`
	Importance  string   `json:"importance"` // high|medium|low
}

type Hotspot struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// DependencyGraphIn is the prompt input for the dependency graph task.
type DependencyGraphIn struct {
	Repo         string       `json:"repo"`
	Dependencies []Dependency `json:"dependencies"`
	Tree         []string     `json:"tree"`
}

type DependencyGraph struct {
	Nodes                []GraphNode `json:"nodes" prompt_type:"[]{id, label, kind}" prompt_desc:"Modules, files and external packages; kind is module, file or external."`
	Edges                []GraphEdge `json:"edges" prompt_type:"[]{from, to, kind}" prompt_desc:"Directed edges between node ids; kind is imports unless another relation is evident."`
	ExternalDependencies []string    `json:"externalDependencies" prompt_desc:"Distinct third-party packages."`
}

type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"` // module|file|external
}

type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind,omitempty"`
}

// TutorialIn is the prompt input for the tutorial task.
type TutorialIn struct {
	Repo          string         `json:"repo"`
	Role          string         `json:"role,omitempty"`
	Metadata      RepoMetadata   `json:"metadata"`
	CriticalPaths []CriticalPath `json:"criticalPaths"`
}

type Tutorial struct {
	Title    string         `json:"title" prompt_desc:"Short tutorial title."`
	Audience string         `json:"audience" prompt_desc:"Who the tutorial is written for."`
	Steps    []TutorialStep `json:"steps" prompt_type:"[]{title, description, files[]}" prompt_desc:"Ordered onboarding steps, each pointing at the files to read."`
}

type TutorialStep struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Files       []string `json:"files,omitempty"`
}
