package schema

// Project is one loaded dbt project
type Project struct {
	// Name is the final path component of Path
	Name string
	Path string
	// Models maps manifest-local ids to models
	Models map[string]*Model
	// ModelIDs keeps the manifest's key order for Models
	ModelIDs []string
}

// NewProject creates an empty project
func NewProject(name, path string) *Project {
	return &Project{
		Name:   name,
		Path:   path,
		Models: make(map[string]*Model),
	}
}

// AddModel registers a model under its local id, keeping first-seen order
func (p *Project) AddModel(m *Model) {
	if _, exists := p.Models[m.LocalID]; !exists {
		p.ModelIDs = append(p.ModelIDs, m.LocalID)
	}
	p.Models[m.LocalID] = m
}

// OrderedModels returns the models in manifest order
func (p *Project) OrderedModels() []*Model {
	out := make([]*Model, 0, len(p.ModelIDs))
	for _, id := range p.ModelIDs {
		out = append(out, p.Models[id])
	}
	return out
}

// ColumnCount returns the number of columns across all models
func (p *Project) ColumnCount() int {
	total := 0
	for _, m := range p.Models {
		total += m.Columns.Len()
	}
	return total
}

// Model represents one tabular transformation target
type Model struct {
	// LocalID is the manifest key, unique only within its manifest
	LocalID string
	// Name is the short model name
	Name string
	// UniqueName is "<project>.<name>", assigned once at load time
	UniqueName   string
	Project      string
	ResourceType string
	Columns      *Columns
	// DependsOn holds unresolved manifest-local references, in manifest order
	DependsOn    []string
	Description  string
	CompiledCode string
}

// UniqueName builds the global identity of a model
func UniqueName(project, model string) string {
	return project + "." + model
}
