package workflow

// Definition is a decoded workflow file.
type Definition struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []NodeDef `json:"nodes" yaml:"nodes"`
	Joins       []JoinDef `json:"joins,omitempty" yaml:"joins,omitempty"`
}

// NodeDef declares one task.
type NodeDef struct {
	Name        string          `json:"name" yaml:"name"`
	Type        string          `json:"type" yaml:"type"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Batch       int             `json:"batch,omitempty" yaml:"batch,omitempty"`
	Config      map[string]any  `json:"config,omitempty" yaml:"config,omitempty"`
	DependsOn   []DependencyDef `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// DependencyDef declares a dependency with optional static args.
type DependencyDef struct {
	Node string `json:"node" yaml:"node"`
	Args []any  `json:"args,omitempty" yaml:"args,omitempty"`
}

// JoinDef declares one join. Which node fields apply depends on Kind:
//
//	sequence    nodes
//	fork        source, targets
//	merge       sources, target
//	sync_merge  sources, target
//	switch      source, targets, selector
//	gate        source, target (optional)
type JoinDef struct {
	Kind           string         `json:"kind" yaml:"kind"`
	Name           string         `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes          []string       `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Source         string         `json:"source,omitempty" yaml:"source,omitempty"`
	Sources        []string       `json:"sources,omitempty" yaml:"sources,omitempty"`
	Target         string         `json:"target,omitempty" yaml:"target,omitempty"`
	Targets        []string       `json:"targets,omitempty" yaml:"targets,omitempty"`
	Selector       string         `json:"selector,omitempty" yaml:"selector,omitempty"`
	SelectorConfig map[string]any `json:"selector_config,omitempty" yaml:"selector_config,omitempty"`
	Config         map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Iterate        bool           `json:"iterate,omitempty" yaml:"iterate,omitempty"`
}

// Node returns the node declared under name.
func (d *Definition) Node(name string) (NodeDef, bool) {
	for _, n := range d.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeDef{}, false
}
