package engine

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Workflow kinds understood by the generators.
const (
	KindTextToImage  = "text_to_image"
	KindImageToImage = "image_to_image"
	KindImageToVideo = "image_to_video"
	KindTextToVideo  = "text_to_video"
)

//go:embed workflows.yaml
var defaultWorkflows []byte

// Node is one backend graph node.
type Node struct {
	ClassType string         `yaml:"class_type" json:"class_type"`
	Inputs    map[string]any `yaml:"inputs" json:"inputs"`
}

// Parameter binds a named workflow parameter to a node input.
type Parameter struct {
	Node    string `yaml:"node"`
	Input   string `yaml:"input"`
	Default any    `yaml:"default"`
}

// Workflow is a named, parameterized generation recipe.
type Workflow struct {
	Name       string                    `yaml:"name"`
	Kind       string                    `yaml:"kind"`
	Active     bool                      `yaml:"active"`
	Graph      map[string]Node           `yaml:"graph"`
	Parameters map[string]Parameter      `yaml:"parameters"`
	Modes      map[string]map[string]any `yaml:"modes"`
}

type registryFile struct {
	Workflows []*Workflow `yaml:"workflows"`
}

// Registry holds the workflows known to the rendering backend.
type Registry struct {
	byName map[string]*Workflow
	order  []string
}

// LoadRegistry reads a YAML workflow file. An empty path loads the
// built-in registry.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return ParseRegistry(defaultWorkflows)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow registry: %w", err)
	}
	return ParseRegistry(data)
}

// DefaultRegistry returns the built-in registry.
func DefaultRegistry() *Registry {
	r, err := ParseRegistry(defaultWorkflows)
	if err != nil {
		panic(fmt.Sprintf("built-in workflow registry is invalid: %v", err))
	}
	return r
}

// ParseRegistry decodes and validates a YAML workflow registry.
func ParseRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse workflow registry: %w", err)
	}

	r := &Registry{byName: make(map[string]*Workflow, len(f.Workflows))}
	for _, w := range f.Workflows {
		if w.Name == "" {
			return nil, fmt.Errorf("workflow registry: workflow without a name")
		}
		if _, dup := r.byName[w.Name]; dup {
			return nil, fmt.Errorf("workflow registry: duplicate workflow %q", w.Name)
		}
		r.byName[w.Name] = w
		r.order = append(r.order, w.Name)
	}
	return r, nil
}

// Get returns an active workflow by name.
func (r *Registry) Get(name string) (*Workflow, error) {
	w, ok := r.byName[name]
	if !ok || !w.Active {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
	}
	return w, nil
}

// ForKind returns the first active workflow of kind, in file order.
func (r *Registry) ForKind(kind string) (*Workflow, error) {
	for _, name := range r.order {
		if w := r.byName[name]; w.Active && w.Kind == kind {
			return w, nil
		}
	}
	return nil, fmt.Errorf("%w: no active workflow of kind %s", ErrWorkflowNotFound, kind)
}

// Names lists every registered workflow, active or not, in file order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Build merges declared defaults with params and returns a fresh graph ready
// for submission. Parameters not declared by the workflow are ignored.
func (w *Workflow) Build(params map[string]any) (map[string]Node, error) {
	graph := make(map[string]Node, len(w.Graph))
	for id, n := range w.Graph {
		inputs := make(map[string]any, len(n.Inputs))
		for k, v := range n.Inputs {
			inputs[k] = v
		}
		graph[id] = Node{ClassType: n.ClassType, Inputs: inputs}
	}

	for name, p := range w.Parameters {
		node, ok := graph[p.Node]
		if !ok {
			return nil, fmt.Errorf("%w: workflow %s parameter %s -> node %s", ErrNodeNotFound, w.Name, name, p.Node)
		}
		v, set := params[name]
		if !set {
			if p.Default == nil {
				continue
			}
			v = p.Default
		}
		node.Inputs[p.Input] = v
	}
	return graph, nil
}

// ModeDefaults returns the declared defaults for a quality mode, or nil.
func (w *Workflow) ModeDefaults(mode string) map[string]any {
	return w.Modes[mode]
}
