package config

// Module is a loaded configuration module: its metadata plus every class
// declared by its manifests.
type Module struct {
	Dir      string   `json:"dir" yaml:"dir"`
	Metadata Metadata `json:"metadata" yaml:"metadata"`
	Classes  []Class  `json:"classes" yaml:"classes"`
}

// Class looks up a class by name.
func (m *Module) Class(name string) (Class, bool) {
	if m == nil {
		return Class{}, false
	}
	for _, c := range m.Classes {
		if c.Name == name {
			return c, true
		}
	}
	return Class{}, false
}

type Metadata struct {
	Name                   string      `json:"name" yaml:"name"`
	Version                string      `json:"version,omitempty" yaml:"version,omitempty"`
	OperatingSystemSupport []OSSupport `json:"operatingsystem_support,omitempty" yaml:"operatingsystem_support,omitempty"`
}

// OSSupport declares one supported operating system. An empty release list
// means every release of that operating system.
type OSSupport struct {
	OperatingSystem string   `json:"operatingsystem" yaml:"operatingsystem"`
	Releases        []string `json:"operatingsystemrelease,omitempty" yaml:"operatingsystemrelease,omitempty"`
}

// Manifest is a single manifest file before composition.
type Manifest struct {
	Version  string   `json:"version" yaml:"version"`
	Includes []string `json:"includes,omitempty" yaml:"includes,omitempty"`
	Overlays []string `json:"overlays,omitempty" yaml:"overlays,omitempty"`
	Classes  []Class  `json:"classes" yaml:"classes"`
}

type Class struct {
	Name      string     `json:"name" yaml:"name"`
	Params    []Param    `json:"params,omitempty" yaml:"params,omitempty"`
	Includes  []string   `json:"includes,omitempty" yaml:"includes,omitempty"`
	Fail      []Guard    `json:"fail,omitempty" yaml:"fail,omitempty"`
	Resources []Resource `json:"resources" yaml:"resources"`
}

// Param is a class parameter. A nil Default makes the parameter required.
type Param struct {
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"` // string, bool, int, array, enum[a,b]
	Default any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Guard aborts compilation with Message when When evaluates true.
type Guard struct {
	When    string `json:"when" yaml:"when"`
	Message string `json:"message" yaml:"message"`
}

// Resource is a typed resource declaration. Type-specific attributes live in
// Params and are checked by the provider registered for Type.
type Resource struct {
	ID        string              `json:"id" yaml:"id"`
	Type      string              `json:"type" yaml:"type"`
	Title     string              `json:"title,omitempty" yaml:"title,omitempty"`
	When      string              `json:"when,omitempty" yaml:"when,omitempty"`
	Matrix    map[string][]string `json:"matrix,omitempty" yaml:"matrix,omitempty"`
	Loop      []string            `json:"loop,omitempty" yaml:"loop,omitempty"`
	LoopVar   string              `json:"loop_var,omitempty" yaml:"loop_var,omitempty"`
	DependsOn []string            `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Require   []string            `json:"require,omitempty" yaml:"require,omitempty"`
	Before    []string            `json:"before,omitempty" yaml:"before,omitempty"`
	Notify    []string            `json:"notify,omitempty" yaml:"notify,omitempty"`
	Subscribe []string            `json:"subscribe,omitempty" yaml:"subscribe,omitempty"`
	Tags      []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
	Params    map[string]any      `json:"params,omitempty" yaml:"params,omitempty"`
}
