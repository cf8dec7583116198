package agent

type Parameter struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Required    bool   `yaml:"required" json:"required"`
}

type ToolSpec struct {
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description" json:"description"`
	Parameters  []Parameter `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// Descriptor declares an agent's capabilities. Registered once at startup
// and read-only thereafter.
type Descriptor struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Tools       []ToolSpec `yaml:"tools" json:"tools"`
}

func (d Descriptor) Tool(name string) (ToolSpec, bool) {
	for _, t := range d.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolSpec{}, false
}

func (d Descriptor) HasTool(name string) bool {
	_, ok := d.Tool(name)
	return ok
}

// DefaultTool is the first declared tool; tool order in a Descriptor is
// meaningful.
func (d Descriptor) DefaultTool() (ToolSpec, bool) {
	if len(d.Tools) == 0 {
		return ToolSpec{}, false
	}
	return d.Tools[0], true
}
