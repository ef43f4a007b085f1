// Package state reconstructs a resource graph purely from a serialized
// Infrastructure-as-Code state document. No live re-query is possible, so
// everything — identity, relationships, remote-document stitching — comes
// from the document itself.
package state

// Document is the raw state document shape.
type Document struct {
	Version          int               `json:"version"`
	TerraformVersion string            `json:"terraform_version"`
	Serial           int               `json:"serial"`
	Lineage          string            `json:"lineage"`
	Outputs          map[string]Output `json:"outputs,omitempty"`
	Resources        []ResourceState   `json:"resources"`
}

type Output struct {
	Value     any  `json:"value"`
	Sensitive bool `json:"sensitive,omitempty"`
}

type ResourceState struct {
	Mode      string             `json:"mode"`
	Type      string             `json:"type"`
	Name      string             `json:"name"`
	Provider  string             `json:"provider"`
	Module    string             `json:"module,omitempty"`
	Instances []ResourceInstance `json:"instances"`
	DependsOn []string           `json:"depends_on,omitempty"`
}

type ResourceInstance struct {
	SchemaVersion int            `json:"schema_version"`
	Attributes    map[string]any `json:"attributes"`
	Dependencies  []string       `json:"dependencies,omitempty"`
	IndexKey      any            `json:"index_key,omitempty"`
}

// Address returns the declarative address of a resource, e.g.
// "aws_instance.web" or "data.terraform_remote_state.network".
func (r *ResourceState) Address() string {
	addr := r.Type + "." + r.Name
	if r.Mode == "data" {
		addr = "data." + addr
	}
	if r.Module != "" {
		addr = r.Module + "." + addr
	}
	return addr
}

const (
	modeManaged = "managed"
	modeData    = "data"

	// remoteStateType is the one data-mode kind that is not skipped: its
	// captured outputs stitch separately parsed documents together.
	remoteStateType = "terraform_remote_state"
)
