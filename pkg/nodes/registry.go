package nodes

import (
	"fmt"
	"sort"

	engerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/workflow"
)

// Registry is the closed table of node capabilities. It is assembled once at
// startup (see the builtin package) and read-only afterwards.
type Registry struct {
	caps map[workflow.NodeKind]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[workflow.NodeKind]Capability)}
}

// Register adds a capability. Registering the same kind twice panics: the
// kind set is closed and assembled in one place.
func (r *Registry) Register(c Capability) {
	kind := c.Kind()
	if _, exists := r.caps[kind]; exists {
		panic(fmt.Sprintf("node kind %q registered twice", kind))
	}
	r.caps[kind] = c
}

// Get returns the capability for a kind.
func (r *Registry) Get(kind workflow.NodeKind) (Capability, error) {
	c, ok := r.caps[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engerrors.ErrUnknownNodeKind, kind)
	}
	return c, nil
}

// Kinds returns the registered kinds in stable order.
func (r *Registry) Kinds() []workflow.NodeKind {
	kinds := make([]workflow.NodeKind, 0, len(r.caps))
	for k := range r.caps {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ValidateGraph checks a full nodes+edges replacement at save time: every
// node kind is registered and its config satisfies the schema; every edge
// references existing nodes and declared ports; and each edge's port types
// satisfy the compatibility rule. Acyclicity is checked by the runner at
// execution time, not here.
func (r *Registry) ValidateGraph(nodeList []workflow.Node, edges []workflow.Edge) error {
	byID := make(map[string]workflow.Node, len(nodeList))
	for _, n := range nodeList {
		if n.ID == "" {
			return engerrors.Validation("node id must not be empty")
		}
		if _, dup := byID[n.ID]; dup {
			return engerrors.Validation(fmt.Sprintf("duplicate node id %q", n.ID))
		}
		capability, err := r.Get(n.Kind)
		if err != nil {
			return engerrors.Validation(fmt.Sprintf("node %s: unknown kind %q", n.ID, n.Kind))
		}
		if _, err := capability.ConfigSchema().Apply(n.Config); err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
		byID[n.ID] = n
	}

	for _, e := range edges {
		source, ok := byID[e.SourceNodeID]
		if !ok {
			return engerrors.Validation(fmt.Sprintf("edge source node %q not in workflow", e.SourceNodeID))
		}
		target, ok := byID[e.TargetNodeID]
		if !ok {
			return engerrors.Validation(fmt.Sprintf("edge target node %q not in workflow", e.TargetNodeID))
		}
		sourceCap, _ := r.Get(source.Kind)
		targetCap, _ := r.Get(target.Kind)
		outPort, ok := findPort(sourceCap.OutputPorts(), e.SourcePort)
		if !ok {
			return engerrors.Validation(fmt.Sprintf("node %s has no output port %q", e.SourceNodeID, e.SourcePort))
		}
		inPort, ok := findPort(targetCap.InputPorts(), e.TargetPort)
		if !ok {
			return engerrors.Validation(fmt.Sprintf("node %s has no input port %q", e.TargetNodeID, e.TargetPort))
		}
		if !workflow.Compatible(outPort.Type, inPort.Type) {
			return engerrors.NewError(engerrors.CodePortIncompatible,
				fmt.Sprintf("cannot connect %s.%s (%s) to %s.%s (%s)",
					e.SourceNodeID, e.SourcePort, outPort.Type,
					e.TargetNodeID, e.TargetPort, inPort.Type), nil)
		}
	}
	return nil
}

func findPort(ports []workflow.Port, name string) (workflow.Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return workflow.Port{}, false
}
