package cypher

// Point-operation builders: create/update/delete/get statements for single
// entities. These share the compiler's parameter discipline (values only ever
// travel as bound parameters) but skip the plan machinery since their shapes
// are fixed.

import (
	"fmt"

	"github.com/orneryd/ratatoskr/pkg/registry"
)

// CreateNode builds a node creation statement. props must already be keyed by
// graph property names, identity included.
func (c *Compiler) CreateNode(info *registry.TypeInfo, props map[string]any) *Program {
	return &Program{
		Text:   fmt.Sprintf("CREATE (n:%s) SET n = $props RETURN n", info.Label),
		Params: map[string]any{"props": props},
		Shape:  ShapeEntity,
	}
}

// CreateRelationship builds a relationship creation statement between two
// existing nodes, matched by identity.
func (c *Compiler) CreateRelationship(info, startInfo, endInfo *registry.TypeInfo, startID, endID string, props map[string]any) *Program {
	text := fmt.Sprintf(
		"MATCH (a:%s {%s: $start}), (b:%s {%s: $end}) CREATE (a)-[r:%s]->(b) SET r = $props RETURN r",
		startInfo.Label, startInfo.IDProp, endInfo.Label, endInfo.IDProp, info.Label)
	return &Program{
		Text:   text,
		Params: map[string]any{"start": startID, "end": endID, "props": props},
		Shape:  ShapeEntity,
	}
}

// GetNode builds a point read by identity.
func (c *Compiler) GetNode(info *registry.TypeInfo, id string) *Program {
	return &Program{
		Text:   fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n", info.Label, info.IDProp),
		Params: map[string]any{"id": id},
		Shape:  ShapeEntity,
	}
}

// GetRelationships builds a point read for a set of relationship identities.
func (c *Compiler) GetRelationships(info *registry.TypeInfo, ids []string) *Program {
	return &Program{
		Text:   fmt.Sprintf("MATCH ()-[r:%s]->() WHERE r.%s IN $ids RETURN r", info.Label, info.IDProp),
		Params: map[string]any{"ids": ids},
		Shape:  ShapeEntity,
	}
}

// UpdateNode builds a property merge onto an existing node. Properties not in
// props keep their stored values.
func (c *Compiler) UpdateNode(info *registry.TypeInfo, id string, props map[string]any) *Program {
	return &Program{
		Text:   fmt.Sprintf("MATCH (n:%s {%s: $id}) SET n += $props RETURN n", info.Label, info.IDProp),
		Params: map[string]any{"id": id, "props": props},
		Shape:  ShapeEntity,
	}
}

// UpdateRelationship builds a property merge onto an existing relationship.
func (c *Compiler) UpdateRelationship(info *registry.TypeInfo, id string, props map[string]any) *Program {
	return &Program{
		Text:   fmt.Sprintf("MATCH ()-[r:%s]->() WHERE r.%s = $id SET r += $props RETURN r", info.Label, info.IDProp),
		Params: map[string]any{"id": id, "props": props},
		Shape:  ShapeEntity,
	}
}

// DeleteNode builds a detach-delete: the node goes along with every
// relationship touching it.
func (c *Compiler) DeleteNode(info *registry.TypeInfo, id string) *Program {
	return &Program{
		Text:   fmt.Sprintf("MATCH (n:%s {%s: $id}) DETACH DELETE n", info.Label, info.IDProp),
		Params: map[string]any{"id": id},
		Shape:  ShapeNone,
	}
}

// DeleteRelationship builds a relationship delete by identity.
func (c *Compiler) DeleteRelationship(info *registry.TypeInfo, id string) *Program {
	return &Program{
		Text:   fmt.Sprintf("MATCH ()-[r:%s]->() WHERE r.%s = $id DELETE r", info.Label, info.IDProp),
		Params: map[string]any{"id": id},
		Shape:  ShapeNone,
	}
}
