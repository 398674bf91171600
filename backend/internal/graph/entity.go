package graph

import (
	"sort"
	"strconv"
	"strings"
)

// ============================================================================
// Entity Model
// ============================================================================

// Node is a labeled vertex of the graph
type Node struct {
	UUID        string            `json:"uuid"`
	Label       string            `json:"label"`
	Properties  map[string]string `json:"properties"`
	Identifiers []string          `json:"identifiers"`
}

// Edge is a typed, directed relationship between two nodes
type Edge struct {
	UUID       string            `json:"uuid"`
	Type       string            `json:"type"`
	StartNode  string            `json:"start_node"`
	EndNode    string            `json:"end_node"`
	Properties map[string]string `json:"properties"`
}

// NewNode builds a node and derives its identifiers from the annotation properties
func NewNode(uuid, label string, properties map[string]string) *Node {
	props := cloneProperties(properties)
	return &Node{
		UUID:        uuid,
		Label:       label,
		Properties:  props,
		Identifiers: deriveIdentifiers(props),
	}
}

// NewEdge builds an edge
func NewEdge(uuid, typ, start, end string, properties map[string]string) *Edge {
	return &Edge{
		UUID:       uuid,
		Type:       typ,
		StartNode:  start,
		EndNode:    end,
		Properties: cloneProperties(properties),
	}
}

// WithProperties returns a copy of the node carrying the given properties;
// identifiers are derived again from them
func (n *Node) WithProperties(properties map[string]string) *Node {
	return NewNode(n.UUID, n.Label, properties)
}

// Clone returns a deep copy of the node
func (n *Node) Clone() *Node {
	c := *n
	c.Properties = cloneProperties(n.Properties)
	c.Identifiers = append([]string(nil), n.Identifiers...)
	return &c
}

// Variant resolves the label-specific view of the node
func (n *Node) Variant() NodeVariant {
	if build, ok := nodeVariants[n.Label]; ok {
		return build(n.Properties)
	}
	return BaseNode{}
}

// HasIdentifier reports whether id is among the node's identifiers
func (n *Node) HasIdentifier(id string) bool {
	for _, x := range n.Identifiers {
		if x == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the edge
func (e *Edge) Clone() *Edge {
	c := *e
	c.Properties = cloneProperties(e.Properties)
	return &c
}

// WithEndpoints returns a copy of the edge re-pointed to start and end
func (e *Edge) WithEndpoints(start, end string) *Edge {
	c := e.Clone()
	c.StartNode = start
	c.EndNode = end
	return c
}

// WithProperties returns a copy of the edge carrying the given properties
func (e *Edge) WithProperties(properties map[string]string) *Edge {
	c := e.Clone()
	c.Properties = cloneProperties(properties)
	return c
}

// Kind resolves the typed tag of the edge
func (e *Edge) Kind() EdgeKind {
	if kind, ok := edgeKinds[e.Type]; ok {
		return kind
	}
	return EdgeKindGeneric
}

// fillMissing copies into dst every key of src that dst does not have yet.
// It returns the number of keys added.
func fillMissing(dst, src map[string]string) int {
	added := 0
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
			added++
		}
	}
	return added
}

func cloneProperties(properties map[string]string) map[string]string {
	out := make(map[string]string, len(properties))
	for k, v := range properties {
		out[k] = v
	}
	return out
}

// ============================================================================
// Node Variants
// ============================================================================

// NodeVariant is the closed set of label-specific node shapes
type NodeVariant interface {
	Label() string
}

// BaseNode is the variant of labels without typed fields
type BaseNode struct{}

func (BaseNode) Label() string { return "" }

// Model is the root node of an imported model
type Model struct{}

func (Model) Label() string { return "Model" }

// Compartment is a bounded container species live in
type Compartment struct {
	Size              *float64
	SpatialDimensions *int
	Constant          *bool
}

func (Compartment) Label() string { return "Compartment" }

// Species is a pool of some entity inside a compartment
type Species struct {
	InitialAmount         *float64
	InitialConcentration  *float64
	BoundaryCondition     *bool
	HasOnlySubstanceUnits *bool
	Constant              *bool
}

func (Species) Label() string { return "Species" }

// Reaction transforms reactants into products
type Reaction struct {
	Reversible *bool
	Fast       *bool
}

func (Reaction) Label() string { return "Reaction" }

// Parameter is a named quantity used by rate laws
type Parameter struct {
	Value    *float64
	Constant *bool
}

func (Parameter) Label() string { return "Parameter" }

// nodeVariants maps a label to the constructor of its typed view
var nodeVariants = map[string]func(map[string]string) NodeVariant{
	"Model": func(map[string]string) NodeVariant { return Model{} },
	"Compartment": func(p map[string]string) NodeVariant {
		return Compartment{
			Size:              parseFloat(p, "size"),
			SpatialDimensions: parseInt(p, "spatialDimensions"),
			Constant:          parseBool(p, "constant"),
		}
	},
	"Species": func(p map[string]string) NodeVariant {
		return Species{
			InitialAmount:         parseFloat(p, "initialAmount"),
			InitialConcentration:  parseFloat(p, "initialConcentration"),
			BoundaryCondition:     parseBool(p, "boundaryCondition"),
			HasOnlySubstanceUnits: parseBool(p, "hasOnlySubstanceUnits"),
			Constant:              parseBool(p, "constant"),
		}
	},
	"Reaction": func(p map[string]string) NodeVariant {
		return Reaction{
			Reversible: parseBool(p, "reversible"),
			Fast:       parseBool(p, "fast"),
		}
	},
	"Parameter": func(p map[string]string) NodeVariant {
		return Parameter{
			Value:    parseFloat(p, "value"),
			Constant: parseBool(p, "constant"),
		}
	},
}

// KnownLabels returns the labels that resolve to a typed variant, sorted
func KnownLabels() []string {
	labels := make([]string, 0, len(nodeVariants))
	for l := range nodeVariants {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

func parseFloat(p map[string]string, key string) *float64 {
	v, ok := p[key]
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseInt(p map[string]string, key string) *int {
	v, ok := p[key]
	if !ok {
		return nil
	}
	// SBML writes spatialDimensions as a double
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil
	}
	i := int(f)
	return &i
}

func parseBool(p map[string]string, key string) *bool {
	v, ok := p[key]
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return nil
	}
	return &b
}

// ============================================================================
// Edge Kinds
// ============================================================================

// EdgeKind is the typed tag of a relationship
type EdgeKind string

const (
	EdgeKindGeneric       EdgeKind = "generic"
	EdgeKindHasReactant   EdgeKind = "HAS_REACTANT"
	EdgeKindHasProduct    EdgeKind = "HAS_PRODUCT"
	EdgeKindHasModifier   EdgeKind = "HAS_MODIFIER"
	EdgeKindInCompartment EdgeKind = "IN_COMPARTMENT"
	EdgeKindHasParameter  EdgeKind = "HAS_PARAMETER"
	EdgeKindInModel       EdgeKind = "IN_MODEL"
)

var edgeKinds = map[string]EdgeKind{
	string(EdgeKindHasReactant):   EdgeKindHasReactant,
	string(EdgeKindHasProduct):    EdgeKindHasProduct,
	string(EdgeKindHasModifier):   EdgeKindHasModifier,
	string(EdgeKindInCompartment): EdgeKindInCompartment,
	string(EdgeKindHasParameter):  EdgeKindHasParameter,
	string(EdgeKindInModel):       EdgeKindInModel,
}

// ============================================================================
// Identifiers
// ============================================================================

var annotationPrefixes = []string{"bqbiol_", "bqmodel_"}

func isAnnotationKey(key string) bool {
	for _, p := range annotationPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// deriveIdentifiers collects normalized cross-references from annotation
// properties: keys in sorted order, values in written order, first wins
func deriveIdentifiers(properties map[string]string) []string {
	keys := make([]string, 0)
	for k := range properties {
		if isAnnotationKey(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	ids := make([]string, 0)
	seen := make(map[string]bool)
	for _, k := range keys {
		fields := strings.FieldsFunc(properties[k], func(r rune) bool {
			return r == ',' || r == '|' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
		})
		for _, f := range fields {
			id := NormalizeIdentifier(f)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// NormalizeIdentifier turns an identifiers.org URL or MIRIAM URN into
// "<namespace>:<id>"; anything else is returned trimmed
func NormalizeIdentifier(raw string) string {
	s := strings.TrimSpace(raw)
	for _, prefix := range []string{"https://identifiers.org/", "http://identifiers.org/"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			if ns, id, ok := strings.Cut(rest, "/"); ok && ns != "" && id != "" {
				return ns + ":" + id
			}
			return rest
		}
	}
	if rest, ok := strings.CutPrefix(s, "urn:miriam:"); ok {
		return rest
	}
	return s
}
