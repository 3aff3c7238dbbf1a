package storage

import (
	"fmt"
	"sync"

	"github.com/dominikbraun/graph"
)

// AssocKind identifies the entity type backing an AssociationIndex node.
type AssocKind string

const (
	AssocMemory     AssocKind = "memory"
	AssocPattern    AssocKind = "pattern"
	AssocThesis     AssocKind = "thesis"
	AssocAntithesis AssocKind = "antithesis"
	AssocSynthesis  AssocKind = "synthesis"
	AssocCycle      AssocKind = "cycle"
	AssocRule       AssocKind = "rule"
	AssocSkill      AssocKind = "skill"
)

// AssocNode is one vertex of the association DAG: an entity reference
// tagged with its kind, so edges can cross entity types.
type AssocNode struct {
	Kind AssocKind
	ID   string
}

func (n AssocNode) key() string { return string(n.Kind) + ":" + n.ID }

// assocNodeHash is the hash function dominikbraun/graph uses to key
// vertices, mirroring the teacher's VertexHash(*ThoughtVertex) string
// idiom in internal/modes/graph_types.go.
func assocNodeHash(n AssocNode) string { return n.key() }

// AssociationIndex is a derived, in-memory DAG over the relations the
// Store's relational tables already encode: memory↔pattern membership,
// pattern→thesis, thesis→antithesis, thesis+antithesis→synthesis,
// synthesis→rule/skill, and explicit memory↔memory associations. The
// relational tables remain the source of truth (spec §9 Design Notes);
// this index exists to answer "what led to this artifact" / "what does
// this memory touch" traversal queries cheaply, the way the teacher's
// GraphController answers thought-graph traversal queries.
type AssociationIndex struct {
	mu sync.RWMutex
	g  graph.Graph[string, AssocNode]
}

// NewAssociationIndex builds an empty directed association graph.
func NewAssociationIndex() *AssociationIndex {
	return &AssociationIndex{
		g: graph.New(assocNodeHash, graph.Directed(), graph.PreventCycles()),
	}
}

func (idx *AssociationIndex) ensureVertex(n AssocNode) error {
	if err := idx.g.AddVertex(n); err != nil && err != graph.ErrVertexAlreadyExists {
		return fmt.Errorf("failed to add vertex %s: %w", n.key(), err)
	}
	return nil
}

// Link records a directed edge from -> to, creating either endpoint's
// vertex if it doesn't already exist. graph.PreventCycles means a Link
// that would close a cycle (e.g. two memories associated both ways) adds
// no edge; like a duplicate edge, it returns nil.
func (idx *AssociationIndex) Link(from, to AssocNode) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.ensureVertex(from); err != nil {
		return err
	}
	if err := idx.ensureVertex(to); err != nil {
		return err
	}
	if err := idx.g.AddEdge(from.key(), to.key()); err != nil {
		if err == graph.ErrEdgeAlreadyExists || err == graph.ErrEdgeCreatesCycle {
			return nil
		}
		return fmt.Errorf("failed to link %s -> %s: %w", from.key(), to.key(), err)
	}
	return nil
}

// LinkMemoryAssociation records an undirected-in-spirit relation between
// two memories (spec's Metadata.Associations) as a single directed edge
// a -> b; no reverse edge is added.
func (idx *AssociationIndex) LinkMemoryAssociation(aID, bID string) error {
	a := AssocNode{Kind: AssocMemory, ID: aID}
	b := AssocNode{Kind: AssocMemory, ID: bID}
	if err := idx.Link(a, b); err != nil {
		return err
	}
	return nil
}

// LinkMemoryToPattern records that a memory contributed to a pattern's
// cluster.
func (idx *AssociationIndex) LinkMemoryToPattern(memoryID, patternID string) error {
	return idx.Link(AssocNode{Kind: AssocMemory, ID: memoryID}, AssocNode{Kind: AssocPattern, ID: patternID})
}

// LinkPatternToThesis records a pattern's current thesis.
func (idx *AssociationIndex) LinkPatternToThesis(patternID, thesisID string) error {
	return idx.Link(AssocNode{Kind: AssocPattern, ID: patternID}, AssocNode{Kind: AssocThesis, ID: thesisID})
}

// LinkThesisToAntithesis records a contradiction raised against a thesis.
func (idx *AssociationIndex) LinkThesisToAntithesis(thesisID, antithesisID string) error {
	return idx.Link(AssocNode{Kind: AssocThesis, ID: thesisID}, AssocNode{Kind: AssocAntithesis, ID: antithesisID})
}

// LinkToSynthesis records that a thesis (or one of its antitheses) feeds
// into a synthesis.
func (idx *AssociationIndex) LinkToSynthesis(thesisID string, antithesisIDs []string, synthesisID string) error {
	if err := idx.Link(AssocNode{Kind: AssocThesis, ID: thesisID}, AssocNode{Kind: AssocSynthesis, ID: synthesisID}); err != nil {
		return err
	}
	for _, aid := range antithesisIDs {
		if err := idx.Link(AssocNode{Kind: AssocAntithesis, ID: aid}, AssocNode{Kind: AssocSynthesis, ID: synthesisID}); err != nil {
			return err
		}
	}
	return nil
}

// LinkSynthesisToCycle records the cycle a synthesis resolved.
func (idx *AssociationIndex) LinkSynthesisToCycle(synthesisID, cycleID string) error {
	return idx.Link(AssocNode{Kind: AssocSynthesis, ID: synthesisID}, AssocNode{Kind: AssocCycle, ID: cycleID})
}

// LinkSynthesisToRule records that a synthesis produced a rule artifact.
func (idx *AssociationIndex) LinkSynthesisToRule(synthesisID, ruleID string) error {
	return idx.Link(AssocNode{Kind: AssocSynthesis, ID: synthesisID}, AssocNode{Kind: AssocRule, ID: ruleID})
}

// LinkSynthesisToSkill records that a synthesis produced a skill artifact.
func (idx *AssociationIndex) LinkSynthesisToSkill(synthesisID, skillID string) error {
	return idx.Link(AssocNode{Kind: AssocSynthesis, ID: synthesisID}, AssocNode{Kind: AssocSkill, ID: skillID})
}

// Neighbors returns the nodes directly reachable from n (its successors
// in the DAG).
func (idx *AssociationIndex) Neighbors(n AssocNode) ([]AssocNode, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	adj, err := idx.g.AdjacencyMap()
	if err != nil {
		return nil, fmt.Errorf("failed to build adjacency map: %w", err)
	}
	edges, ok := adj[n.key()]
	if !ok {
		return nil, nil
	}
	var out []AssocNode
	for target := range edges {
		v, err := idx.g.Vertex(target)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Ancestors returns the nodes that led to n (its predecessors), e.g. the
// memories and dialectic nodes that ultimately produced an artifact.
func (idx *AssociationIndex) Ancestors(n AssocNode) ([]AssocNode, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	pred, err := idx.g.PredecessorMap()
	if err != nil {
		return nil, fmt.Errorf("failed to build predecessor map: %w", err)
	}
	edges, ok := pred[n.key()]
	if !ok {
		return nil, nil
	}
	var out []AssocNode
	for source := range edges {
		v, err := idx.g.Vertex(source)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Order reports the number of vertices currently tracked.
func (idx *AssociationIndex) Order() (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.g.Order()
}
