package graph

import (
	"context"
	"fmt"
)

const (
	// DefaultMaxDepth bounds traversals when the caller passes 0.
	DefaultMaxDepth = 5
	// MaxQueryDepth is the hard ceiling; deeper requests are clamped to it.
	MaxQueryDepth = DefaultMaxDepth * 2
	// maxVisitedNodes is a hard row bound so a pathological graph cannot
	// stall a query; recursive queries enforce their own limits rather than
	// relying on caller cancellation.
	maxVisitedNodes = 10000
)

// symmetricRelations are stored once in canonical order but traversable
// from either endpoint.
var symmetricRelations = map[Relation]bool{
	RelSameAs: true,
}

// symmetricSubset returns the symmetric relations the filter admits. An
// empty filter admits every relation.
func symmetricSubset(relations []Relation) []Relation {
	if len(relations) == 0 {
		return []Relation{RelSameAs}
	}
	var out []Relation
	for _, r := range relations {
		if symmetricRelations[r] {
			out = append(out, r)
		}
	}
	return out
}

// Query runs a bounded breadth-first traversal from startNodeID, optionally
// restricted to the given relation types. Directed edges are followed
// source to target; symmetric edges (sameAs) are followed from either end.
// Every reached node is returned with the path that led there. A visited
// set makes cycles safe.
func (s *Store) Query(ctx context.Context, startNodeID string, maxDepth int, relations []Relation) ([]PathResult, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxDepth > MaxQueryDepth {
		maxDepth = MaxQueryDepth
	}

	start, err := s.NodeByID(ctx, startNodeID)
	if err != nil {
		return nil, err
	}
	if start == nil {
		return nil, fmt.Errorf("query: node %s not found", startNodeID)
	}

	type queueItem struct {
		nodeID    string
		depth     int
		path      []string
		relations []Relation
	}
	type hop struct {
		nodeID   string
		relation Relation
	}

	symmetric := symmetricSubset(relations)
	visited := map[string]bool{startNodeID: true}
	queue := []queueItem{{nodeID: startNodeID, depth: 0, path: []string{startNodeID}}}
	var results []PathResult

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if item.depth >= maxDepth {
			continue
		}

		edges, err := s.OutgoingEdges(ctx, item.nodeID, relations)
		if err != nil {
			return nil, err
		}
		hops := make([]hop, 0, len(edges))
		for i := range edges {
			hops = append(hops, hop{nodeID: edges[i].TargetID, relation: edges[i].Relation})
		}
		if len(symmetric) > 0 {
			incoming, err := s.IncomingEdges(ctx, item.nodeID, symmetric)
			if err != nil {
				return nil, err
			}
			for i := range incoming {
				hops = append(hops, hop{nodeID: incoming[i].SourceID, relation: incoming[i].Relation})
			}
		}

		for _, h := range hops {
			if visited[h.nodeID] {
				continue
			}
			visited[h.nodeID] = true
			if len(visited) > maxVisitedNodes {
				return results, fmt.Errorf("query: traversal exceeded %d nodes", maxVisitedNodes)
			}

			path := append(append([]string(nil), item.path...), h.nodeID)
			rels := append(append([]Relation(nil), item.relations...), h.relation)

			node, err := s.NodeByID(ctx, h.nodeID)
			if err != nil {
				return nil, err
			}

			results = append(results, PathResult{
				NodeID:    h.nodeID,
				Node:      node,
				Depth:     item.depth + 1,
				Path:      path,
				Relations: rels,
			})
			queue = append(queue, queueItem{
				nodeID:    h.nodeID,
				depth:     item.depth + 1,
				path:      path,
				relations: rels,
			})
		}
	}

	return results, nil
}
