// Copyright 2018 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package graph implements a small directed graph with path queries, keyed by
// arbitrary comparable vertices, on top of gonum's graph packages.
package graph

import (
	"math"
	"sort"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Arc is a directed edge between two vertices.
type Arc[V comparable] struct {
	From, To V
}

// Graph is a directed graph. Vertices are numbered in insertion order, and
// path queries break ties between paths of equal length by that order, so
// that they are deterministic.
type Graph[V comparable] struct {
	g        *simple.DirectedGraph
	ids      map[V]int64
	vertices []V
}

// New returns an empty graph.
func New[V comparable]() *Graph[V] {
	return &Graph[V]{
		g:   simple.NewDirectedGraph(),
		ids: make(map[V]int64),
	}
}

// AddVertex adds a vertex, and returns false if it was already present.
func (g *Graph[V]) AddVertex(v V) bool {
	if _, ok := g.ids[v]; ok {
		return false
	}
	id := int64(len(g.vertices))
	g.ids[v] = id
	g.vertices = append(g.vertices, v)
	g.g.AddNode(simple.Node(id))
	return true
}

// Vertices returns the vertices in insertion order.
func (g *Graph[V]) Vertices() []V {
	return g.vertices
}

// HasVertex returns true if the vertex is in the graph.
func (g *Graph[V]) HasVertex(v V) bool {
	_, ok := g.ids[v]
	return ok
}

// CreateArc adds an arc between two vertices, adding the vertices if
// necessary. It returns the arc and whether it is new. An arc from a vertex to
// itself is never added, since no path uses it.
func (g *Graph[V]) CreateArc(from, to V) (Arc[V], bool) {
	arc := Arc[V]{From: from, To: to}
	if from == to || g.HasArc(from, to) {
		return arc, false
	}
	g.AddVertex(from)
	g.AddVertex(to)
	g.g.SetEdge(g.g.NewEdge(simple.Node(g.ids[from]), simple.Node(g.ids[to])))
	return arc, true
}

// HasArc returns true if the graph contains an arc between the vertices.
func (g *Graph[V]) HasArc(from, to V) bool {
	fromID, ok := g.ids[from]
	if !ok {
		return false
	}
	toID, ok := g.ids[to]
	if !ok {
		return false
	}
	return g.g.HasEdgeFromTo(fromID, toID)
}

// ShortestPath returns a shortest sequence of arcs leading from one vertex to
// another, or nil if there is none. The path from a vertex to itself is empty
// but not nil.
func (g *Graph[V]) ShortestPath(from, to V) []Arc[V] {
	if from == to {
		return []Arc[V]{}
	}
	if !g.HasVertex(from) || !g.HasVertex(to) {
		return nil
	}
	nodes, _ := path.DijkstraFrom(simple.Node(g.ids[from]), g.g).To(g.ids[to])
	if len(nodes) == 0 {
		return nil
	}
	return g.arcs(nodes)
}

// Paths returns every path without repeated vertices from one vertex to
// another, shortest first. Paths of equal length are ordered by the insertion
// order of their vertices. A vertex has a single, empty path to itself.
func (g *Graph[V]) Paths(from, to V) [][]Arc[V] {
	if from == to {
		return [][]Arc[V]{{}}
	}
	if !g.HasVertex(from) || !g.HasVertex(to) {
		return nil
	}
	// A negative k with an infinite cost bound asks for every loopless path.
	found := path.YenKShortestPaths(
		g.g, -1 /* k */, math.Inf(1), simple.Node(g.ids[from]), simple.Node(g.ids[to]),
	)
	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		for k := range a {
			if a[k].ID() != b[k].ID() {
				return a[k].ID() < b[k].ID()
			}
		}
		return false
	})
	paths := make([][]Arc[V], 0, len(found))
	for _, nodes := range found {
		paths = append(paths, g.arcs(nodes))
	}
	return paths
}

// arcs converts a path of gonum nodes to the arcs between their vertices.
func (g *Graph[V]) arcs(nodes []gonum.Node) []Arc[V] {
	res := make([]Arc[V], 0, len(nodes)-1)
	for i := 1; i < len(nodes); i++ {
		res = append(res, Arc[V]{From: g.vertices[nodes[i-1].ID()], To: g.vertices[nodes[i].ID()]})
	}
	return res
}
