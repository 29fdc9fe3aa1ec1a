package depgraph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func indexOf(values []string, v string) int {
	for i, x := range values {
		if x == v {
			return i
		}
	}
	return -1
}

func TestSortOrdersDependencyBeforeDependent(t *testing.T) {
	g := NewGraph()
	g.AddEdge("amp", "tuner")
	g.AddEdge("tuner", "fpga")

	sorted, cycles := g.Sort()
	require.Empty(t, cycles)
	require.Less(t, indexOf(sorted, "fpga"), indexOf(sorted, "tuner"))
	require.Less(t, indexOf(sorted, "tuner"), indexOf(sorted, "amp"))
}

func TestSortDetectsCycle(t *testing.T) {
	g := NewGraph()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")

	_, cycles := g.Sort()
	require.NotEmpty(t, cycles)
	require.Contains(t, DescribeCycles(cycles), "<=")
}

func TestSortNoCyclesWhenAcyclic(t *testing.T) {
	g := NewGraph()
	g.AddEdge("a", "b")
	g.AddNode("c")

	_, cycles := g.Sort()
	require.Empty(t, cycles)
}

func TestSortLonerNodeAppearsInOutput(t *testing.T) {
	g := NewGraph()
	g.AddNode("solo")
	sorted, _ := g.Sort()
	require.Contains(t, sorted, "solo")
}

func TestSortIsDeterministicAcrossRuns(t *testing.T) {
	build := func() *Graph {
		g := NewGraph()
		g.AddEdge("amp", "tuner")
		g.AddEdge("tuner", "fpga")
		g.AddNode("standalone")
		return g
	}
	first, _ := build().Sort()
	second, _ := build().Sort()
	require.Equal(t, first, second)
}

func TestDescribeCyclesRendersEmptyForNoCycles(t *testing.T) {
	require.Empty(t, DescribeCycles(nil))
}
