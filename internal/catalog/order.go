package catalog

import (
	"container/heap"
	"slices"
)

type puidHeap []*Format

func (h puidHeap) Len() int           { return len(h) }
func (h puidHeap) Less(i, j int) bool { return h[i].PUID < h[j].PUID }
func (h puidHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *puidHeap) Push(x any) {
	*h = append(*h, x.(*Format))
}

func (h *puidHeap) Pop() any {
	old := *h
	f := old[len(old)-1]
	*h = old[:len(old)-1]
	return f
}

// topoSort orders formats so that each one precedes every format it has
// priority over, taking the smallest PUID whenever several are ready.
// Declarations naming formats outside the catalog are ignored.
func topoSort(formats []*Format, byPUID map[string]*Format) ([]*Format, error) {
	indegree := make(map[*Format]int, len(formats))
	for _, f := range formats {
		for puid := range f.PriorityOver {
			if puid == f.PUID {
				return nil, &CycleError{PUIDs: []string{f.PUID}}
			}
			if g, ok := byPUID[puid]; ok {
				indegree[g]++
			}
		}
	}

	ready := &puidHeap{}
	for _, f := range formats {
		if indegree[f] == 0 {
			*ready = append(*ready, f)
		}
	}
	heap.Init(ready)

	order := make([]*Format, 0, len(formats))
	for ready.Len() > 0 {
		f := heap.Pop(ready).(*Format)
		order = append(order, f)

		for puid := range f.PriorityOver {
			g, ok := byPUID[puid]
			if !ok {
				continue
			}
			if indegree[g]--; indegree[g] == 0 {
				heap.Push(ready, g)
			}
		}
	}

	if len(order) < len(formats) {
		var stuck []string
		for _, f := range formats {
			if indegree[f] > 0 {
				stuck = append(stuck, f.PUID)
			}
		}
		slices.Sort(stuck)
		return nil, &CycleError{PUIDs: stuck}
	}
	return order, nil
}
