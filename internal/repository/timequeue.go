package repository

import (
	"container/heap"
	"time"
)

// TimeQueue indexes ids by a due time. It answers "what is due at now,
// oldest first" without scanning every scheduled item.
type TimeQueue struct {
	items timeHeap
	byID  map[string]*timeItem
}

type timeItem struct {
	id    string
	at    time.Time
	index int
}

type timeHeap []*timeItem

func (h timeHeap) Len() int { return len(h) }

func (h timeHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].id < h[j].id
	}
	return h[i].at.Before(h[j].at)
}

func (h timeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timeHeap) Push(x any) {
	it := x.(*timeItem)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *timeHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

func NewTimeQueue() *TimeQueue {
	return &TimeQueue{byID: make(map[string]*timeItem)}
}

func (q *TimeQueue) Len() int { return len(q.items) }

// Set inserts id or moves it to a new due time.
func (q *TimeQueue) Set(id string, at time.Time) {
	if it, ok := q.byID[id]; ok {
		it.at = at
		heap.Fix(&q.items, it.index)
		return
	}
	it := &timeItem{id: id, at: at}
	heap.Push(&q.items, it)
	q.byID[id] = it
}

func (q *TimeQueue) Remove(id string) {
	it, ok := q.byID[id]
	if !ok {
		return
	}
	heap.Remove(&q.items, it.index)
	delete(q.byID, id)
}

// Due returns up to limit ids whose time is <= now, ordered by time then id.
// The queue is left unchanged.
func (q *TimeQueue) Due(now time.Time, limit int) []string {
	var popped []*timeItem
	for q.items.Len() > 0 && (limit <= 0 || len(popped) < limit) {
		next := q.items[0]
		if next.at.After(now) {
			break
		}
		popped = append(popped, heap.Pop(&q.items).(*timeItem))
	}
	ids := make([]string, len(popped))
	for i, it := range popped {
		ids[i] = it.id
		heap.Push(&q.items, it)
	}
	return ids
}
