package worldgen

import (
	"container/heap"
	"sync"

	"voxelforge.dev/internal/voxel/grid"
)

// Job is one pending generation request.
type Job struct {
	Pos grid.ChunkPos
	// Priority orders the queue; lower pops first. Callers usually use the
	// squared distance to the observer.
	Priority int64
}

// Queue is a concurrent priority queue of generation jobs with one entry
// per position. Pushing a position already in the queue supersedes the old
// job instead of queueing a duplicate, so an observer moving around cannot
// flood the queue with stale requests.
type Queue struct {
	mu     sync.Mutex
	heap   jobHeap
	byPos  map[grid.ChunkPos]*jobItem
	closed bool
	wake   *sync.Cond
}

type jobItem struct {
	job   Job
	index int
}

func NewQueue() *Queue {
	q := &Queue{byPos: make(map[grid.ChunkPos]*jobItem)}
	q.wake = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a job, superseding any queued job for the same position.
func (q *Queue) Push(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if item, ok := q.byPos[job.Pos]; ok {
		item.job = job
		heap.Fix(&q.heap, item.index)
		return
	}
	item := &jobItem{job: job}
	q.byPos[job.Pos] = item
	heap.Push(&q.heap, item)
	q.wake.Signal()
}

// Pop blocks until a job is available and returns it, or returns false
// after Close once the queue drains.
func (q *Queue) Pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.heap.Len() == 0 {
		if q.closed {
			return Job{}, false
		}
		q.wake.Wait()
	}
	item := heap.Pop(&q.heap).(*jobItem)
	delete(q.byPos, item.job.Pos)
	return item.job, true
}

// TryPop returns the best job without blocking.
func (q *Queue) TryPop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return Job{}, false
	}
	item := heap.Pop(&q.heap).(*jobItem)
	delete(q.byPos, item.job.Pos)
	return item.job, true
}

// Remove drops a queued job, reporting whether one was queued. Used when a
// chunk is unloaded before its generation ran.
func (q *Queue) Remove(pos grid.ChunkPos) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byPos[pos]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, item.index)
	delete(q.byPos, pos)
	return true
}

// RecalculatePriorities reassigns every queued job's priority and restores
// heap order, typically after the observer moved.
func (q *Queue) RecalculatePriorities(priority func(pos grid.ChunkPos) int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.byPos {
		item.job.Priority = priority(item.job.Pos)
	}
	heap.Init(&q.heap)
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Close wakes all blocked Pop calls. Queued jobs can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake.Broadcast()
}

// jobHeap implements heap.Interface; the mutex lives in Queue.
type jobHeap []*jobItem

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority < h[j].job.Priority
	}
	// Tie-break on position for deterministic pop order.
	return h[i].job.Pos.Less(h[j].job.Pos)
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	item := x.(*jobItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
