package queue

import "github.com/Aman-CERP/indexq/internal/job"

// element is the ranked entry for a pending key. Its priority and seq are
// fixed at first insertion; later submissions for the same key only replace
// the payload held in Queue.jobs.
type element struct {
	id       job.ID
	priority job.Priority
	seq      uint64
	index    int
}

// before reports whether e is dequeued ahead of o: higher priority first,
// then lower sequence.
func (e *element) before(o *element) bool {
	if e.priority != o.priority {
		return e.priority > o.priority
	}
	return e.seq < o.seq
}

// ranking implements heap.Interface over elements.
type ranking []*element

func (r ranking) Len() int { return len(r) }

func (r ranking) Less(i, j int) bool { return r[i].before(r[j]) }

func (r ranking) Swap(i, j int) {
	r[i], r[j] = r[j], r[i]
	r[i].index = i
	r[j].index = j
}

func (r *ranking) Push(x any) {
	e := x.(*element)
	e.index = len(*r)
	*r = append(*r, e)
}

func (r *ranking) Pop() any {
	old := *r
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*r = old[:n-1]
	return e
}

// head returns the next element to dequeue without removing it.
func (r ranking) head() *element {
	if len(r) == 0 {
		return nil
	}
	return r[0]
}
