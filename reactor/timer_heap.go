package reactor

import "container/heap"

type timerHeap []*Timer

func (th timerHeap) Len() int { return len(th) }

func (th timerHeap) Less(i, j int) bool {
	return th[i].deadline.Before(th[j].deadline)
}

func (th timerHeap) Swap(i, j int) {
	th[i], th[j] = th[j], th[i]
	th[i].hidx = i
	th[j].hidx = j
}

func (th *timerHeap) Push(x interface{}) {
	t := x.(*Timer)
	t.hidx = len(*th)
	*th = append(*th, t)
}

func (th *timerHeap) Pop() interface{} {
	old := *th
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.hidx = -1
	*th = old[:n-1]
	return t
}

func (th *timerHeap) push(t *Timer) {
	heap.Push(th, t)
}

func (th *timerHeap) remove(t *Timer) {
	if t.hidx >= 0 && t.hidx < th.Len() && (*th)[t.hidx] == t {
		heap.Remove(th, t.hidx)
	}
}

func (th *timerHeap) fix(t *Timer) {
	if t.hidx >= 0 && t.hidx < th.Len() && (*th)[t.hidx] == t {
		heap.Fix(th, t.hidx)
	}
}

func (th timerHeap) peek() *Timer {
	if len(th) == 0 {
		return nil
	}
	return th[0]
}
