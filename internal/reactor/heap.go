package reactor

func (timers timerHeap) Len() int { return len(timers) }

func (timers timerHeap) Less(i, j int) bool {
	if timers[i].deadline.Equal(timers[j].deadline) {
		return timers[i].id < timers[j].id
	}
	return timers[i].deadline.Before(timers[j].deadline)
}

func (timers timerHeap) Swap(i, j int) {
	timers[i], timers[j] = timers[j], timers[i]
	timers[i].index = i
	timers[j].index = j
}

func (timers *timerHeap) Push(x any) {
	entry := x.(*timer)
	entry.index = len(*timers)
	*timers = append(*timers, entry)
}

func (timers *timerHeap) Pop() any {
	old := *timers
	last := len(old) - 1
	entry := old[last]
	old[last] = nil
	entry.index = -1
	*timers = old[:last]
	return entry
}
