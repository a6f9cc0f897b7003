package orchestrator

import (
	"sync"
	"time"
)

// Progress is the aggregate snapshot published after every item completion.
// ETA is the rolling average item duration multiplied by the remaining item
// count.
type Progress struct {
	BatchID    string
	Total      int
	Completed  int
	Successful int
	Failed     int
	Processing int
	AvgItem    time.Duration
	ETA        time.Duration
}

// runState accumulates per-run aggregates behind its own mutex.
type runState struct {
	mu            sync.Mutex
	batchID       string
	total         int
	completed     int
	successful    int
	failedCount   int
	totalDuration time.Duration
}

func newRunState(batchID string, total int) *runState {
	return &runState{batchID: batchID, total: total}
}

func (st *runState) record(out Outcome) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.completed++
	if out.Err == nil {
		st.successful++
	} else {
		st.failedCount++
	}
	st.totalDuration += out.Duration
}

func (st *runState) failed() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.failedCount
}

func (st *runState) snapshot() Progress {
	st.mu.Lock()
	defer st.mu.Unlock()

	var avg time.Duration
	if st.completed > 0 {
		avg = st.totalDuration / time.Duration(st.completed)
	}
	remaining := st.total - st.completed

	return Progress{
		BatchID:    st.batchID,
		Total:      st.total,
		Completed:  st.completed,
		Successful: st.successful,
		Failed:     st.failedCount,
		Processing: remaining,
		AvgItem:    avg,
		ETA:        avg * time.Duration(remaining),
	}
}
