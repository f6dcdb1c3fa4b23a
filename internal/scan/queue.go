// Package scan contains the barcode ingestion side: a concurrency-safe FIFO
// queue of scanned codes and the HTTP listener that feeds it. Nothing in this
// package touches the ledger; the queue is the only structure shared with the
// ledger-owning session.
package scan

import "sync"

// Queue is a multi-producer / single-consumer FIFO. Pushes from concurrent
// listener handlers are never lost or duplicated; codes come out in arrival
// order. Once pushed, a code cannot be cancelled.
type Queue struct {
	mu    sync.Mutex
	codes []string
}

func NewQueue() *Queue {
	return &Queue{codes: make([]string, 0, 32)}
}

func (q *Queue) Push(code string) {
	q.mu.Lock()
	q.codes = append(q.codes, code)
	q.mu.Unlock()
}

// Pop removes and returns the oldest code, if any.
func (q *Queue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.codes) == 0 {
		return "", false
	}
	code := q.codes[0]
	q.codes = q.codes[1:]
	return code, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.codes)
}
