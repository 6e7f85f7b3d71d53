package transfer

import (
	"time"
)

// Progress is a snapshot of one upload, handed to a ProgressFunc after every chunk.
type Progress struct {
	BytesSent  int64
	TotalBytes int64
	ChunksSent int
	ChunkCount int
	Elapsed    time.Duration
}

// Fraction returns the completed share in [0, 1].
func (p Progress) Fraction() float64 {
	if p.TotalBytes <= 0 {
		return 1
	}
	return float64(p.BytesSent) / float64(p.TotalBytes)
}

// ProgressFunc observes upload progress.
type ProgressFunc func(Progress)

// stats tracks one upload invocation. It is confined to the uploading goroutine.
type stats struct {
	bytesSent      int64
	finishedChunks int
	sum            time.Duration
	started        time.Time
}

func newStats() *stats {
	return &stats{started: time.Now()}
}

// update records a successful chunk. bytesSent only ever grows.
func (s *stats) update(n int64, d time.Duration) {
	s.bytesSent += n
	s.sum += d
	s.finishedChunks++
}

// average returns the average upload duration for completed chunks.
func (s *stats) average() time.Duration {
	if s.finishedChunks == 0 {
		return 0
	}
	return s.sum / time.Duration(s.finishedChunks)
}

func (s *stats) snapshot(total int64, count int) Progress {
	return Progress{
		BytesSent:  s.bytesSent,
		TotalBytes: total,
		ChunksSent: s.finishedChunks,
		ChunkCount: count,
		Elapsed:    time.Since(s.started),
	}
}
