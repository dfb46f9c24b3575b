package job

import (
	"sync"
	"time"
)

const (
	speedHistorySize  = 20
	sampleMinDuration = 0.15 // seconds
	statsWindow       = 5 * time.Second
)

type speedSample struct {
	bytes int64
	time  float64
}

// SpeedHistory smooths throughput over the last samples, wget style.
type SpeedHistory struct {
	samples    []speedSample
	pos        int
	size       int
	totalBytes int64
	totalTime  float64
}

func NewSpeedHistory() *SpeedHistory {
	return &SpeedHistory{samples: make([]speedSample, speedHistorySize)}
}

func (sh *SpeedHistory) AddSample(bytes int64, duration float64) {
	if duration < sampleMinDuration {
		return
	}

	if sh.size == speedHistorySize {
		old := sh.samples[sh.pos]
		sh.totalBytes -= old.bytes
		sh.totalTime -= old.time
	} else {
		sh.size++
	}

	sh.samples[sh.pos] = speedSample{bytes: bytes, time: duration}
	sh.totalBytes += bytes
	sh.totalTime += duration
	sh.pos = (sh.pos + 1) % speedHistorySize
}

// CalculateSpeed returns bytes per second over the history plus the
// sample still being collected.
func (sh *SpeedHistory) CalculateSpeed(recentBytes int64, recentTime float64) float64 {
	totalBytes := sh.totalBytes + recentBytes
	totalTime := sh.totalTime + recentTime
	if totalTime <= 0 {
		return 0
	}
	return float64(totalBytes) / totalTime
}

// Stats counts transferred bytes for a File or Slot. Progress counts every
// processed command at its expected size, successful or not, so percentages
// reach 100 even when segments are missing.
type Stats struct {
	mu sync.Mutex

	now         func() time.Time
	windowStart time.Time
	windowBytes int64
	history     *SpeedHistory

	totalBytes int64
	busy       time.Duration
	progress   int64
	processed  int
}

func NewStats() *Stats {
	return &Stats{now: time.Now, history: NewSpeedHistory()}
}

// Add records a finished transfer of n bytes that kept a connection busy
// for elapsed.
func (s *Stats) Add(n int64, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.windowStart.IsZero() {
		s.windowStart = now
	}
	s.windowBytes += n
	s.totalBytes += n
	s.busy += elapsed

	if d := now.Sub(s.windowStart); d >= statsWindow {
		s.history.AddSample(s.windowBytes, d.Seconds())
		s.windowBytes = 0
		s.windowStart = now
	}
}

// Progress records one processed command.
func (s *Stats) Progress(expected int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress += expected
	s.processed++
}

// Speed is the smoothed throughput in bytes per second.
func (s *Stats) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recent float64
	if !s.windowStart.IsZero() {
		recent = s.now().Sub(s.windowStart).Seconds()
	}
	return s.history.CalculateSpeed(s.windowBytes, recent)
}

func (s *Stats) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		Downloaded: s.totalBytes,
		Progress:   s.progress,
		Processed:  s.processed,
		Busy:       s.busy,
	}
}

// Info is a read-only view of progress used by status reporting.
type Info struct {
	Total      int   // commands
	Processed  int   // commands done, successful or not
	Size       int64 // expected bytes
	Progress   int64 // expected bytes of processed commands
	Downloaded int64 // bytes actually received
	Busy       time.Duration
	Speed      float64
}

func (i Info) Percentage() float64 {
	if i.Size <= 0 {
		if i.Total == 0 {
			return 0
		}
		return float64(i.Processed) / float64(i.Total) * 100
	}
	p := float64(i.Progress) / float64(i.Size) * 100
	if p > 100 {
		return 100
	}
	return p
}

func (i Info) BytesLeft() int64 {
	left := i.Size - i.Progress
	if left < 0 {
		return 0
	}
	return left
}

// SecondsLeft estimates the remaining time from the smoothed speed, falling
// back to the average busy time per byte when no speed is known yet.
func (i Info) SecondsLeft() int64 {
	left := i.BytesLeft()
	if left == 0 {
		return 0
	}
	if i.Speed > 0 {
		return int64(float64(left) / i.Speed)
	}
	if i.Downloaded > 0 && i.Busy > 0 {
		return int64(i.Busy.Seconds() * float64(left) / float64(i.Downloaded))
	}
	return -1
}
