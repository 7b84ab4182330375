package ui

import "strings"

// Sparkline renders a throughput history as Unicode block characters.
// Samples live in a fixed ring; rendering scales against the buffer max
// so a burst of fast batches does not flatten the rest of the line.
type Sparkline struct {
	samples []float64
	head    int
	count   int
	max     float64
}

// sparklineChars are the eight block heights from lowest to full.
var sparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// DefaultSparklineWidth is the sample capacity: one minute of history
// at one speed sample per second.
const DefaultSparklineWidth = 60

// NewSparkline creates a sparkline holding capacity samples.
func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = DefaultSparklineWidth
	}
	return &Sparkline{samples: make([]float64, capacity)}
}

// Add records a new sample, evicting the oldest when full.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % len(s.samples)
	s.count++

	if value > s.max {
		s.max = value
	}
	// The ring max drifts stale once the largest sample is evicted, so
	// rescan each time the buffer wraps.
	if s.count%len(s.samples) == 0 {
		s.rescanMax()
	}
}

func (s *Sparkline) rescanMax() {
	s.max = 0
	for _, v := range s.samples {
		if v > s.max {
			s.max = v
		}
	}
	if s.max < 1 {
		s.max = 1
	}
}

// ordered returns the recorded samples oldest first.
func (s *Sparkline) ordered() []float64 {
	n := s.count
	if n > len(s.samples) {
		n = len(s.samples)
	}
	out := make([]float64, 0, n)
	start := 0
	if s.count >= len(s.samples) {
		start = s.head
	}
	for i := 0; i < n; i++ {
		out = append(out, s.samples[(start+i)%len(s.samples)])
	}
	return out
}

// Render returns the most recent samples as block characters, padded
// with spaces to exactly width runes. Width <= 0 uses the buffer
// capacity.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}
	if s.count == 0 {
		return strings.Repeat(string(sparklineChars[0]), width)
	}
	if s.max <= 0 {
		s.rescanMax()
	}

	vals := s.ordered()
	if len(vals) > width {
		vals = vals[len(vals)-width:]
	}

	var b strings.Builder
	b.Grow(width * 3)
	for _, v := range vals {
		idx := int(v / s.max * float64(len(sparklineChars)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparklineChars) {
			idx = len(sparklineChars) - 1
		}
		b.WriteRune(sparklineChars[idx])
	}
	for i := len(vals); i < width; i++ {
		b.WriteRune(' ')
	}
	return b.String()
}

// Clear resets the sparkline.
func (s *Sparkline) Clear() {
	for i := range s.samples {
		s.samples[i] = 0
	}
	s.head = 0
	s.count = 0
	s.max = 0
}

// Count returns the number of samples added.
func (s *Sparkline) Count() int {
	return s.count
}

// Max returns the current maximum value.
func (s *Sparkline) Max() float64 {
	return s.max
}
