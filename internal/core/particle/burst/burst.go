// Package burst schedules one-shot spawn bursts at fixed emitter times and
// tracks which of them already fired during the current loop.
package burst

import (
	"math"

	"github.com/zeusync/cascade/internal/core/particle/distribution"
)

// Entry is one burst of a LOD level. A nil CountLow means Count is exact;
// otherwise the count is picked uniformly from [CountLow, Count].
type Entry struct {
	Time     float32 `yaml:"time"`
	Count    int     `yaml:"count"`
	CountLow *int    `yaml:"count_low"`
}

// Ranged returns an entry whose count is picked from [low, high] each loop.
func Ranged(time float32, low, high int) Entry {
	return Entry{Time: time, Count: high, CountLow: &low}
}

// Level is the burst schedule of one LOD level.
type Level struct {
	Entries []Entry
	// Scale multiplies counts, evaluated at emitter time. Nil means 1.
	Scale distribution.Float
}

// MinDeltaTime is the narrowest time slice a burst rate is spread over.
const MinDeltaTime = 1e-5

// Result is what a tick's burst check produced.
type Result struct {
	Count int
	// Entries is the number of schedule entries that fired.
	Entries int
	// DeltaTime is the time slice the burst is spread over, widened to
	// MinDeltaTime when the tick was shorter.
	DeltaTime float32
	Widened   bool
}

type Scheduler struct {
	levels []Level
	fired  [][]bool
}

func New(levels []Level) *Scheduler {
	s := &Scheduler{levels: levels, fired: make([][]bool, len(levels))}
	for i, l := range levels {
		s.fired[i] = make([]bool, len(l.Entries))
	}
	return s
}

func (s *Scheduler) valid(lod int) bool { return lod >= 0 && lod < len(s.levels) }

func (s *Scheduler) count(lod int, e Entry, emitterTime float32, src distribution.Source) int {
	n := e.Count
	if low := e.CountLow; low != nil && *low >= 0 && *low < e.Count {
		n = *low + int(math.Round(float64(src.Float32()*float32(e.Count-*low))))
	}
	if scale := s.levels[lod].Scale; scale != nil {
		n = int(math.Ceil(float64(float32(n) * scale.Value(emitterTime, src))))
	}
	return max(n, 0)
}

// Count fires every unfired entry of lod whose time is at or before emitterTime
// and returns the particles to spawn this tick.
func (s *Scheduler) Count(lod int, emitterTime, deltaTime float32, src distribution.Source) Result {
	res := Result{DeltaTime: deltaTime}
	if !s.valid(lod) {
		return res
	}
	for i, e := range s.levels[lod].Entries {
		if s.fired[lod][i] || emitterTime < e.Time {
			continue
		}
		res.Count += s.count(lod, e, emitterTime, src)
		res.Entries++
		s.fired[lod][i] = true
	}
	if res.Count > 0 && deltaTime < MinDeltaTime {
		res.DeltaTime = MinDeltaTime
		res.Widened = true
	}
	return res
}

// Drain fires every entry of lod that is still pending when a loop ends. A tick
// that crosses the loop boundary would otherwise skip the tail of the loop.
func (s *Scheduler) Drain(lod int, emitterTime float32, src distribution.Source) Result {
	var res Result
	if !s.valid(lod) {
		return res
	}
	for i, e := range s.levels[lod].Entries {
		if s.fired[lod][i] {
			continue
		}
		res.Count += s.count(lod, e, emitterTime, src)
		res.Entries++
		s.fired[lod][i] = true
	}
	return res
}

// ResetForNewLoop clears every fired flag of every LOD.
func (s *Scheduler) ResetForNewLoop() {
	for _, f := range s.fired {
		clear(f)
	}
}

// Resync marks the entries of lod that lie in the past as fired, without
// spawning them. Used when switching LOD mid-loop.
func (s *Scheduler) Resync(lod int, emitterTime, delay float32) {
	if !s.valid(lod) {
		return
	}
	for i, e := range s.levels[lod].Entries {
		s.fired[lod][i] = delay+e.Time < emitterTime
	}
}

// Fired reports whether entry i of lod fired in the current loop.
func (s *Scheduler) Fired(lod, i int) bool {
	return s.valid(lod) && i >= 0 && i < len(s.fired[lod]) && s.fired[lod][i]
}

// Pending reports whether lod has entries left to fire this loop.
func (s *Scheduler) Pending(lod int) bool {
	if !s.valid(lod) {
		return false
	}
	for _, f := range s.fired[lod] {
		if !f {
			return true
		}
	}
	return false
}

func (s *Scheduler) Levels() int { return len(s.levels) }
