// Package batch turns consecutive simulation ticks into offline RL
// transitions.
package batch

import (
	"sync"
)

// Transition is one (obs, action, reward, next obs) sample.
type Transition struct {
	T           int
	EpisodeID   int
	AgentIndex  int
	Obs         []float32
	Actions     []float64
	ActionProb  float64
	ActionLogp  float64
	Reward      float64
	PrevActions []float64
	PrevReward  float64
	Done        bool
	NewObs      []float32
}

// Writer receives completed transitions.
type Writer interface {
	Write(tr Transition) error
}

type entry struct {
	action []float64
	obs    []float32
	reward float64
}

// Converter buffers one submission per tick and emits a transition when the
// tick directly after a buffered one arrives. It is safe for concurrent use.
type Converter struct {
	mu      sync.Mutex
	w       Writer
	pending map[int]entry
	emitted int
}

func NewConverter(w Writer) *Converter {
	return &Converter{w: w, pending: map[int]entry{}}
}

// Submit records tick t. If tick t-1 is buffered it is consumed and a
// transition (obs[t-1], action[t], reward[t], action[t-1], reward[t-1],
// obs[t]) is written; emitted reports whether that happened.
func (c *Converter) Submit(t int, action []float64, obs []float32, reward float64) (emitted bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending[t] = entry{action: action, obs: obs, reward: reward}
	prev, ok := c.pending[t-1]
	if !ok {
		return false, nil
	}
	delete(c.pending, t-1)

	tr := Transition{
		T:           t,
		EpisodeID:   t,
		AgentIndex:  0,
		Obs:         prev.obs,
		Actions:     action,
		ActionProb:  1.0,
		ActionLogp:  0.0,
		Reward:      reward,
		PrevActions: prev.action,
		PrevReward:  prev.reward,
		Done:        true,
		NewObs:      obs,
	}
	if err := c.w.Write(tr); err != nil {
		return false, err
	}
	c.emitted++
	return true, nil
}

// Emitted is the number of transitions written so far.
func (c *Converter) Emitted() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emitted
}

// Pending is the number of buffered half transitions.
func (c *Converter) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
