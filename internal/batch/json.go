package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// JSONWriter writes one single-row SampleBatch per line, the layout offline
// RL readers expect: every column holds a one-element list.
type JSONWriter struct {
	mu   sync.Mutex
	path string
	f    *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// NewJSONWriter creates dir if needed and opens output-<uuid>.json in it.
func NewJSONWriter(dir string) (*JSONWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create batch dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("output-%s.json", uuid.New().String()))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create batch file: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &JSONWriter{path: path, f: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (w *JSONWriter) Path() string { return w.path }

func (w *JSONWriter) Write(tr Transition) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(sampleBatch(tr)); err != nil {
		return fmt.Errorf("encode transition %d: %w", tr.T, err)
	}
	return nil
}

func (w *JSONWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

func sampleBatch(tr Transition) map[string]any {
	return map[string]any{
		"type":         "SampleBatch",
		"t":            []int{tr.T},
		"eps_id":       []int{tr.EpisodeID},
		"agent_index":  []int{tr.AgentIndex},
		"obs":          [][]any{finite32(tr.Obs)},
		"actions":      [][]any{finite64(tr.Actions)},
		"action_prob":  []float64{tr.ActionProb},
		"action_logp":  []float64{tr.ActionLogp},
		"rewards":      []any{finite(tr.Reward)},
		"prev_actions": [][]any{finite64(tr.PrevActions)},
		"prev_rewards": []any{finite(tr.PrevReward)},
		"dones":        []bool{tr.Done},
		"infos":        []map[string]any{{}},
		"new_obs":      [][]any{finite32(tr.NewObs)},
	}
}

// finite maps NaN and ±Inf to null, which encoding/json cannot represent.
func finite(x float64) any {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return x
}

func finite64(v []float64) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = finite(x)
	}
	return out
}

func finite32(v []float32) []any {
	out := make([]any, len(v))
	for i, x := range v {
		if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			out[i] = nil
		} else {
			out[i] = x
		}
	}
	return out
}

// MemoryWriter keeps transitions in memory.
type MemoryWriter struct {
	mu          sync.Mutex
	Transitions []Transition
}

func (m *MemoryWriter) Write(tr Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transitions = append(m.Transitions, tr)
	return nil
}

func (m *MemoryWriter) All() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition(nil), m.Transitions...)
}
