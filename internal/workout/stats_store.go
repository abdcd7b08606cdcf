package workout

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CompletionStats summarizes finished workouts
type CompletionStats struct {
	WorkoutsCompleted  int            `json:"workouts_completed"`
	TotalSeconds       float64        `json:"total_seconds"`
	CompletedByProgram map[string]int `json:"completed_by_program"`
	LastProgram        string         `json:"last_program,omitempty"`
	LastCompletedAt    time.Time      `json:"last_completed_at,omitempty"`
}

// TotalTime returns the accumulated workout time
func (s CompletionStats) TotalTime() time.Duration {
	return secondsToDuration(s.TotalSeconds)
}

// StatsStore persists CompletionStats as a JSON document
type StatsStore struct {
	mu       sync.Mutex
	filePath string
	data     CompletionStats
	logger   *log.Logger
}

// DefaultStatsPath returns ~/.treadmill-coach/stats.json
func DefaultStatsPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".treadmill-coach", "stats.json")
}

// NewStatsStore loads stats from filePath. A missing or unreadable file
// starts from empty stats.
func NewStatsStore(filePath string, logger *log.Logger) *StatsStore {
	if logger == nil {
		panic("StatsStore: logger cannot be nil")
	}
	s := &StatsStore{
		filePath: filePath,
		logger:   logger,
	}
	s.load()
	return s
}

// Get returns a copy of the current stats
func (s *StatsStore) Get() CompletionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.data
	out.CompletedByProgram = make(map[string]int, len(s.data.CompletedByProgram))
	for k, v := range s.data.CompletedByProgram {
		out.CompletedByProgram[k] = v
	}
	return out
}

// RecordCompletion adds a finished workout and saves the file
func (s *StatsStore) RecordCompletion(programName string, duration time.Duration, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.WorkoutsCompleted++
	s.data.TotalSeconds += duration.Seconds()
	s.data.CompletedByProgram[programName]++
	s.data.LastProgram = programName
	s.data.LastCompletedAt = at.UTC()
	s.logger.Printf("StatsStore: recorded %q (%v), %d workouts total", programName, duration, s.data.WorkoutsCompleted)
	s.save()
}

// load is only called from NewStatsStore, before s is shared
func (s *StatsStore) load() {
	s.data = CompletionStats{CompletedByProgram: make(map[string]int)}
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		s.logger.Printf("StatsStore: load %s (no existing file)", s.filePath)
		return
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		s.logger.Printf("StatsStore: load %s failed to parse: %v", s.filePath, err)
		s.data = CompletionStats{CompletedByProgram: make(map[string]int)}
		return
	}
	if s.data.CompletedByProgram == nil {
		s.data.CompletedByProgram = make(map[string]int)
	}
	s.logger.Printf("StatsStore: load %s -> %d workouts", s.filePath, s.data.WorkoutsCompleted)
}

// must be called with mu held
func (s *StatsStore) save() {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		s.logger.Printf("StatsStore: save mkdir failed: %v", err)
		return
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		s.logger.Printf("StatsStore: save marshal failed: %v", err)
		return
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		s.logger.Printf("StatsStore: save %s failed: %v", s.filePath, err)
		return
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		s.logger.Printf("StatsStore: save %s failed: %v", s.filePath, err)
	}
}
