package workout

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// programFile is the on-disk format written by the voice cue generation job.
// Durations are in seconds; voice cue resources are relative to the file.
type programFile struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Segments    []segmentFile `json:"segments"`
}

type segmentFile struct {
	Name            string        `json:"name,omitempty"`
	Pace            PaceType      `json:"pace"`
	DurationSeconds float64       `json:"duration_seconds"`
	Incline         float64       `json:"incline"`
	VoiceCue        *voiceCueFile `json:"voice_cue,omitempty"`
}

type voiceCueFile struct {
	Resource              string  `json:"resource"`
	SpokenDurationSeconds float64 `json:"spoken_duration_seconds"`
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ParseProgram decodes a program manifest. Relative voice cue resources are
// resolved against baseDir.
func ParseProgram(raw []byte, baseDir string) (*Program, error) {
	var pf programFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse program: %w", err)
	}

	program := &Program{
		Name:        pf.Name,
		Description: pf.Description,
		Segments:    make(Timeline, 0, len(pf.Segments)),
	}
	for _, sf := range pf.Segments {
		segment := Segment{
			Name:     sf.Name,
			Pace:     sf.Pace,
			Duration: secondsToDuration(sf.DurationSeconds),
			Incline:  sf.Incline,
		}
		if sf.VoiceCue != nil {
			resource := sf.VoiceCue.Resource
			if resource != "" && !filepath.IsAbs(resource) && baseDir != "" {
				resource = filepath.Join(baseDir, resource)
			}
			segment.VoiceCue = &VoiceCue{
				Resource:       resource,
				SpokenDuration: secondsToDuration(sf.VoiceCue.SpokenDurationSeconds),
			}
		}
		program.Segments = append(program.Segments, segment)
	}

	if err := program.Validate(); err != nil {
		return nil, err
	}
	return program, nil
}

// LoadProgramFile reads and validates a single program manifest
func LoadProgramFile(path string) (*Program, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program %s: %w", path, err)
	}
	program, err := ParseProgram(raw, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return program, nil
}

// LoadProgramDir loads every *.json manifest in dir, sorted by file name.
// A manifest that fails to load is reported in errs and skipped.
func LoadProgramDir(dir string) (programs []Program, errs []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to read program dir %s: %w", dir, err)}
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		program, err := LoadProgramFile(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		programs = append(programs, *program)
	}
	return programs, errs
}
