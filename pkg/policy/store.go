// Package policy implements the validated operator policy store: three
// enum settings with case-insensitive canonicalization, monotonic
// versioning, YAML file persistence, and change notifications.
package policy

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Canonical enum values for each policy setting.
const (
	PrioritizationCriticalFirst = "Critical First"
	PrioritizationAdaptive      = "Adaptive Correlation"

	WaysOfWorkingE2E  = "E2E automation"
	WaysOfWorkingHITL = "Human intervention at critical steps"

	KPIAlignmentHigh    = ">95%"
	KPIAlignmentRelaxed = "75%"
)

var (
	prioritizationValues = []string{PrioritizationCriticalFirst, PrioritizationAdaptive}
	waysOfWorkingValues  = []string{WaysOfWorkingE2E, WaysOfWorkingHITL}
	kpiAlignmentValues   = []string{KPIAlignmentHigh, KPIAlignmentRelaxed}
)

// Policy is the current operator policy. Every accepted mutation
// increments Version; rejected patches leave the store unchanged.
type Policy struct {
	AlarmPrioritization string    `json:"alarmPrioritization" yaml:"alarmPrioritization"`
	WaysOfWorking       string    `json:"waysOfWorking" yaml:"waysOfWorking"`
	KPIAlignment        string    `json:"kpiAlignment" yaml:"kpiAlignment"`
	UpdatedAt           time.Time `json:"updatedAt" yaml:"updatedAt"`
	Version             int       `json:"version" yaml:"version"`
	Source              string    `json:"source" yaml:"source"`
}

// Patch is a partial policy update. Nil fields are left untouched.
type Patch struct {
	AlarmPrioritization *string `json:"alarmPrioritization"`
	WaysOfWorking       *string `json:"waysOfWorking"`
	KPIAlignment        *string `json:"kpiAlignment"`
}

// Store owns the policy value, its file persistence, and its subscribers.
type Store struct {
	mu     sync.Mutex
	cur    Policy
	path   string
	subs   map[int]chan Policy
	nextID int
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a store with defaults, then overlays the policy file if
// it exists. path may be empty for a memory-only store (tests).
func NewStore(path string) *Store {
	s := &Store{
		cur: Policy{
			AlarmPrioritization: PrioritizationAdaptive,
			WaysOfWorking:       WaysOfWorkingE2E,
			KPIAlignment:        KPIAlignmentHigh,
			Version:             1,
			Source:              "default",
		},
		path:   path,
		subs:   make(map[int]chan Policy),
		logger: slog.With("component", "policy"),
		now:    time.Now,
	}
	s.cur.UpdatedAt = s.now().UTC()

	if path != "" {
		if err := s.loadFile(); err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warn("Could not load policy file, keeping defaults",
					"path", path, "error", err)
			}
		}
	}
	return s
}

// Get returns a copy of the current policy.
func (s *Store) Get() Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Apply canonicalizes and applies a patch. The whole patch is rejected if
// any field fails validation; on success the version is bumped, the file
// is rewritten, and subscribers are notified.
func (s *Store) Apply(patch Patch, source string) (Policy, error) {
	s.mu.Lock()
	next := s.cur

	if patch.AlarmPrioritization != nil {
		v, ok := canonicalize(*patch.AlarmPrioritization, prioritizationValues)
		if !ok {
			s.mu.Unlock()
			return Policy{}, fmt.Errorf("invalid alarmPrioritization %q", *patch.AlarmPrioritization)
		}
		next.AlarmPrioritization = v
	}
	if patch.WaysOfWorking != nil {
		v, ok := canonicalize(*patch.WaysOfWorking, waysOfWorkingValues)
		if !ok {
			s.mu.Unlock()
			return Policy{}, fmt.Errorf("invalid waysOfWorking %q", *patch.WaysOfWorking)
		}
		next.WaysOfWorking = v
	}
	if patch.KPIAlignment != nil {
		v, ok := canonicalize(*patch.KPIAlignment, kpiAlignmentValues)
		if !ok {
			s.mu.Unlock()
			return Policy{}, fmt.Errorf("invalid kpiAlignment %q", *patch.KPIAlignment)
		}
		next.KPIAlignment = v
	}

	next.Version = s.cur.Version + 1
	next.UpdatedAt = s.now().UTC()
	next.Source = source
	s.cur = next

	if err := s.persistLocked(); err != nil {
		s.logger.Warn("Could not persist policy file", "path", s.path, "error", err)
	}
	s.notifyLocked()
	s.mu.Unlock()

	s.logger.Info("Policy updated",
		"version", next.Version, "source", source,
		"waysOfWorking", next.WaysOfWorking,
		"alarmPrioritization", next.AlarmPrioritization)
	return next, nil
}

// Subscribe returns a channel that receives every accepted policy change.
// The channel is buffered; a change is dropped for a subscriber that has
// fallen behind. The cancel function detaches the subscriber.
func (s *Store) Subscribe() (<-chan Policy, func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan Policy, 8)
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notifyLocked() {
	for _, ch := range s.subs {
		select {
		case ch <- s.cur:
		default:
		}
	}
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.cur)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write policy file: %w", err)
	}
	return nil
}

func (s *Store) loadFile() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}
	loaded, err := validateLoaded(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	loaded.Version = s.cur.Version
	if p.Version > loaded.Version {
		loaded.Version = p.Version
	}
	loaded.Source = "file"
	if loaded.UpdatedAt.IsZero() {
		loaded.UpdatedAt = s.now().UTC()
	}
	s.cur = loaded
	s.mu.Unlock()
	return nil
}

func validateLoaded(p Policy) (Policy, error) {
	var ok bool
	if p.AlarmPrioritization, ok = canonicalize(p.AlarmPrioritization, prioritizationValues); !ok {
		return Policy{}, fmt.Errorf("invalid alarmPrioritization in file")
	}
	if p.WaysOfWorking, ok = canonicalize(p.WaysOfWorking, waysOfWorkingValues); !ok {
		return Policy{}, fmt.Errorf("invalid waysOfWorking in file")
	}
	if p.KPIAlignment, ok = canonicalize(p.KPIAlignment, kpiAlignmentValues); !ok {
		return Policy{}, fmt.Errorf("invalid kpiAlignment in file")
	}
	return p, nil
}

func canonicalize(value string, allowed []string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(value))
	for _, v := range allowed {
		if strings.ToLower(v) == needle {
			return v, true
		}
	}
	return "", false
}
