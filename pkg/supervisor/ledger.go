package supervisor

// rememberLocked records a processed event id with the current wall time.
// When the ledger outgrows its bound, entries older than the TTL are
// evicted. Best-effort protection against sources that mirror the same
// event across channels; duplicate scope is deliberately strict.
func (s *Supervisor) rememberLocked(key string) {
	now := s.now()
	s.ledger[key] = now
	if len(s.ledger) > s.cfg.LedgerMaxEntries {
		cutoff := now.Add(-s.cfg.LedgerTTL)
		for k, seen := range s.ledger {
			if seen.Before(cutoff) {
				delete(s.ledger, k)
			}
		}
	}
}

// LedgerSize returns the number of remembered event ids.
func (s *Supervisor) LedgerSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledger)
}
