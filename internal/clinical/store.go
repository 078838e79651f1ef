package clinical

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// OptionQuery selects options of one kind across active cases. Expected filters on
// the option's ground-truth flag when non-nil; IDs restricts to those ids
// when non-empty.
type OptionQuery struct {
	Kind          Kind
	ExcludeCaseID string
	Expected      *bool
	IDs           []int64
}

type CaseStore interface {
	PutCase(ctx context.Context, c Case) error
	GetCase(ctx context.Context, id string) (Case, error)
	ListCases(ctx context.Context, activeOnly bool) ([]CaseSummary, error)
	DeleteCase(ctx context.Context, id string) error
	QueryOptions(ctx context.Context, q OptionQuery) ([]Option, error)
}

// SessionStore persists sessions. UpdateSession must only succeed when the
// stored version equals s.Version, and stores s with Version+1.
type SessionStore interface {
	GetSession(ctx context.Context, learnerID, caseID string) (Session, error)
	ListSessions(ctx context.Context, learnerID string) ([]Session, error)
	CreateSession(ctx context.Context, s Session) (Session, error)
	UpdateSession(ctx context.Context, s Session) (Session, error)
	DeleteSession(ctx context.Context, learnerID, caseID string) error
}

type Repository interface {
	CaseStore
	SessionStore
}

type MemoryStore struct {
	mu       sync.RWMutex
	cases    map[string]Case
	sessions map[string]Session // key: learner|case
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:    map[string]Case{},
		sessions: map[string]Session{},
	}
}

func sessionKey(learnerID, caseID string) string { return learnerID + "|" + caseID }

func (m *MemoryStore) PutCase(_ context.Context, c Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range []Kind{KindExamination, KindDiagnosis, KindTreatment} {
		opts := append([]Option(nil), c.Options(k)...)
		for i := range opts {
			opts[i].CaseID = c.ID
			opts[i].Kind = k
			if opts[i].ID == 0 {
				m.nextID++
				opts[i].ID = m.nextID
			} else if opts[i].ID > m.nextID {
				m.nextID = opts[i].ID
			}
		}
		sortOptions(opts)
		switch k {
		case KindExamination:
			c.Examinations = opts
		case KindDiagnosis:
			c.Diagnoses = opts
		case KindTreatment:
			c.Treatments = opts
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.cases[c.ID] = c
	return nil
}

func (m *MemoryStore) GetCase(_ context.Context, id string) (Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[id]
	if !ok {
		return Case{}, NotFound("case", id)
	}
	return c, nil
}

func (m *MemoryStore) ListCases(_ context.Context, activeOnly bool) ([]CaseSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CaseSummary, 0, len(m.cases))
	for _, c := range m.cases {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, c.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeleteCase(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[id]; !ok {
		return NotFound("case", id)
	}
	delete(m.cases, id)
	for k, s := range m.sessions {
		if s.CaseID == id {
			delete(m.sessions, k)
		}
	}
	return nil
}

func (m *MemoryStore) QueryOptions(_ context.Context, q OptionQuery) ([]Option, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[int64]struct{}, len(q.IDs))
	for _, id := range q.IDs {
		want[id] = struct{}{}
	}
	var out []Option
	for _, c := range m.cases {
		if c.ID == q.ExcludeCaseID || !c.Active {
			continue
		}
		for _, o := range c.Options(q.Kind) {
			if q.Expected != nil && o.Expected() != *q.Expected {
				continue
			}
			if _, ok := want[o.ID]; len(want) > 0 && !ok {
				continue
			}
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetSession(_ context.Context, learnerID, caseID string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionKey(learnerID, caseID)]
	if !ok {
		return Session{}, NotFound("session", sessionKey(learnerID, caseID))
	}
	return s.Clone(), nil
}

func (m *MemoryStore) ListSessions(_ context.Context, learnerID string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Session
	for _, s := range m.sessions {
		if s.LearnerID == learnerID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CaseID < out[j].CaseID })
	return out, nil
}

func (m *MemoryStore) CreateSession(_ context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey(s.LearnerID, s.CaseID)
	if _, ok := m.sessions[key]; ok {
		return Session{}, Conflict("session already exists for learner %s on case %s", s.LearnerID, s.CaseID)
	}
	s.Version = 1
	m.sessions[key] = s.Clone()
	return s, nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey(s.LearnerID, s.CaseID)
	cur, ok := m.sessions[key]
	if !ok || cur.ID != s.ID {
		return Session{}, NotFound("session", key)
	}
	if cur.Version != s.Version {
		return Session{}, Conflict("session %s was modified concurrently", s.ID)
	}
	s.Version++
	m.sessions[key] = s.Clone()
	return s, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, learnerID, caseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey(learnerID, caseID)
	if _, ok := m.sessions[key]; !ok {
		return NotFound("session", key)
	}
	delete(m.sessions, key)
	return nil
}

func sortOptions(opts []Option) {
	sort.SliceStable(opts, func(i, j int) bool {
		if opts[i].DisplayOrder != opts[j].DisplayOrder {
			return opts[i].DisplayOrder < opts[j].DisplayOrder
		}
		return opts[i].ID < opts[j].ID
	})
}

// SameName reports whether two option names denote the same entity after
// trimming and case folding.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
