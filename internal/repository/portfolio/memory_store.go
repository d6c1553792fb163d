package portfolio

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"steward/internal/entity"
)

// MemoryStore keeps the full portfolio in memory. Transactions stage their
// writes on a copy and swap it in on commit, so a failed unit of work leaves
// nothing behind.
type MemoryStore struct {
	mu    sync.RWMutex
	state memState
}

type memState struct {
	problems   []entity.Problem
	members    []entity.BoardMember
	triggers   []entity.Trigger
	health     map[entity.UserID]entity.PortfolioHealth
	versions   []entity.PortfolioVersion
	bets       []entity.Bet
	reports    []entity.Report
	onboarding map[entity.UserID]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memState{
		health:     make(map[entity.UserID]entity.PortfolioHealth),
		onboarding: make(map[entity.UserID]bool),
	}}
}

func (s *MemoryStore) Problems(_ context.Context, userID entity.UserID) ([]entity.Problem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.Problem
	for _, p := range s.state.problems {
		if p.UserID == userID && p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out, nil
}

func (s *MemoryStore) BoardMembers(_ context.Context, userID entity.UserID) ([]entity.BoardMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.BoardMember
	for _, m := range s.state.members {
		if m.UserID == userID && m.Active {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out, nil
}

func (s *MemoryStore) Triggers(_ context.Context, userID entity.UserID) ([]entity.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.Trigger
	for _, t := range s.state.triggers {
		if t.UserID == userID && t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) LatestHealth(_ context.Context, userID entity.UserID) (entity.PortfolioHealth, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.state.health[userID]
	return h, ok, nil
}

func (s *MemoryStore) LatestVersion(_ context.Context, userID entity.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latestVersionLocked(&s.state, userID), nil
}

func latestVersionLocked(st *memState, userID entity.UserID) int {
	latest := 0
	for _, v := range st.versions {
		if v.UserID == userID && v.Version > latest {
			latest = v.Version
		}
	}
	return latest
}

func (s *MemoryStore) OpenBet(_ context.Context, userID entity.UserID) (entity.Bet, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best entity.Bet
	found := false
	for _, b := range s.state.bets {
		if b.UserID != userID || b.Status != entity.BetOpen {
			continue
		}
		if !found || b.CreatedAt.After(best.CreatedAt) {
			best, found = b, true
		}
	}
	return best, found, nil
}

func (s *MemoryStore) LastReport(_ context.Context, userID entity.UserID) (entity.Report, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best entity.Report
	found := false
	for _, r := range s.state.reports {
		if r.UserID != userID {
			continue
		}
		if !found || r.CreatedAt.After(best.CreatedAt) {
			best, found = r, true
		}
	}
	return best, found, nil
}

func (s *MemoryStore) OnboardingComplete(_ context.Context, userID entity.UserID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.onboarding[userID], nil
}

// InTx stages writes on a deep copy and swaps it in only when fn succeeds.
func (s *MemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := cloneState(&s.state)
	tx := &memTx{state: staged}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = *staged
	return nil
}

func cloneState(st *memState) *memState {
	out := &memState{
		problems:   append([]entity.Problem(nil), st.problems...),
		members:    append([]entity.BoardMember(nil), st.members...),
		triggers:   append([]entity.Trigger(nil), st.triggers...),
		health:     make(map[entity.UserID]entity.PortfolioHealth, len(st.health)),
		versions:   append([]entity.PortfolioVersion(nil), st.versions...),
		bets:       append([]entity.Bet(nil), st.bets...),
		reports:    append([]entity.Report(nil), st.reports...),
		onboarding: make(map[entity.UserID]bool, len(st.onboarding)),
	}
	for k, v := range st.health {
		out.health[k] = v
	}
	for k, v := range st.onboarding {
		out.onboarding[k] = v
	}
	return out
}

type memTx struct {
	state *memState
}

func (t *memTx) InvalidatePortfolio(_ context.Context, userID entity.UserID) error {
	for i := range t.state.problems {
		if t.state.problems[i].UserID == userID {
			t.state.problems[i].Active = false
		}
	}
	for i := range t.state.members {
		if t.state.members[i].UserID == userID {
			t.state.members[i].Active = false
		}
	}
	for i := range t.state.triggers {
		if t.state.triggers[i].UserID == userID {
			t.state.triggers[i].Active = false
		}
	}
	return nil
}

func (t *memTx) CreateProblem(_ context.Context, p entity.Problem) error {
	if p.ID == "" {
		return fmt.Errorf("problem id is required")
	}
	t.state.problems = append(t.state.problems, p)
	return nil
}

func (t *memTx) CreateBoardMember(_ context.Context, m entity.BoardMember) error {
	if m.ID == "" {
		return fmt.Errorf("board member id is required")
	}
	t.state.members = append(t.state.members, m)
	return nil
}

func (t *memTx) CreateTrigger(_ context.Context, tr entity.Trigger) error {
	if tr.ID == "" {
		return fmt.Errorf("trigger id is required")
	}
	t.state.triggers = append(t.state.triggers, tr)
	return nil
}

func (t *memTx) UpsertHealth(_ context.Context, h entity.PortfolioHealth) error {
	t.state.health[h.UserID] = h
	return nil
}

func (t *memTx) CreateVersion(_ context.Context, v entity.PortfolioVersion) error {
	if latest := latestVersionLocked(t.state, v.UserID); v.Version != latest+1 {
		return fmt.Errorf("version %d is not the successor of %d", v.Version, latest)
	}
	t.state.versions = append(t.state.versions, v)
	return nil
}

func (t *memTx) CreateBet(_ context.Context, b entity.Bet) error {
	if b.ID == "" {
		return fmt.Errorf("bet id is required")
	}
	t.state.bets = append(t.state.bets, b)
	return nil
}

func (t *memTx) SetBetStatus(_ context.Context, betID string, status entity.BetStatus, at time.Time) error {
	for i := range t.state.bets {
		if t.state.bets[i].ID == betID {
			t.state.bets[i].Status = status
			t.state.bets[i].EvaluatedAt = &at
			return nil
		}
	}
	return ErrNotFound
}

func (t *memTx) CreateReport(_ context.Context, r entity.Report) error {
	if r.ID == "" {
		return fmt.Errorf("report id is required")
	}
	t.state.reports = append(t.state.reports, r)
	return nil
}

func (t *memTx) MarkOnboardingComplete(_ context.Context, userID entity.UserID) error {
	t.state.onboarding[userID] = true
	return nil
}
