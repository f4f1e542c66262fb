package handler_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rso-iota/rso-bots/bot/application"
	"github.com/rso-iota/rso-bots/bot/domain"
)

type fakeControl struct {
	mu    sync.Mutex
	bots  map[string]application.HandleInfo
	specs map[string]application.Spec
	err   error
}

func newFakeControl() *fakeControl {
	return &fakeControl{
		bots:  make(map[string]application.HandleInfo),
		specs: make(map[string]application.Spec),
	}
}

func (f *fakeControl) Add(_ context.Context, agentID string, spec application.Spec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.bots[agentID]; ok {
		return domain.ErrAgentAlreadyExists
	}
	f.specs[agentID] = spec
	f.bots[agentID] = application.HandleInfo{
		AgentID:     agentID,
		SessionID:   "session-" + agentID,
		GameID:      spec.GameID,
		DisplayName: spec.DisplayName,
		Policy:      spec.Policy,
		Target:      spec.Target,
		State:       domain.StateRunning,
		StartedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Stats:       domain.ActivityStats{MessagesReceived: 3, MovesSent: 2},
	}
	return nil
}

func (f *fakeControl) Remove(_ context.Context, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bots[agentID]; !ok {
		return domain.ErrAgentNotFound
	}
	delete(f.bots, agentID)
	return nil
}

func (f *fakeControl) Get(_ context.Context, agentID string) (application.HandleInfo, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.bots[agentID]
	return info, ok, nil
}

func (f *fakeControl) List(context.Context) ([]application.HandleInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]application.HandleInfo, 0, len(f.bots))
	for _, info := range f.bots {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (f *fakeControl) spec(agentID string) application.Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.specs[agentID]
}

func (f *fakeControl) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}
