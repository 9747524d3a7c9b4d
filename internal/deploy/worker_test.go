package deploy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/fwplan/internal/logging"
	"grimm.is/fwplan/internal/router"
)

// memStore keeps deployments in memory and records every saved state.
type memStore struct {
	mu     sync.Mutex
	byID   map[string]*Deployment
	states []State
}

func newMemStore(ds ...*Deployment) *memStore {
	s := &memStore{byID: make(map[string]*Deployment)}
	for _, d := range ds {
		s.byID[d.ID] = d
	}
	return s
}

func (s *memStore) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) SaveDeployment(ctx context.Context, d *Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.byID[d.ID] = &cp
	s.states = append(s.states, d.State)
	return nil
}

func (s *memStore) state(id string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id].State
}

func TestWorker_ProcessPersistsTransitions(t *testing.T) {
	r1, sim1 := simRouter(t, "r1", `{}`)
	d := readyDeployment(t, RouterConfig{Router: "r1", Config: tree(t, `{"a":"1"}`)})
	store := newMemStore(d)

	w := NewWorker(store, newTestOrchestrator([]router.Router{r1}), 4, time.Minute, logging.Discard())
	require.NoError(t, w.Process(context.Background(), d.ID))

	assert.Equal(t, []State{StateRunning, StateSucceed}, store.states)
	assert.Equal(t, StateSucceed, store.state(d.ID))
	assert.JSONEq(t, `{"a":"1"}`, jsonOf(t, sim1.Running().Config()))
}

func TestWorker_ProcessRejectsNonReady(t *testing.T) {
	d := New(epoch)
	store := newMemStore(d)
	w := NewWorker(store, newTestOrchestrator(nil), 4, 0, logging.Discard())

	assert.Error(t, w.Process(context.Background(), d.ID))
	assert.Error(t, w.Process(context.Background(), "missing"))
	assert.Empty(t, store.states)
}

func TestWorker_QueueLoop(t *testing.T) {
	r1, _ := simRouter(t, "r1", `{}`)
	d1 := readyDeployment(t, RouterConfig{Router: "r1", Config: tree(t, `{"a":"1"}`)})
	d2 := readyDeployment(t, RouterConfig{Router: "r1", Config: tree(t, `{"a":"2"}`)})
	store := newMemStore(d1, d2)

	w := NewWorker(store, newTestOrchestrator([]router.Router{r1}), 4, time.Minute, logging.Discard())
	w.Start(context.Background())

	require.NoError(t, w.Enqueue(d1.ID))
	require.NoError(t, w.Enqueue(d2.ID))

	require.Eventually(t, func() bool {
		return store.state(d1.ID) == StateSucceed && store.state(d2.ID) == StateSucceed
	}, 5*time.Second, 10*time.Millisecond)

	w.Stop()
	assert.ErrorIs(t, w.Enqueue(d1.ID), ErrWorkerStopped)
}

func TestWorker_QueueFull(t *testing.T) {
	w := NewWorker(newMemStore(), newTestOrchestrator(nil), 1, 0, logging.Discard())
	queued, capacity := w.Pending()
	assert.Equal(t, 0, queued)
	assert.Equal(t, 1, capacity)

	require.NoError(t, w.Enqueue("a"))
	assert.ErrorIs(t, w.Enqueue("b"), ErrQueueFull)
	queued, _ = w.Pending()
	assert.Equal(t, 1, queued)
}
