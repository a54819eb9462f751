package domain

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tribes-lab/backend/internal/model"
	"github.com/tribes-lab/backend/pkg/xcontext"
)

// syncScheduler re-pulls every known tribe's post list on a fixed interval.
// The first pass runs after a short startup delay so the process can finish
// wiring before the chain is hammered.
type syncScheduler struct {
	posts   *postsService
	indexer IndexerService

	// isSyncing suppresses an overlapping pass. The second attempt is
	// skipped, not queued.
	isSyncing int32

	statusMutex sync.Mutex
	status      model.SyncStatus

	listenerMutex sync.Mutex
	listeners     map[int]func(model.SyncStatus)
	nextListener  int

	stop chan struct{}
	once sync.Once
	wait sync.WaitGroup
}

func newSyncScheduler(posts *postsService, indexer IndexerService) *syncScheduler {
	return &syncScheduler{
		posts:     posts,
		indexer:   indexer,
		listeners: map[int]func(model.SyncStatus){},
		stop:      make(chan struct{}),
	}
}

func (s *syncScheduler) Start(ctx context.Context) {
	s.wait.Add(1)
	go s.loop(ctx)
}

func (s *syncScheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wait.Wait()
}

func (s *syncScheduler) loop(ctx context.Context) {
	defer s.wait.Done()

	cfg := xcontext.Configs(ctx).Sync
	select {
	case <-s.stop:
		return
	case <-time.After(cfg.StartDelay):
	}

	s.runPass(ctx)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

func (s *syncScheduler) Status() model.SyncStatus {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()

	return s.status
}

func (s *syncScheduler) AddListener(listener func(model.SyncStatus)) func() {
	s.listenerMutex.Lock()
	defer s.listenerMutex.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listener

	return func() {
		s.listenerMutex.Lock()
		defer s.listenerMutex.Unlock()
		delete(s.listeners, id)
	}
}

func (s *syncScheduler) setStatus(update func(status *model.SyncStatus)) {
	s.statusMutex.Lock()
	update(&s.status)
	snapshot := s.status
	s.statusMutex.Unlock()

	s.listenerMutex.Lock()
	listeners := make([]func(model.SyncStatus), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenerMutex.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

// runPass walks all known tribes and resynchronizes their post lists. A
// failed tribe is counted and skipped; the error counter resets only after a
// pass that finishes with zero fresh errors.
func (s *syncScheduler) runPass(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&s.isSyncing, 0, 1) {
		xcontext.Logger(ctx).Debugf("Sync pass already running, skipped")
		return
	}
	defer atomic.StoreInt32(&s.isSyncing, 0)

	tribes := s.indexer.GetTribesSince(ctx, 0)
	s.setStatus(func(status *model.SyncStatus) {
		status.IsSyncing = true
		status.Progress = 0
		status.Total = len(tribes)
	})

	freshErrors := 0
	for i, tribe := range tribes {
		select {
		case <-s.stop:
			s.setStatus(func(status *model.SyncStatus) { status.IsSyncing = false })
			return
		default:
		}

		if err := s.posts.SyncTribePosts(ctx, tribe.ID); err != nil {
			freshErrors++
			xcontext.Logger(ctx).Warnf("Cannot sync tribe %s: %v", tribe.ID, err)
			s.setStatus(func(status *model.SyncStatus) {
				status.ErrorCount++
				status.LastError = err.Error()
			})
		}

		progress := i + 1
		s.setStatus(func(status *model.SyncStatus) { status.Progress = progress })
	}

	s.setStatus(func(status *model.SyncStatus) {
		status.IsSyncing = false
		status.LastSyncTime = time.Now().Unix()
		if freshErrors == 0 {
			status.ErrorCount = 0
			status.LastError = ""
		}
	})
}
