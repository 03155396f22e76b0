package search

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errStoreDown = errors.New("store unavailable")

type fakeSources struct {
	contacts []Contact
	projects []Project
	tasks    []Task

	projectErr error
	taskErr    error
	block      chan struct{}
}

func (f *fakeSources) ListContacts(ctx context.Context) ([]Contact, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.contacts, nil
}

func (f *fakeSources) ListProjects(ctx context.Context) ([]Project, error) {
	return f.projects, f.projectErr
}

func (f *fakeSources) ListTasks(ctx context.Context) ([]Task, error) {
	if f.taskErr != nil {
		return nil, f.taskErr
	}
	return f.tasks, nil
}

// flakyStore fails upserts for the listed ids
type flakyStore struct {
	*MemoryStore
	failIDs map[string]bool
}

func (s *flakyStore) Upsert(ctx context.Context, entry *IndexEntry) error {
	if s.failIDs[entry.EntityID] {
		return errStoreDown
	}
	return s.MemoryStore.Upsert(ctx, entry)
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	released int
	err      error
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		l.released++
		return nil
	}, true, nil
}

type fakeLookups struct {
	contacts map[string]*Contact
	projects map[string]*Project
	tasks    map[string]*Task
	users    map[string]string

	userErr   error
	userCalls int
	mu        sync.Mutex
}

func (f *fakeLookups) GetContact(ctx context.Context, id string) (*Contact, error) {
	if c, ok := f.contacts[id]; ok {
		return c, nil
	}
	return nil, ErrNotFound
}

func (f *fakeLookups) GetProject(ctx context.Context, id string) (*Project, error) {
	if p, ok := f.projects[id]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}

func (f *fakeLookups) GetTask(ctx context.Context, id string) (*Task, error) {
	if t, ok := f.tasks[id]; ok {
		return t, nil
	}
	return nil, ErrNotFound
}

func (f *fakeLookups) GetUserName(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	f.userCalls++
	f.mu.Unlock()
	if f.userErr != nil {
		return "", f.userErr
	}
	if name, ok := f.users[id]; ok {
		return name, nil
	}
	return "", ErrNotFound
}

type historyCall struct {
	ownerID    string
	query      string
	entityType EntityType
	results    int
}

type fakeHistory struct {
	calls []historyCall
	err   error
}

func (f *fakeHistory) RecordHistory(ctx context.Context, ownerID, query string, entityType EntityType, resultsCount int, searchTime int64) error {
	f.calls = append(f.calls, historyCall{ownerID, query, entityType, resultsCount})
	return f.err
}

var fixedNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }
