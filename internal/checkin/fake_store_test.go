package checkin

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"schoolmarks/internal/scheduler"
)

// fakeStore is an in-memory Store mirroring the Postgres semantics the
// repository relies on: the (session, student) uniqueness constraint and
// conflict-skipping bulk insert.
type fakeStore struct {
	mu            sync.Mutex
	sessions      map[string]Session
	classSessions map[string]ClassSession
	records       map[string]map[string]Record // session -> student -> record
	enrollments   map[string]map[string]bool   // course -> student

	insertErr error // forced failure for race/retry tests
	closeErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:      make(map[string]Session),
		classSessions: make(map[string]ClassSession),
		records:       make(map[string]map[string]Record),
		enrollments:   make(map[string]map[string]bool),
	}
}

func (f *fakeStore) addClassSession(cs ClassSession) {
	f.classSessions[cs.ID] = cs
}

func (f *fakeStore) enroll(courseID string, studentIDs ...string) {
	if f.enrollments[courseID] == nil {
		f.enrollments[courseID] = make(map[string]bool)
	}
	for _, id := range studentIDs {
		f.enrollments[courseID][id] = true
	}
}

func (f *fakeStore) addSession(s Session) {
	f.sessions[s.ID] = s
}

func (f *fakeStore) CreateSession(ctx context.Context, s Session) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = time.Now()
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeStore) GetSession(ctx context.Context, id string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeStore) GetClassSession(ctx context.Context, id string) (*ClassSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cs, ok := f.classSessions[id]
	if !ok {
		return nil, nil
	}
	return &cs, nil
}

func (f *fakeStore) EnsureSecret(ctx context.Context, sessionID, secret string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[sessionID]
	if s.Secret == nil || *s.Secret == "" {
		s.Secret = &secret
		f.sessions[sessionID] = s
	}
	return *s.Secret, nil
}

func (f *fakeStore) HasRecord(ctx context.Context, sessionID, studentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[sessionID][studentID]
	return ok, nil
}

func (f *fakeStore) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return Record{}, f.insertErr
	}
	if _, ok := f.records[rec.SessionID][rec.StudentID]; ok {
		return Record{}, ErrDuplicateRecord
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now()
	if f.records[rec.SessionID] == nil {
		f.records[rec.SessionID] = make(map[string]Record)
	}
	f.records[rec.SessionID][rec.StudentID] = rec
	return rec, nil
}

func (f *fakeStore) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enrollments[courseID][studentID], nil
}

func (f *fakeStore) EligibleStudents(ctx context.Context, courseID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.enrollments[courseID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) RegisteredStudents(ctx context.Context, sessionID string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := make(map[string]struct{})
	for id := range f.records[sessionID] {
		set[id] = struct{}{}
	}
	return set, nil
}

func (f *fakeStore) CloseWithAbsentees(ctx context.Context, sessionID string, absentees []Record) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeErr != nil {
		return 0, f.closeErr
	}
	if f.records[sessionID] == nil {
		f.records[sessionID] = make(map[string]Record)
	}
	inserted := 0
	for _, rec := range absentees {
		if _, ok := f.records[sessionID][rec.StudentID]; ok {
			continue
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		f.records[sessionID][rec.StudentID] = rec
		inserted++
	}
	s := f.sessions[sessionID]
	s.Status = StatusClosed
	f.sessions[sessionID] = s
	return inserted, nil
}

func (f *fakeStore) ListRecords(ctx context.Context, sessionID, studentID string) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var recs []Record
	for id, rec := range f.records[sessionID] {
		if studentID != "" && id != studentID {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// fakeScheduler records scheduled tasks instead of persisting them.
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []scheduler.Task
	err   error
}

func (f *fakeScheduler) Schedule(ctx context.Context, t scheduler.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, t)
	return nil
}
