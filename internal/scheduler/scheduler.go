package scheduler

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Task is a single-shot deferred job, keyed by the entity it targets so a
// redelivered task hits the same idempotent handler.
type Task struct {
	ID     string
	Kind   string
	FireAt time.Time
}

// Scheduler is the abstraction over different backends. Schedule stores a
// task, Due returns every task whose fire time has passed, Done removes a
// completed task. A task that is never marked Done stays visible to the
// next Due call, which is how failed handlers get retried.
type Scheduler interface {
	Schedule(ctx context.Context, t Task) error
	Due(ctx context.Context, now time.Time) ([]Task, error)
	Done(ctx context.Context, t Task) error
}

// InMemory is a map-backed scheduler for dev/testing. Tasks do not survive
// a process restart.
type InMemory struct {
	mu    sync.Mutex
	tasks map[string]Task
}

// NewInMemory creates an empty in-memory scheduler.
func NewInMemory() *InMemory {
	return &InMemory{tasks: make(map[string]Task)}
}

// Schedule stores a task, replacing any previous task with the same key.
func (s *InMemory) Schedule(ctx context.Context, t Task) error {
	s.mu.Lock()
	s.tasks[t.Kind+"|"+t.ID] = t
	s.mu.Unlock()
	return nil
}

// Due returns tasks whose fire time is at or before now, earliest first.
func (s *InMemory) Due(ctx context.Context, now time.Time) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Task
	for _, t := range s.tasks {
		if !t.FireAt.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].FireAt.Before(due[j].FireAt) })
	return due, nil
}

// Done removes a completed task.
func (s *InMemory) Done(ctx context.Context, t Task) error {
	s.mu.Lock()
	delete(s.tasks, t.Kind+"|"+t.ID)
	s.mu.Unlock()
	return nil
}

// RedisScheduler keeps tasks in a sorted set scored by fire time, so they
// survive process restarts and are redelivered until marked Done.
type RedisScheduler struct {
	client *redis.Client
	key    string
}

// NewRedisScheduler builds a scheduler over one sorted set.
func NewRedisScheduler(client *redis.Client, key string) *RedisScheduler {
	if key == "" {
		key = "schoolmarks:tasks"
	}
	return &RedisScheduler{client: client, key: key}
}

// Schedule adds the task with its fire time as score.
func (s *RedisScheduler) Schedule(ctx context.Context, t Task) error {
	return s.client.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(t.FireAt.Unix()),
		Member: t.Kind + "|" + t.ID,
	}).Err()
}

// Due returns every task scored at or before now.
func (s *RedisScheduler) Due(ctx context.Context, now time.Time) ([]Task, error) {
	members, err := s.client.ZRangeByScoreWithScores(ctx, s.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: formatScore(now),
	}).Result()
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(members))
	for _, m := range members {
		member, ok := m.Member.(string)
		if !ok {
			continue
		}
		kind, id := splitMember(member)
		tasks = append(tasks, Task{ID: id, Kind: kind, FireAt: time.Unix(int64(m.Score), 0)})
	}
	return tasks, nil
}

// Done removes a completed task from the set.
func (s *RedisScheduler) Done(ctx context.Context, t Task) error {
	return s.client.ZRem(ctx, s.key, t.Kind+"|"+t.ID).Err()
}

func formatScore(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func splitMember(member string) (kind, id string) {
	if i := strings.IndexByte(member, '|'); i >= 0 {
		return member[:i], member[i+1:]
	}
	return "", member
}
