package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"satsync/internal/checkpoint"
	"satsync/internal/remote"
)

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	slept   []time.Duration
	onSleep func(d time.Duration)
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return ctx.Err()
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) sleeps(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.slept {
		if s == d {
			n++
		}
	}
	return n
}

// fakeArchive is an in-memory remote. Directories not in dirs do not exist.
type fakeArchive struct {
	mu           sync.Mutex
	dirs         map[string][]string
	failRetrieve map[string]int
	listFailures map[string]int
	dialFailures int
	pingErr      error

	dials     int
	closes    int
	retrieves map[string]int
	listed    []string
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		dirs:         map[string][]string{},
		failRetrieve: map[string]int{},
		listFailures: map[string]int{},
		retrieves:    map[string]int{},
	}
}

func (a *fakeArchive) add(dir string, names ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dirs[dir] = append(a.dirs[dir], names...)
}

func (a *fakeArchive) Describe() string { return "fake://archive" }

func (a *fakeArchive) Dial(ctx context.Context) (remote.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dials++
	if a.dialFailures > 0 {
		a.dialFailures--
		return nil, errors.New("connection refused")
	}
	return &fakeClient{a: a}, nil
}

func (a *fakeArchive) retrieveCount(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.retrieves[name]
}

type fakeClient struct {
	a *fakeArchive
}

func (c *fakeClient) List(ctx context.Context, dir string) ([]remote.Entry, error) {
	a := c.a
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listed = append(a.listed, dir)
	if a.listFailures[dir] > 0 {
		a.listFailures[dir]--
		return nil, errors.New("connection reset by peer")
	}
	names, ok := a.dirs[dir]
	if !ok {
		return nil, fmt.Errorf("%w: 550 Failed to change directory %s", remote.ErrNotFound, dir)
	}
	entries := make([]remote.Entry, 0, len(names))
	for _, n := range names {
		entries = append(entries, remote.Entry{Name: n})
	}
	return entries, nil
}

func (c *fakeClient) Retrieve(ctx context.Context, dir, name string, w io.Writer) error {
	a := c.a
	a.mu.Lock()
	a.retrieves[name]++
	fail := a.failRetrieve[name]
	if fail > 0 {
		a.failRetrieve[name]--
	}
	a.mu.Unlock()

	if fail != 0 {
		w.Write([]byte("partial"))
		return errors.New("426 transfer aborted")
	}
	_, err := io.WriteString(w, "content of "+name)
	return err
}

func (c *fakeClient) Ping(ctx context.Context) error {
	c.a.mu.Lock()
	defer c.a.mu.Unlock()
	return c.a.pingErr
}

func (c *fakeClient) Close() error {
	c.a.mu.Lock()
	defer c.a.mu.Unlock()
	c.a.closes++
	return nil
}

type fakeProcessor struct {
	err   error
	files []string
}

func (p *fakeProcessor) Run(ctx context.Context, file string) error {
	p.files = append(p.files, file)
	return p.err
}

type memCheckpoints struct {
	mu    sync.Mutex
	saved map[string]checkpoint.Checkpoint
	saves int
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{saved: map[string]checkpoint.Checkpoint{}}
}

func (m *memCheckpoints) Load(ctx context.Context, source string) (checkpoint.Checkpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.saved[source]
	return cp, ok, nil
}

func (m *memCheckpoints) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[cp.Source] = cp
	m.saves++
	return nil
}

func checkpointAt(source string, cursor time.Time) checkpoint.Checkpoint {
	return checkpoint.Checkpoint{Source: source, Cursor: cursor, Mode: string(ModeHistorical)}
}
