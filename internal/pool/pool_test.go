package pool

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-build/nexus/internal/agentrun"
	"github.com/nexus-build/nexus/internal/eventbus"
	"github.com/nexus-build/nexus/internal/llm"
	"github.com/nexus-build/nexus/internal/models"
	"github.com/nexus-build/nexus/internal/runner"
	"github.com/nexus-build/nexus/internal/vcs"
	"github.com/nexus-build/nexus/internal/worktree"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-q")
	run("config", "user.name", "test")
	run("config", "user.email", "test@test.local")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "-A")
	run("commit", "-q", "-m", "init")
	return dir
}

// scriptedProvider always returns the same envelope, regardless of how many
// times the pool calls it across different task submissions.
type scriptedProvider struct {
	reply string
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(ctx context.Context, role models.AgentRole, messages []llm.Message, opts llm.Options) (llm.Response, error) {
	return llm.Response{Content: p.reply, FinishReason: llm.FinishStop}, nil
}

func (p *scriptedProvider) CountTokens(text string) int { return len(text) / 4 }

func newLoop(reply string) *agentrun.BoundedLoop {
	client := llm.NewClient(&scriptedProvider{reply: reply}, llm.ClientOptions{}, nil)
	return &agentrun.BoundedLoop{Client: client}
}

func TestPoolRunsCoderPipelineToCompletion(t *testing.T) {
	dir := initRepo(t)
	adapter := vcs.NewAdapter(runner.New())
	mgr, err := worktree.NewManager(dir, t.TempDir(), adapter)
	require.NoError(t, err)

	coder := &agentrun.Coder{Loop: newLoop(`{"status":"success","summary":"noop"}`), VCS: adapter}
	merger := &agentrun.Merger{VCS: adapter}
	bus := eventbus.New()

	var completed []models.Event
	bus.Subscribe(models.EventTaskCompleted, func(e models.Event) { completed = append(completed, e) })

	p := New(Config{
		Concurrency:     2,
		WorktreeManager: mgr,
		VCS:             adapter,
		Coder:           coder,
		Merger:          merger,
		EventBus:        bus,
		IntegrationDir:  dir,
	})
	p.Start(context.Background())

	task := models.Task{ID: "t1", Title: "noop task", Description: "do nothing", Priority: models.PriorityMust}
	p.Submit(task, "")

	require.NoError(t, p.Shutdown(5*time.Second))

	outcome, ok := p.Outcome("t1")
	require.True(t, ok)
	assert.NoError(t, outcome.Err)
	assert.Nil(t, outcome.Review)
	assert.Len(t, completed, 1)

	_, stillBound := mgr.Get("t1")
	assert.False(t, stillBound, "worktree should be released after a completed coder pipeline")
}

func TestPoolDetachWorktreesLeavesHandleBound(t *testing.T) {
	dir := initRepo(t)
	adapter := vcs.NewAdapter(runner.New())
	mgr, err := worktree.NewManager(dir, t.TempDir(), adapter)
	require.NoError(t, err)

	coder := &agentrun.Coder{Loop: newLoop(`{"status":"success","summary":"noop"}`), VCS: adapter}

	p := New(Config{
		WorktreeManager: mgr,
		VCS:             adapter,
		Coder:           coder,
		IntegrationDir:  dir,
		DetachWorktrees: true,
	})
	p.Start(context.Background())
	p.Submit(models.Task{ID: "t2", Title: "noop", Priority: models.PriorityShould}, "")
	require.NoError(t, p.Shutdown(5*time.Second))

	_, ok := mgr.Get("t2")
	assert.True(t, ok, "detached worktrees must stay bound for later inspection")
}

func TestPoolTesterReviewerMergerRequireExistingWorktree(t *testing.T) {
	dir := initRepo(t)
	adapter := vcs.NewAdapter(runner.New())
	mgr, err := worktree.NewManager(dir, t.TempDir(), adapter)
	require.NoError(t, err)

	p := New(Config{
		WorktreeManager: mgr,
		VCS:             adapter,
		Tester:          &agentrun.Tester{Loop: newLoop(`{"status":"success"}`), VCS: adapter},
		IntegrationDir:  dir,
	})
	p.Start(context.Background())
	p.Submit(models.Task{ID: "no-worktree", Title: "orphan"}, models.RoleTester)
	require.NoError(t, p.Shutdown(5*time.Second))

	outcome, ok := p.Outcome("no-worktree")
	require.True(t, ok)
	require.Error(t, outcome.Err)
	assert.Contains(t, outcome.Err.Error(), "no existing worktree")
}

func TestPoolTesterReusesCoderWorktree(t *testing.T) {
	dir := initRepo(t)
	adapter := vcs.NewAdapter(runner.New())
	mgr, err := worktree.NewManager(dir, t.TempDir(), adapter)
	require.NoError(t, err)

	wt, err := mgr.CreateWorktree(context.Background(), "t3", "")
	require.NoError(t, err)

	p := New(Config{
		WorktreeManager: mgr,
		VCS:             adapter,
		Tester:          &agentrun.Tester{Loop: newLoop(`{"status":"success","summary":"added tests"}`), VCS: adapter},
		IntegrationDir:  dir,
		DetachWorktrees: true,
	})
	p.Start(context.Background())
	p.Submit(models.Task{ID: "t3", Title: "test it"}, models.RoleTester)
	require.NoError(t, p.Shutdown(5*time.Second))

	outcome, ok := p.Outcome("t3")
	require.True(t, ok)
	assert.NoError(t, outcome.Err)

	bound, ok := mgr.Get("t3")
	require.True(t, ok)
	assert.Equal(t, wt.Path, bound.Path)
}

func TestPoolMetricsReportsQueueAndInFlight(t *testing.T) {
	dir := initRepo(t)
	adapter := vcs.NewAdapter(runner.New())
	mgr, err := worktree.NewManager(dir, t.TempDir(), adapter)
	require.NoError(t, err)

	p := New(Config{
		Concurrency:     1,
		WorktreeManager: mgr,
		VCS:             adapter,
		Coder:           &agentrun.Coder{Loop: newLoop(`{"status":"success"}`), VCS: adapter},
		IntegrationDir:  dir,
	})

	p.Submit(models.Task{ID: "m1", Priority: models.PriorityMust}, "")
	p.Submit(models.Task{ID: "m2", Priority: models.PriorityCould}, "")

	snap := p.Metrics()
	assert.Equal(t, 1, snap.QueueLength[models.PriorityMust])
	assert.Equal(t, 1, snap.QueueLength[models.PriorityCould])

	p.Start(context.Background())
	require.NoError(t, p.Shutdown(5*time.Second))
}

// trackingProvider records the peak number of concurrent Chat calls it
// observes, to let a test assert that RoleCaps actually throttled dispatch.
type trackingProvider struct {
	reply string

	mu      sync.Mutex
	current int
	peak    int
}

func (p *trackingProvider) Name() string { return "tracking" }

func (p *trackingProvider) Chat(ctx context.Context, role models.AgentRole, messages []llm.Message, opts llm.Options) (llm.Response, error) {
	p.mu.Lock()
	p.current++
	if p.current > p.peak {
		p.peak = p.current
	}
	p.mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	p.mu.Lock()
	p.current--
	p.mu.Unlock()
	return llm.Response{Content: p.reply, FinishReason: llm.FinishStop}, nil
}

func (p *trackingProvider) CountTokens(text string) int { return len(text) / 4 }

func TestPoolRoleCapsThrottleBelowOverallConcurrency(t *testing.T) {
	dir := initRepo(t)
	adapter := vcs.NewAdapter(runner.New())
	mgr, err := worktree.NewManager(dir, t.TempDir(), adapter)
	require.NoError(t, err)

	provider := &trackingProvider{reply: `{"status":"success","summary":"noop"}`}
	client := llm.NewClient(provider, llm.ClientOptions{}, nil)
	coder := &agentrun.Coder{Loop: &agentrun.BoundedLoop{Client: client}, VCS: adapter}
	merger := &agentrun.Merger{VCS: adapter}

	p := New(Config{
		Concurrency:     4,
		RoleCaps:        map[models.AgentRole]int{models.RoleCoder: 1},
		WorktreeManager: mgr,
		VCS:             adapter,
		Coder:           coder,
		Merger:          merger,
		IntegrationDir:  dir,
	})
	p.Start(context.Background())

	for i := 0; i < 3; i++ {
		p.Submit(models.Task{ID: fmt.Sprintf("rc%d", i), Priority: models.PriorityMust}, "")
	}

	require.NoError(t, p.Shutdown(5*time.Second))

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Equal(t, 1, provider.peak, "role cap of 1 should serialize coder dispatch despite overall concurrency of 4")
}

func TestPriorityQueueDrainsHighestBucketFirst(t *testing.T) {
	q := newPriorityQueue()
	q.push(models.Task{ID: "could"}, models.RoleCoder)
	q.push(models.Task{ID: "must"}, models.RoleCoder)
	q.push(models.Task{ID: "should"}, models.RoleCoder)

	first, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "must", first.task.ID)

	second, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "should", second.task.ID)

	third, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "could", third.task.ID)
}

func TestPriorityQueuePopBlocksUntilPushOrClose(t *testing.T) {
	q := newPriorityQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.pop()
		done <- ok
	}()

	select {
	case <-done:
		t.Fatal("pop returned before any task was pushed or the queue closed")
	case <-time.After(50 * time.Millisecond):
	}

	q.close()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock after close")
	}
}
