package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/censor-ci/censor/pkg/logger"
	"github.com/censor-ci/censor/pkg/notifier"
	"github.com/censor-ci/censor/pkg/plugins"
	"github.com/censor-ci/censor/pkg/store"
	"github.com/censor-ci/censor/pkg/types"
	"github.com/censor-ci/censor/pkg/workspace"
)

type projectList []types.Project

func (l projectList) Project(id int64) (types.Project, bool) {
	for _, p := range l {
		if p.ID == id {
			return p, true
		}
	}
	return types.Project{}, false
}

type notification struct{ title, message string }

type notificationLog struct {
	mu   sync.Mutex
	sent []notification
}

func (n *notificationLog) send(title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{title, message})
	return nil
}

func (n *notificationLog) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

// originRepo creates a repository on master holding files
func originRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "origin")
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	sig := &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()}
	_, err = wt.Commit("Add pipeline\n", &git.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)
	return dir
}

type executorFixture struct {
	store         *store.FileStore
	workspaceRoot string
	notes         *notificationLog
	output        *bytes.Buffer
	executor      *Executor
}

func newExecutorFixture(t *testing.T, origin string, opts ExecutorOptions) *executorFixture {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	f := &executorFixture{
		store:         st,
		workspaceRoot: t.TempDir(),
		notes:         &notificationLog{},
		output:        &bytes.Buffer{},
	}
	if opts.Output == nil {
		opts.Output = f.output
	}
	f.executor = NewExecutor(Dependencies{
		Store:     st,
		Registry:  plugins.DefaultRegistry(),
		Workspace: workspace.NewManager(f.workspaceRoot, logger.Nop()),
		Notifier:  notifier.New(notifier.Config{Enabled: true}, logger.Nop(), notifier.WithSender(f.notes.send)),
		Projects: projectList{
			{ID: 1, Title: "webapp", Reference: origin, DefaultBranch: "master"},
		},
	}, opts, logger.Nop())
	return f
}

func (f *executorFixture) queue(t *testing.T, req types.BuildRequest) int64 {
	t.Helper()
	rec, err := NewRecord(req, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.store.Save(context.Background(), rec))
	return rec.ID()
}

func TestExecute_Success(t *testing.T) {
	origin := originRepo(t, map[string]string{
		".censor.yml": `
stages:
  test:
    - plugin: shell
      options:
        commands:
          - "echo building $((40 + 2))"
          - "test -f .censor.yml"
  success:
    - plugin: shell
      options:
        commands: ["echo all good"]
`,
	})
	f := newExecutorFixture(t, origin, ExecutorOptions{})
	id := f.queue(t, types.BuildRequest{ProjectID: 1})

	status, err := f.executor.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, status)

	stored, err := f.store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, stored.Status())
	assert.Equal(t, "master", stored.Branch())
	assert.Len(t, stored.CommitID(), 40)
	assert.Equal(t, "dev@example.com", stored.CommitterEmail())
	assert.Equal(t, "Add pipeline", stored.CommitMessage())

	require.NotNil(t, stored.Log())
	assert.Contains(t, *stored.Log(), "building 42")
	assert.Contains(t, *stored.Log(), "all good")
	assert.Contains(t, f.output.String(), "building 42")

	entries, err := os.ReadDir(filepath.Join(f.workspaceRoot, "project-1"))
	if err == nil {
		assert.Empty(t, entries, "the checkout is removed after the build")
	}

	notes := f.notes.all()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].title, "Succeeded")
	assert.Contains(t, notes[0].message, "webapp #1")
}

func TestExecute_FailingCommand(t *testing.T) {
	origin := originRepo(t, map[string]string{
		".censor.yml": `
test:
  shell:
    commands: ["exit 3"]
deploy:
  shell:
    commands: ["echo deploying"]
`,
	})
	f := newExecutorFixture(t, origin, ExecutorOptions{})
	id := f.queue(t, types.BuildRequest{ProjectID: 1, Source: "webhook-push"})

	status, err := f.executor.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, status)

	stored, err := f.store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, stored.Status())
	assert.Equal(t, types.SourceWebhookPush, stored.Source())
	assert.NotContains(t, *stored.Log(), "deploying")

	notes := f.notes.all()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].title, "Failed")
}

func TestExecute_DesktopNotifyHookSendsTheOnlyNotification(t *testing.T) {
	origin := originRepo(t, map[string]string{
		".censor.yml": `
test:
  shell:
    commands: ["true"]
complete:
  desktop_notify:
    title: "webapp built"
`,
	})
	f := newExecutorFixture(t, origin, ExecutorOptions{})
	id := f.queue(t, types.BuildRequest{ProjectID: 1})

	status, err := f.executor.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, status)

	notes := f.notes.all()
	require.Len(t, notes, 1)
	assert.Equal(t, "webapp built", notes[0].title)
}

func TestExecute_KeepWorkspace(t *testing.T) {
	origin := originRepo(t, map[string]string{
		".censor.yml": "test:\n  shell:\n    commands: [\"touch artifact\"]\n",
	})
	f := newExecutorFixture(t, origin, ExecutorOptions{KeepWorkspace: true})
	id := f.queue(t, types.BuildRequest{ProjectID: 1})

	_, err := f.executor.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(f.workspaceRoot, "project-1", "build-1", "artifact"))
}

func TestExecute_AbortsBeforeStages(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		req   types.BuildRequest
	}{
		{
			name:  "unknown project",
			files: map[string]string{"README": "x"},
			req:   types.BuildRequest{ProjectID: 7},
		},
		{
			name:  "unknown branch",
			files: map[string]string{"README": "x"},
			req:   types.BuildRequest{ProjectID: 1, Branch: "missing"},
		},
		{
			name:  "unknown plugin",
			files: map[string]string{".censor.yml": "test:\n  no_such_plugin: {}\n"},
			req:   types.BuildRequest{ProjectID: 1},
		},
		{
			name:  "malformed document",
			files: map[string]string{".censor.yml": "stages: [1, 2\n"},
			req:   types.BuildRequest{ProjectID: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExecutorFixture(t, originRepo(t, tt.files), ExecutorOptions{})
			id := f.queue(t, tt.req)

			status, err := f.executor.Execute(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, types.StatusFailed, status)

			stored, err := f.store.Load(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, types.StatusFailed, stored.Status())
			assert.NotNil(t, stored.FinishDate())
			assert.Contains(t, *stored.Log(), "Build failed before its stages ran")
		})
	}
}

func TestExecute_ZeroConfigWithoutDocument(t *testing.T) {
	f := newExecutorFixture(t, originRepo(t, map[string]string{"README": "nothing to analyse"}), ExecutorOptions{})
	id := f.queue(t, types.BuildRequest{ProjectID: 1})

	status, err := f.executor.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, status)
}

func TestExecute_ComparesWithPreviousBuild(t *testing.T) {
	origin := originRepo(t, map[string]string{
		".censor.yml": "test:\n  shell:\n    commands: [\"true\"]\nfixed:\n  shell:\n    commands: [\"echo fixed hook\"]\n",
	})
	f := newExecutorFixture(t, origin, ExecutorOptions{})

	// a failed build for the same branch precedes this one
	failed := f.queue(t, types.BuildRequest{ProjectID: 1, Branch: "master"})
	prev, err := f.store.Load(context.Background(), failed)
	require.NoError(t, err)
	require.NoError(t, prev.Start(time.Now()))
	prev.ReportError("shell", "old problem", types.SeverityHigh, "a.php", 1, 1)
	prev.ComputeNewErrors(nil)
	require.NoError(t, prev.Finish(types.StatusFailed, time.Now()))
	require.NoError(t, f.store.Save(context.Background(), prev))

	id := f.queue(t, types.BuildRequest{ProjectID: 1, Branch: "master"})
	status, err := f.executor.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, status)

	stored, err := f.store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ErrorsTotalPrevious())
	assert.Equal(t, 0, stored.ErrorsNew())
	assert.Contains(t, *stored.Log(), "fixed hook")
}

func TestExecute_MissingBuild(t *testing.T) {
	f := newExecutorFixture(t, originRepo(t, map[string]string{"README": "x"}), ExecutorOptions{})

	_, err := f.executor.Execute(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.notes.all())
}

func TestNewExecutor_RequiresDependencies(t *testing.T) {
	assert.Panics(t, func() {
		NewExecutor(Dependencies{}, ExecutorOptions{}, nil)
	})
}
