package media

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browserbridge/internal/core"
	"browserbridge/internal/engine"
	"browserbridge/internal/store"
)

type stubSession struct {
	url        string
	screenshot []byte
	shotErr    error
}

func (s *stubSession) TakeScreenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	return s.screenshot, s.shotErr
}

func (s *stubSession) CurrentURL(ctx context.Context) (string, error) { return s.url, nil }

func (s *stubSession) CookieAccess() engine.CookieAccess { return nil }

func (s *stubSession) Close(ctx context.Context) error { return nil }

type stubAgent struct {
	session engine.Session
}

func (a *stubAgent) Run(ctx context.Context, onStep engine.StepFunc) (any, error) { return nil, nil }

func (a *stubAgent) Stop()   {}
func (a *stubAgent) Pause()  {}
func (a *stubAgent) Resume() {}

func (a *stubAgent) Session() engine.Session { return a.session }

func newTestPipeline(t *testing.T) (*Pipeline, store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemory()
	return NewPipeline(t.TempDir(), st, logger), st
}

func createTask(t *testing.T, st store.Store, id string, status core.TaskStatus) {
	t.Helper()
	require.NoError(t, st.Create(context.Background(), store.DefaultScope, &core.Task{
		ID:          id,
		Instruction: "x",
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}))
}

func TestCaptureWritesFileAndEntry(t *testing.T) {
	ctx := context.Background()
	p, st := newTestPipeline(t)
	createTask(t, st, "t1", core.StatusRunning)

	agent := &stubAgent{session: &stubSession{url: "https://example.com", screenshot: []byte("png-bytes")}}
	p.Capture(ctx, agent, store.DefaultScope, "t1")

	task, err := st.Get(ctx, store.DefaultScope, "t1")
	require.NoError(t, err)
	require.Len(t, task.Media, 1)
	entry := task.Media[0]
	assert.Equal(t, core.MediaTypeScreenshot, entry.Type)
	assert.Contains(t, entry.Filename, "status-step-initial-")
	assert.Equal(t, "/media/t1/"+entry.Filename, entry.URL)

	data, err := os.ReadFile(filepath.Join(p.TaskDir("t1"), entry.Filename))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestCaptureFinalNaming(t *testing.T) {
	ctx := context.Background()
	p, st := newTestPipeline(t)
	createTask(t, st, "t1", core.StatusCreated)
	require.NoError(t, st.MarkFinished(ctx, store.DefaultScope, "t1", core.StatusFinished))

	agent := &stubAgent{session: &stubSession{url: "https://example.com/done", screenshot: []byte("final")}}
	p.Capture(ctx, agent, store.DefaultScope, "t1")

	task, err := st.Get(ctx, store.DefaultScope, "t1")
	require.NoError(t, err)
	require.Len(t, task.Media, 1)
	assert.Contains(t, task.Media[0].Filename, "final-")
}

func TestCaptureSkipsBlankPage(t *testing.T) {
	ctx := context.Background()
	p, st := newTestPipeline(t)
	createTask(t, st, "t1", core.StatusRunning)

	agent := &stubAgent{session: &stubSession{url: "about:blank", screenshot: []byte("ignored")}}
	p.Capture(ctx, agent, store.DefaultScope, "t1")

	task, err := st.Get(ctx, store.DefaultScope, "t1")
	require.NoError(t, err)
	assert.Empty(t, task.Media)
}

func TestCaptureSkipsEmptyScreenshot(t *testing.T) {
	ctx := context.Background()
	p, st := newTestPipeline(t)
	createTask(t, st, "t1", core.StatusRunning)

	agent := &stubAgent{session: &stubSession{url: "https://example.com", screenshot: nil}}
	p.Capture(ctx, agent, store.DefaultScope, "t1")

	task, err := st.Get(ctx, store.DefaultScope, "t1")
	require.NoError(t, err)
	assert.Empty(t, task.Media)
}

func TestCaptureNilAgentIsNoOp(t *testing.T) {
	p, st := newTestPipeline(t)
	createTask(t, st, "t1", core.StatusRunning)

	p.Capture(context.Background(), nil, store.DefaultScope, "t1")

	task, err := st.Get(context.Background(), store.DefaultScope, "t1")
	require.NoError(t, err)
	assert.Empty(t, task.Media)
}

func TestListReconstructsFromFilesystem(t *testing.T) {
	ctx := context.Background()
	p, st := newTestPipeline(t)
	createTask(t, st, "t1", core.StatusFinished)

	dir, err := p.EnsureTaskDir("t1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "final-1.png"), []byte("img"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.webm"), []byte("vid"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("???"), 0o644))

	entries, err := p.List(ctx, store.DefaultScope, "t1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	types := map[string]string{}
	for _, entry := range entries {
		types[entry.Filename] = entry.Type
	}
	assert.Equal(t, core.MediaTypeScreenshot, types["final-1.png"])
	assert.Equal(t, core.MediaTypeRecording, types["run.webm"])
	assert.Equal(t, core.MediaTypeUnknown, types["notes.txt"])

	// Reconstruction is persisted onto the document.
	task, err := st.Get(ctx, store.DefaultScope, "t1")
	require.NoError(t, err)
	assert.Len(t, task.Media, 3)
}

func TestListPrefersDocumentEntries(t *testing.T) {
	ctx := context.Background()
	p, st := newTestPipeline(t)
	createTask(t, st, "t1", core.StatusFinished)
	require.NoError(t, st.AddMedia(ctx, store.DefaultScope, "t1", core.MediaEntry{
		Filename: "recorded.png", Type: core.MediaTypeScreenshot, URL: "/media/t1/recorded.png",
	}))

	entries, err := p.List(ctx, store.DefaultScope, "t1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "recorded.png", entries[0].Filename)
}

func TestTypeForExt(t *testing.T) {
	assert.Equal(t, core.MediaTypeScreenshot, TypeForExt("a.PNG"))
	assert.Equal(t, core.MediaTypeScreenshot, TypeForExt("a.jpeg"))
	assert.Equal(t, core.MediaTypeRecording, TypeForExt("a.mp4"))
	assert.Equal(t, core.MediaTypeUnknown, TypeForExt("a.gif"))
	assert.Equal(t, core.MediaTypeUnknown, TypeForExt("noext"))
}
