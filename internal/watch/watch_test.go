package watch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildforge/modguard/internal/engine"
)

func writePom(t *testing.T, dir, identity string, children ...string) {
	t.Helper()
	content := "<project>\n  <artifactId>" + identity + "</artifactId>\n"
	if len(children) > 0 {
		content += "  <modules>\n"
		for _, c := range children {
			content += "    <module>" + c + "</module>\n"
		}
		content += "  </modules>\n"
	}
	content += "</project>\n"
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pom.xml"), []byte(content), 0600))
}

func newService(t *testing.T, root string) *Service {
	t.Helper()
	eng, err := engine.New(engine.Config{Root: root}, nil, nil)
	require.NoError(t, err)
	return New(Config{}, eng, nil, nil)
}

func get(t *testing.T, s *Service, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestService_Endpoints(t *testing.T) {
	root := t.TempDir()
	writePom(t, root, "acme", "payments")
	payments := filepath.Join(root, "payments")
	writePom(t, payments, "payments", "payments-api")
	writePom(t, filepath.Join(payments, "payments-api"), "payments-api")

	s := newService(t, root)

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()
	require.NoError(t, s.refresh(context.Background(), watcher))

	rec := get(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.False(t, health.ScannedAt.IsZero())

	rec = get(t, s, "/violations")
	require.Equal(t, http.StatusOK, rec.Code)
	var st state
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 3, st.Modules)
	// "payments" is an unsuffixed parent aggregator without dependency
	// management.
	assert.NotEmpty(t, st.Violations)

	rec = get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "modguard_scans_total")
}

func TestService_RefreshWatchesModuleDirs(t *testing.T) {
	root := t.TempDir()
	writePom(t, root, "acme", "billing")
	writePom(t, filepath.Join(root, "billing"), "billing")

	s := newService(t, root)
	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, s.refresh(context.Background(), watcher))
	assert.ElementsMatch(t, []string{root, filepath.Join(root, "billing")}, watcher.WatchList())

	// A new module dir joins the watch set on the next refresh.
	writePom(t, filepath.Join(root, "orders"), "orders")
	require.NoError(t, s.refresh(context.Background(), watcher))
	assert.Contains(t, watcher.WatchList(), filepath.Join(root, "orders"))
}

func TestService_RunDetectsChanges(t *testing.T) {
	root := t.TempDir()
	writePom(t, root, "acme", "billing")
	writePom(t, filepath.Join(root, "billing"), "billing")

	eng, err := engine.New(engine.Config{Root: root}, nil, nil)
	require.NoError(t, err)
	s := New(Config{Addr: "localhost:0", Debounce: 50 * time.Millisecond}, eng, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Wait for the initial detection.
	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.state.Modules == 2
	}, 5*time.Second, 10*time.Millisecond)

	// Introduce a violation: a declared child without a descriptor.
	writePom(t, root, "acme", "billing", "ghost")

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.state.Violations) > 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestService_Relevant(t *testing.T) {
	s := New(Config{}, nil, nil, nil)

	assert.True(t, s.relevant(fsnotify.Event{Name: "/x/pom.xml", Op: fsnotify.Write}))
	assert.True(t, s.relevant(fsnotify.Event{Name: "/x/newdir", Op: fsnotify.Create}))
	assert.False(t, s.relevant(fsnotify.Event{Name: "/x/notes.txt", Op: fsnotify.Write}))
}
