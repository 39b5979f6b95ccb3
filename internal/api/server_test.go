package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"automata/internal/clock"
	"automata/internal/events"
	"automata/internal/fetch"
	"automata/internal/loader"
	"automata/internal/registry"
	"automata/internal/store"
	"automata/pkg/automaton"
	"automata/pkg/testutil"
)

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, url string) (string, error) {
	src, ok := m[url]
	if !ok {
		return "", &fetch.FetchError{URL: url, StatusCode: http.StatusNotFound, Err: errors.New("not found")}
	}
	return src, nil
}

type fixture struct {
	srv      *httptest.Server
	registry *registry.Registry
	exec     *testutil.FakeExecutor
	settings *store.Settings
	hub      *Hub
}

func newFixture(t *testing.T, sources mapFetcher) *fixture {
	t.Helper()
	logger := zap.NewNop()
	f := &fixture{
		exec:     testutil.NewFakeExecutor(),
		settings: store.NewSettings(store.NewMemoryStore()),
		hub:      NewHub(logger),
	}
	bus := events.NewBus(logger, nil)
	bus.Subscribe(f.hub.Publish)

	f.registry = registry.New(registry.Config{
		Executor: f.exec,
		Events:   bus,
		Clock:    clock.NewMockClock(time.Now()),
		Logger:   logger,
	})
	ld := loader.New(loader.Config{
		Registry: f.registry,
		Fetcher:  sources,
		Settings: f.settings,
		Events:   bus,
		Logger:   logger,
	})
	s := NewServer(f.registry, ld, f.settings, f.hub, logger, 0)
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		f.hub.Close()
		f.srv.Close()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func pkg(defs ...automaton.Definition) string {
	return testutil.RenderPackage(automaton.Package{Name: "api", Automata: defs})
}

func controlling(name string, priority int, controls ...string) automaton.Definition {
	d := testutil.Def(name)
	d.Priority = priority
	d.Controls = controls
	return d
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestSitemap(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), "/api/automata/{name}/restart")

	resp = f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLoadAndInspect(t *testing.T) {
	f := newFixture(t, mapFetcher{
		"http://pkg/a": pkg(controlling("A", 10, "screen"), controlling("B", 20, "screen")),
	})

	resp := f.do(t, http.MethodPost, "/api/packages/load", `{"url": "http://pkg/a"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, decode[LoadResponse](t, resp).AutomataLoaded)

	resp = f.do(t, http.MethodGet, "/api/automata", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decode[[]automaton.Snapshot](t, resp)
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].Name)
	assert.Equal(t, automaton.StatusRunning, all[0].Status)
	assert.Equal(t, "http://pkg/a", all[0].SourceURL)

	resp = f.do(t, http.MethodGet, "/api/automata/B", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 20, decode[automaton.Snapshot](t, resp).Priority)

	resp = f.do(t, http.MethodGet, "/api/automata/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/conflicts", "")
	conflicts := decode[[]registry.Conflict](t, resp)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "screen", conflicts[0].Control)
	assert.Equal(t, []string{"A", "B"}, conflicts[0].Automata)

	resp = f.do(t, http.MethodGet, "/api/packages", "")
	history := decode[[]loader.PackageLoadRecord](t, resp)
	require.Len(t, history, 1)
	assert.Equal(t, 2, history[0].AutomataLoaded)
}

func TestLoadAllFromSettings(t *testing.T) {
	f := newFixture(t, mapFetcher{"http://pkg/a": pkg(testutil.Def("A"))})

	resp := f.do(t, http.MethodPut, "/api/settings/urls", `["http://pkg/a", "http://pkg/missing"]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/packages/load", "")
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	body := decode[LoadResponse](t, resp)
	assert.Equal(t, 1, body.AutomataLoaded)
	require.Len(t, body.Errors, 1)
	assert.Contains(t, body.Errors[0], "http://pkg/missing")
}

func TestLoadFailure(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodPost, "/api/packages/load", `{"url": "http://pkg/none"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/packages/load", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOperations(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C"} {
		require.NoError(t, f.registry.Load(ctx, testutil.Def(name), "local"))
	}

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"kill", "/api/automata/A/kill", http.StatusOK},
		{"kill again", "/api/automata/A/kill", http.StatusNotFound},
		{"shutdown", "/api/automata/B/shutdown", http.StatusOK},
		{"restart", "/api/automata/C/restart", http.StatusOK},
		{"restart unknown", "/api/automata/Z/restart", http.StatusNotFound},
		{"unknown op", "/api/automata/C/explode", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, tt.path, "")
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	assert.Equal(t, []string{"C"}, f.registry.List())
	assert.Equal(t, []string{"B", "C"}, f.exec.Teardowns())
}

func TestOperationConflict(t *testing.T) {
	f := newFixture(t, nil)
	f.exec.On("A", testutil.Behavior{TeardownErr: testutil.ErrScripted})
	require.NoError(t, f.registry.Load(context.Background(), testutil.Def("A"), "local"))

	resp := f.do(t, http.MethodPost, "/api/automata/A/shutdown", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, decode[errorResponse](t, resp).Error, "scripted failure")
	assert.Equal(t, []string{"A"}, f.registry.List())
}

func TestSettings(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/api/settings/blacklist", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{}, decode[[]string](t, resp))

	resp = f.do(t, http.MethodPut, "/api/settings/blacklist", `["B", "A"]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/settings/blacklist", "")
	assert.Equal(t, []string{"B", "A"}, decode[[]string](t, resp))

	bl, err := f.settings.Blacklist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, bl)

	resp = f.do(t, http.MethodPut, "/api/settings/urls", `{"url": "x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
