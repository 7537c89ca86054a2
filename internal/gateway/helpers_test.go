package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/sbus/internal/channel"
	"github.com/flemzord/sbus/internal/core"
	"github.com/flemzord/sbus/internal/reaper"
	"github.com/flemzord/sbus/internal/router"
	"github.com/flemzord/sbus/internal/store"
)

const testToken = "test-token"

const authedConfig = `
bind: "127.0.0.1:0"
auth:
  bearer_token: "test-token"
  basic_user: "admin"
  basic_pass: "hunter2"
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustYAMLNode(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if len(doc.Content) == 0 {
		t.Fatal("yaml: empty document")
	}
	return doc.Content[0]
}

// fixture is a provisioned gateway wired to an in-memory store with two
// group channels, "orders" and "invoices", and two routers: "by-kind"
// routing on the kind header and "by-type" routing objects to orders and
// strings to invoices.
type fixture struct {
	gw       *Gateway
	store    *store.SimpleMessageStore[string]
	channels *channel.Registry
	routers  *router.Registry
	registry *prometheus.Registry
	handler  http.Handler
}

type fixtureOption func(*core.AppContext)

func withoutStore() fixtureOption {
	return func(ctx *core.AppContext) {
		ctx.RegisterService(serviceStore, nil)
		ctx.RegisterService(serviceChannels, nil)
		ctx.RegisterService(serviceRouters, nil)
	}
}

func withScheduler(s *reaper.Scheduler) fixtureOption {
	return func(ctx *core.AppContext) {
		ctx.RegisterService(reaper.SchedulerService, s)
	}
}

func newFixture(t *testing.T, cfg string, opts ...fixtureOption) *fixture {
	t.Helper()

	st := store.New[string](store.Options{GroupCapacity: 2}, nil)
	channels := channel.NewRegistry()
	for _, name := range []string{"orders", "invoices"} {
		gc := channel.NewGroupChannel(name, st)
		gc.PollInterval = 10 * time.Millisecond
		if err := channels.Register(gc); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	routers := router.NewRegistry()
	byType, err := router.NewPayloadTypeRouter("by-type", router.NewTypeRegistry(), router.Config{
		Resolver: channels,
		Mappings: map[string]string{"object": "orders", "string": "invoices"},
	})
	if err != nil {
		t.Fatalf("NewPayloadTypeRouter: %v", err)
	}
	for _, r := range []*router.MappingRouter{
		byType,
		router.NewHeaderValueRouter("by-kind", "kind", router.Config{Resolver: channels}),
	} {
		if err := routers.Register(r); err != nil {
			t.Fatalf("Register router: %v", err)
		}
	}

	reg := prometheus.NewRegistry()
	appCtx := core.NewAppContext(testLogger(), t.TempDir())
	appCtx.RegisterService(serviceStore, st)
	appCtx.RegisterService(serviceChannels, channels)
	appCtx.RegisterService(serviceRouters, routers)
	appCtx.RegisterService(serviceMetrics, reg)
	appCtx.RegisterService(serviceModules, []string{"store.memory", "gateway.http"})
	for _, opt := range opts {
		opt(appCtx)
	}

	g := &Gateway{}
	if err := g.Configure(mustYAMLNode(t, cfg)); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := g.Provision(appCtx.ForModule("gateway.http")); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := g.resolveServices(); err != nil {
		t.Fatalf("resolveServices: %v", err)
	}
	g.startedAt = time.Now()

	return &fixture{
		gw:       g,
		store:    g.store,
		channels: g.channels,
		routers:  g.routers,
		registry: reg,
		handler:  g.buildRouter(),
	}
}

// do sends an authenticated request. body is JSON-encoded unless it is a
// []byte.
func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		rd = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+testToken)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rr.Code, want, rr.Body.String())
	}
}
