package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/syndesi/internal/device"
	"github.com/danmuck/syndesi/internal/interp"
	"github.com/danmuck/syndesi/internal/protocol/address"
	"github.com/danmuck/syndesi/internal/protocol/command"
	"github.com/danmuck/syndesi/internal/protocol/frame"
	"github.com/danmuck/syndesi/internal/router"
	"github.com/danmuck/syndesi/internal/testutil/testlog"
	"github.com/danmuck/syndesi/internal/transport"
	"github.com/gin-gonic/gin"
)

type sinkController struct{}

func (sinkController) Kind() transport.Kind { return transport.KindIP }
func (sinkController) Read([]byte) (int, error) { return 0, nil }
func (sinkController) Write(_ address.Address, p []byte) (int, error) { return len(p), nil }
func (sinkController) Close() error { return nil }

type fixture struct {
	srv    *Server
	router *router.Router
	device *device.Device
}

func newFixture(t *testing.T, withController bool) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := command.NewRegistry()
	dev := device.New(device.IdentityFor("admin-test", "bench", ""), device.DefaultOptions())
	if err := dev.Register(reg); err != nil {
		t.Fatalf("register device: %v", err)
	}
	chain := interp.NewChain(&interp.Error{}, interp.NewCommand(reg), &interp.Raw{OnRequest: interp.Echo})
	r := router.New(chain, router.Options{NodeID: "admin-test"})
	if withController {
		r.RegisterController(sinkController{})
	}
	srv := New(Options{Router: r, Commands: reg, Device: dev})
	return fixture{srv: srv, router: r, device: dev}
}

func (f fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	f.srv.Handler().ServeHTTP(rec, req)
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, rec.Body.String())
		}
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, false)
	var body map[string]any
	if code := f.get(t, "/health", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" || body["node"] != "admin-test" {
		t.Fatalf("body = %v", body)
	}
}

func TestReadyNeedsController(t *testing.T) {
	testlog.Start(t)
	var body struct {
		Ready       bool     `json:"ready"`
		Controllers []string `json:"controllers"`
	}
	if code := newFixture(t, false).get(t, "/ready", &body); code != http.StatusServiceUnavailable || body.Ready {
		t.Fatalf("without controller: %d %+v", code, body)
	}
	if code := newFixture(t, true).get(t, "/ready", &body); code != http.StatusOK || !body.Ready {
		t.Fatalf("with controller: %d %+v", code, body)
	}
	if len(body.Controllers) != 1 || body.Controllers[0] != transport.KindIP.String() {
		t.Fatalf("controllers = %v", body.Controllers)
	}
}

func TestPendingListsOutstandingRequests(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, true)
	dst, err := address.Parse("10.0.0.7", address.DefaultSettings())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := f.router.RequestPayload(frame.Bytes("hi"), dst); err != nil {
		t.Fatalf("request: %v", err)
	}

	var body struct {
		Pending []PendingInfo `json:"pending"`
	}
	if code := f.get(t, "/pending", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(body.Pending) != 1 || body.Pending[0].Addr != dst.String() {
		t.Fatalf("pending = %+v", body.Pending)
	}
}

func TestInterpretersAndCommands(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, false)

	var chain struct {
		Interpreters []interp.Info `json:"interpreters"`
	}
	f.get(t, "/interpreters", &chain)
	want := []string{"ERROR", "COMMAND", "RAW"}
	if len(chain.Interpreters) != len(want) {
		t.Fatalf("interpreters = %+v", chain.Interpreters)
	}
	for i, w := range want {
		if chain.Interpreters[i].Type != w || chain.Interpreters[i].Position != i {
			t.Fatalf("interpreter %d = %+v, want %s", i, chain.Interpreters[i], w)
		}
	}

	var cmds struct {
		Commands []command.Info `json:"commands"`
	}
	f.get(t, "/commands", &cmds)
	if len(cmds.Commands) != 7 || cmds.Commands[0].Name != "DEVICE_DISCOVER" || !cmds.Commands[0].Requests {
		t.Fatalf("commands = %+v", cmds.Commands)
	}
}

func TestRegisters(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, false)
	f.device.Registers.Write(0x20, 513)

	var reg device.Register
	if code := f.get(t, "/registers/0x20", &reg); code != http.StatusOK || reg.Value != 513 {
		t.Fatalf("register: %d %+v", code, reg)
	}
	var all struct {
		Registers []device.Register `json:"registers"`
	}
	f.get(t, "/registers", &all)
	if len(all.Registers) != 1 || all.Registers[0].Address != 0x20 {
		t.Fatalf("registers = %+v", all.Registers)
	}
	if code := f.get(t, "/registers/70000", nil); code != http.StatusBadRequest {
		t.Fatalf("out of range status = %d", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t, false)
	f.get(t, "/health", nil)

	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "syndesi_http_requests_total") {
		t.Fatalf("metrics output missing http counter")
	}
}
