package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fastbus-service/internal/config"
	"fastbus-service/internal/discovery"
	"fastbus-service/internal/fast"
	"fastbus-service/internal/protocol"
	"fastbus-service/internal/utils"
	"fastbus-service/internal/variables"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testPlatform builds a platform whose transports are never opened
func testPlatform(t *testing.T) *fast.Platform {
	t.Helper()
	logger := zaptest.NewLogger(t)

	factory := func(port string, baud int) (protocol.Transport, error) {
		return protocol.NewTCPConnection(&protocol.TCPConfig{Host: "127.0.0.1", Port: 1}, logger), nil
	}

	p, err := fast.NewPlatform(&fast.Machine{Logger: logger}, config.FastConfig{
		Net: config.PortConfig{Port: "/dev/ttyACM0", Baud: 921600},
		Exp: config.ExpConfig{PortConfig: config.PortConfig{Port: "/dev/ttyACM1", Baud: 921600}},
	}, factory)
	require.NoError(t, err)

	_, err = p.Exp().RegisterBoard(config.ExpBoardConfig{
		Name:      "playfield",
		Model:     "FP-EXP-0071",
		ID:        "0",
		Breakouts: []config.BreakoutConfig{{Port: "1", Model: "FP-BRK-0116"}},
	})
	require.NoError(t, err)
	_, err = p.Exp().RegisterBoard(config.ExpBoardConfig{Name: "cabinet", Model: "FP-EXP-0201", ID: "0"})
	require.NoError(t, err)

	return p
}

type apiResult struct {
	utils.APIResponse
	Data json.RawMessage `json:"data"`
}

func doRequest(t *testing.T, r http.Handler, method, path string) (int, apiResult) {
	t.Helper()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var res apiResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	return rec.Code, res
}

func fastRouter(t *testing.T, p *fast.Platform, store *variables.Store) *gin.Engine {
	r := gin.New()
	NewFastHandler(p, store, zaptest.NewLogger(t)).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestListProcessors(t *testing.T) {
	r := fastRouter(t, testPlatform(t), variables.NewStore(zaptest.NewLogger(t)))

	code, res := doRequest(t, r, http.MethodGet, "/api/v1/processors")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, res.Count)
	assert.Equal(t, 2, *res.Count)

	var procs []ProcessorStatus
	require.NoError(t, json.Unmarshal(res.Data, &procs))
	assert.Equal(t, "NET", procs[0].Processor)
	assert.Equal(t, "EXP", procs[1].Processor)
	assert.Equal(t, "/dev/ttyACM1", procs[1].Port)
	assert.False(t, procs[1].Connected)
	require.NotNil(t, procs[1].Transport)
	assert.False(t, procs[1].Transport.IsConnected)
}

func TestBoards(t *testing.T) {
	r := fastRouter(t, testPlatform(t), variables.NewStore(zaptest.NewLogger(t)))

	code, res := doRequest(t, r, http.MethodGet, "/api/v1/boards")
	require.Equal(t, http.StatusOK, code)

	var boards []fast.BoardInfo
	require.NoError(t, json.Unmarshal(res.Data, &boards))
	require.Len(t, boards, 2)
	assert.Equal(t, "playfield", boards[0].Name)
	assert.Equal(t, "48", boards[0].Address)
	assert.Len(t, boards[0].Breakouts, 2)
	assert.Equal(t, "88", boards[1].Address)
	assert.False(t, boards[1].Verified)

	code, res = doRequest(t, r, http.MethodGet, "/api/v1/boards/cabinet")
	require.Equal(t, http.StatusOK, code)
	var board fast.BoardInfo
	require.NoError(t, json.Unmarshal(res.Data, &board))
	assert.Equal(t, "FP-EXP-0201", board.Model)

	code, _ = doRequest(t, r, http.MethodGet, "/api/v1/boards/48")
	assert.Equal(t, http.StatusOK, code)

	code, res = doRequest(t, r, http.MethodGet, "/api/v1/boards/B4")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", res.Error.Code)
}

func TestSoftResetBoard(t *testing.T) {
	r := fastRouter(t, testPlatform(t), variables.NewStore(zaptest.NewLogger(t)))

	code, _ := doRequest(t, r, http.MethodPost, "/api/v1/boards/zz/soft-reset")
	assert.Equal(t, http.StatusNotFound, code)

	code, res := doRequest(t, r, http.MethodPost, "/api/v1/boards/48/soft-reset")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, res.Success)
}

func TestResolveAddressEndpoint(t *testing.T) {
	r := fastRouter(t, testPlatform(t), variables.NewStore(zaptest.NewLogger(t)))

	code, res := doRequest(t, r, http.MethodGet, "/api/v1/addresses/exp-0071-i0-b1-p1-1")
	require.Equal(t, http.StatusOK, code)
	var resolved AddressResolution
	require.NoError(t, json.Unmarshal(res.Data, &resolved))
	assert.Equal(t, AddressResolution{Number: "exp-0071-i0-b1-p1-1", Address: "48", Breakout: 1, Device: "p1-1"}, resolved)

	code, _ = doRequest(t, r, http.MethodGet, "/api/v1/addresses/exp-0071-i9-p1")
	assert.Equal(t, http.StatusNotFound, code)

	code, res = doRequest(t, r, http.MethodGet, "/api/v1/addresses/bogus")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", res.Error.Code)
}

func TestVariablesEndpoints(t *testing.T) {
	store := variables.NewStore(zaptest.NewLogger(t))
	store.SetMachineVar("fast_exp_firmware", "0.8")
	r := fastRouter(t, testPlatform(t), store)

	code, res := doRequest(t, r, http.MethodGet, "/api/v1/variables")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, *res.Count)

	code, res = doRequest(t, r, http.MethodGet, "/api/v1/variables/fast_exp_firmware")
	require.Equal(t, http.StatusOK, code)
	var v map[string]string
	require.NoError(t, json.Unmarshal(res.Data, &v))
	assert.Equal(t, "0.8", v["value"])

	code, _ = doRequest(t, r, http.MethodGet, "/api/v1/variables/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHealthEndpoints(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Name: "fastbus-service", Version: "1.0.0"}}
	r := gin.New()
	NewHealthHandler(testPlatform(t), cfg, zaptest.NewLogger(t)).RegisterRoutes(r.Group(""))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "fastbus-service", health.Service)
	require.Contains(t, health.Checks, "EXP")
	assert.Equal(t, "Not connected to /dev/ttyACM1", health.Checks["EXP"].Message)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type staticScanner []*discovery.DiscoveredPort

func (s staticScanner) Scan(context.Context) ([]*discovery.DiscoveredPort, error) {
	return s, nil
}

func (staticScanner) GetScannerType() string { return "static" }

func TestListPorts(t *testing.T) {
	logger := zaptest.NewLogger(t)
	manager := discovery.NewScannerManager(map[string]string{"/dev/ttyACM1": "EXP"}, logger)
	manager.RegisterScanner(staticScanner{{Name: "/dev/ttyACM1", Scanner: "static"}})

	r := gin.New()
	NewDiscoveryHandler(manager, logger).RegisterRoutes(r.Group("/api/v1"))

	code, res := doRequest(t, r, http.MethodGet, "/api/v1/ports")
	require.Equal(t, http.StatusOK, code)

	var ports []discovery.DiscoveredPort
	require.NoError(t, json.Unmarshal(res.Data, &ports))
	require.Len(t, ports, 1)
	assert.Equal(t, "EXP", ports[0].Processor)

	empty := discovery.NewScannerManager(nil, logger)
	r = gin.New()
	NewDiscoveryHandler(empty, logger).RegisterRoutes(r.Group("/api/v1"))
	code, res = doRequest(t, r, http.MethodGet, "/api/v1/ports")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, *res.Count)
}

func TestEventBusDelivers(t *testing.T) {
	bus := NewEventBus(zaptest.NewLogger(t))
	traffic := bus.Subscribe(EventTypeTraffic)
	vars := bus.Subscribe(EventTypeVariable)
	go bus.Start()

	bus.ObserveTraffic(fast.DirectionTx, "EXP", "ID@48:")
	bus.PublishVariable("fast_exp_firmware", "0.8")

	select {
	case ev := <-traffic:
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, "EXP", ev.Source)
		assert.Equal(t, "tx", ev.Data["direction"])
		assert.Equal(t, "ID@48:", ev.Data["message"])
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no traffic event")
	}

	select {
	case ev := <-vars:
		assert.Equal(t, "fast_exp_firmware", ev.Data["name"])
	case <-time.After(time.Second):
		t.Fatal("no variable event")
	}

	bus.Stop()
	bus.Stop()
	bus.PublishVariable("after", "stop")

	assert.Eventually(t, func() bool {
		_, open := <-traffic
		return !open
	}, time.Second, 10*time.Millisecond)
}
