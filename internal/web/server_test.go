package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sweeney/gpio-node/internal/cloud"
	"github.com/sweeney/gpio-node/internal/logic"
	"github.com/sweeney/gpio-node/internal/status"
)

// fakeController keeps params in memory. Sensor params are read-only.
type fakeController struct {
	mu     sync.Mutex
	params []status.ParamState
	writes []cloud.Write
}

func newFakeController() *fakeController {
	return &fakeController{params: []status.ParamState{
		{Device: "Relay", Kind: "relay", Param: "Relay1"},
		{Device: "Relay", Kind: "relay", Param: "Relay2"},
		{Device: "Sensor", Kind: "sensor", Param: "Motion State", ReadOnly: true},
	}}
}

func (f *fakeController) Write(_ context.Context, w cloud.Write) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.params {
		p := &f.params[i]
		if p.Device == w.Device && p.Param == w.Param {
			if p.ReadOnly {
				return fmt.Errorf("param %q: %w", w.Param, logic.ErrReadOnly)
			}
			p.Value = w.Value
			f.writes = append(f.writes, w)
			return nil
		}
	}
	return fmt.Errorf("%s/%s: %w", w.Device, w.Param, logic.ErrNotFound)
}

func (f *fakeController) Params() []status.ParamState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]status.ParamState(nil), f.params...)
}

func (f *fakeController) Param(device, param string) (status.ParamState, error) {
	for _, p := range f.Params() {
		if p.Device == device && p.Param == param {
			return p, nil
		}
	}
	return status.ParamState{}, fmt.Errorf("%s/%s: %w", device, param, logic.ErrNotFound)
}

func newTestServer(t *testing.T, passwordHash string) (*httptest.Server, *status.Tracker, *fakeController) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		NodeID:      "test-node",
		PollMs:      20,
		DebounceMs:  50,
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":80",
		GPIOBackend: "fake",
	}
	tr := status.NewTracker(start, cfg)
	ctrl := newFakeController()
	tr.SetParams(ctrl.Params())

	logger, _ := test.NewNullLogger()
	srv := New(Options{Addr: ":0", PasswordHash: passwordHash, Log: logger}, tr, ctrl)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr, ctrl
}

func put(t *testing.T, url, body string, auth func(*http.Request)) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if auth != nil {
		auth(req)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t, "")
	tr.SetParam("Relay", "Relay1", true)
	tr.IncWrites()
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var sj status.StatusJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sj))

	assert.Equal(t, "test-node", sj.Status.NodeID)
	assert.True(t, sj.Status.MQTT.Connected)
	assert.Equal(t, "tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	assert.Equal(t, 1, sj.Status.Counts.Writes)
	require.Len(t, sj.Status.Devices, 2)
	assert.True(t, sj.Status.Devices[0].Params["Relay1"])
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr, _ := newTestServer(t, "")
	tr.SetNetwork(&status.NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"})

	resp, err := http.Get(ts.URL + "/index.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	var sj status.StatusJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sj))
	require.NotNil(t, sj.Status.Network)
	assert.Equal(t, "192.168.1.42", sj.Status.Network.IP)
}

func TestHTMLEndpoints(t *testing.T) {
	ts, tr, _ := newTestServer(t, "")
	tr.SetParam("Relay", "Relay2", true)
	tr.SetButton("Sensor", false)

	for _, path := range []string{"/", "/index.html"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"), path)
		body := string(data)
		assert.Contains(t, body, "test-node")
		assert.Contains(t, body, "Relay2")
		assert.Contains(t, body, "button unavailable")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _, _ := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetParams(t *testing.T) {
	ts, _, ctrl := newTestServer(t, "")
	require.NoError(t, ctrl.Write(context.Background(), cloud.Write{Device: "Relay", Param: "Relay2", Value: true}))

	resp, err := http.Get(ts.URL + "/params")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got cloud.Params
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, cloud.Params{
		"Relay":  {"Relay1": false, "Relay2": true},
		"Sensor": {"Motion State": false},
	}, got)
}

func TestGetSingleParam(t *testing.T) {
	ts, _, _ := newTestServer(t, "")

	resp, err := http.Get(ts.URL + "/params/Sensor/Motion%20State")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var v ValueJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	require.NotNil(t, v.Value)
	assert.False(t, *v.Value)

	resp2, err := http.Get(ts.URL + "/params/Relay/Relay9")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestPutParamOpen(t *testing.T) {
	ts, _, ctrl := newTestServer(t, "")

	resp := put(t, ts.URL+"/params/Relay/Relay1", `{"value":true}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, ctrl.writes, 1)
	assert.Equal(t, cloud.Write{Device: "Relay", Param: "Relay1", Value: true, Source: cloud.SourceLocal}, ctrl.writes[0])
}

func TestPutParamErrors(t *testing.T) {
	ts, _, ctrl := newTestServer(t, "")

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown param", "/params/Relay/Relay3", `{"value":true}`, http.StatusNotFound},
		{"unknown device", "/params/Garage/Power", `{"value":true}`, http.StatusNotFound},
		{"read-only", "/params/Sensor/Motion%20State", `{"value":true}`, http.StatusForbidden},
		{"bad json", "/params/Relay/Relay1", `{"value":`, http.StatusBadRequest},
		{"missing value", "/params/Relay/Relay1", `{}`, http.StatusBadRequest},
		{"non-bool value", "/params/Relay/Relay1", `{"value":"on"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := put(t, ts.URL+tt.path, tt.body, nil)
			assert.Equal(t, tt.want, resp.StatusCode)

			var e ErrorJSON
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
			assert.NotEmpty(t, e.Error)
		})
	}
	assert.Empty(t, ctrl.writes)
}

func TestPutParamRequiresAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	ts, _, ctrl := newTestServer(t, string(hash))

	resp := put(t, ts.URL+"/params/Relay/Relay1", `{"value":true}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	resp = put(t, ts.URL+"/params/Relay/Relay1", `{"value":true}`, func(r *http.Request) {
		r.SetBasicAuth("admin", "wrong")
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, ctrl.writes)

	resp = put(t, ts.URL+"/params/Relay/Relay1", `{"value":true}`, func(r *http.Request) {
		r.SetBasicAuth("admin", "s3cret")
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, ctrl.writes, 1)
}

func TestReadsDoNotRequireAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	ts, _, _ := newTestServer(t, string(hash))

	resp, err := http.Get(ts.URL + "/params")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _, _ := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/params/Relay/Relay1", "application/json", strings.NewReader(`{"value":true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
