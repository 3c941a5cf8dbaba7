package peers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vramd/pkg/types"
)

// fakePeer answers envelope requests by action.
type fakePeer struct {
	t       *testing.T
	handler map[string]func(Envelope) Reply
	calls   []Envelope
}

func (p *fakePeer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		p.t.Errorf("bad envelope: %v", err)
		return
	}
	p.calls = append(p.calls, env)
	h, ok := p.handler[env.Action]
	rep := Reply{RequestID: env.RequestID, Status: "error", Error: "unknown action"}
	if ok {
		rep = h(env)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rep)
}

func newFakePeer(t *testing.T) (*fakePeer, *httptest.Server) {
	t.Helper()
	p := &fakePeer{t: t, handler: map[string]func(Envelope) Reply{}}
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	return p, srv
}

func success(payload any) Reply {
	b, _ := json.Marshal(payload)
	return Reply{Status: "success", Payload: b}
}

func TestCallSuccessDecodesPayload(t *testing.T) {
	peer, srv := newFakePeer(t)
	peer.handler["echo"] = func(env Envelope) Reply {
		return success(map[string]string{"value": "hello"})
	}
	c := NewClient("test", srv.URL, time.Second, zerolog.Nop())

	var out struct {
		Value string `json:"value"`
	}
	if err := c.Call(context.Background(), "echo", nil, &out); err != nil {
		t.Fatalf("call: %v", err)
	}
	if out.Value != "hello" {
		t.Fatalf("payload not decoded: %+v", out)
	}
}

func TestCallStampsRequestID(t *testing.T) {
	peer, srv := newFakePeer(t)
	peer.handler["noop"] = func(Envelope) Reply { return Reply{Status: "success"} }
	c := NewClient("test", srv.URL, time.Second, zerolog.Nop())

	if err := c.Call(context.Background(), "noop", nil, nil); err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(peer.calls) != 1 || peer.calls[0].RequestID == "" {
		t.Fatalf("request id missing: %+v", peer.calls)
	}
}

func TestCallRemoteError(t *testing.T) {
	peer, srv := newFakePeer(t)
	peer.handler["fail"] = func(Envelope) Reply {
		return Reply{Status: "error", Error: "not allowed"}
	}
	c := NewClient("test", srv.URL, time.Second, zerolog.Nop())

	err := c.Call(context.Background(), "fail", nil, nil)
	if err == nil || !IsRemoteError(err) {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestCallTransportErrorResetsClient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on
	c := NewClient("test", srv.URL, 200*time.Millisecond, zerolog.Nop())

	err := c.Call(context.Background(), "anything", nil, nil)
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if IsRemoteError(err) {
		t.Fatalf("transport failure must not be a remote error")
	}
}

func TestCallHonorsContextCancellation(t *testing.T) {
	peer, srv := newFakePeer(t)
	peer.handler["slow"] = func(Envelope) Reply {
		time.Sleep(500 * time.Millisecond)
		return Reply{Status: "success"}
	}
	c := NewClient("test", srv.URL, 5*time.Second, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Call(ctx, "slow", nil, nil); err == nil {
		t.Fatalf("expected context deadline error")
	}
}

func TestModelManagerLoadedModels(t *testing.T) {
	peer, srv := newFakePeer(t)
	peer.handler["get_loaded_models_status"] = func(Envelope) Reply {
		return success(map[string]any{"models": []types.ModelEntry{
			{ModelID: "m1", Device: types.DeviceMainPC, VRAMUsageMB: 1200},
		}})
	}
	mm := NewModelManager(srv.URL, time.Second, zerolog.Nop())

	models, err := mm.LoadedModels(context.Background())
	if err != nil {
		t.Fatalf("loaded models: %v", err)
	}
	if len(models) != 1 || models[0].ModelID != "m1" || models[0].VRAMUsageMB != 1200 {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestModelManagerLoadModelParams(t *testing.T) {
	peer, srv := newFakePeer(t)
	peer.handler["load_model"] = func(Envelope) Reply { return Reply{Status: "success"} }
	mm := NewModelManager(srv.URL, time.Second, zerolog.Nop())

	if err := mm.LoadModel(context.Background(), "m1", types.DevicePC2, "int8"); err != nil {
		t.Fatalf("load: %v", err)
	}
	params := peer.calls[0].Params
	if params["model_id"] != "m1" || params["device"] != "pc2" || params["quantization"] != "int8" {
		t.Fatalf("unexpected params: %+v", params)
	}
}

func TestDigitalTwinSimulateLoad(t *testing.T) {
	peer, srv := newFakePeer(t)
	peer.handler["simulate_load"] = func(Envelope) Reply {
		return success(map[string]string{"recommendation": "deny"})
	}
	tw := NewDigitalTwin(srv.URL, time.Second, zerolog.Nop())

	rec, err := tw.SimulateLoad(context.Background(), types.DeviceMainPC, 4096)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if rec != "deny" {
		t.Fatalf("unexpected recommendation: %q", rec)
	}
}

func TestDigitalTwinVRAMMetrics(t *testing.T) {
	peer, srv := newFakePeer(t)
	peer.handler["get_metrics"] = func(Envelope) Reply {
		return success(map[string]any{"vram_usage": map[string]types.DeviceBudget{
			"mainpc": {TotalMB: 10000, UsedMB: 4000, FreeMB: 6000},
			"pc2":    {TotalMB: 8000, UsedMB: 1000, FreeMB: 7000},
		}})
	}
	tw := NewDigitalTwin(srv.URL, time.Second, zerolog.Nop())

	metrics, err := tw.VRAMMetrics(context.Background())
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if metrics[types.DeviceMainPC].TotalMB != 10000 || metrics[types.DevicePC2].FreeMB != 7000 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestCoordinatorQueueTaskTypes(t *testing.T) {
	peer, srv := newFakePeer(t)
	peer.handler["get_queue_status"] = func(Envelope) Reply {
		return success(map[string]any{"tasks": []map[string]string{
			{"task_type": "asr"},
			{"task_type": "translation"},
		}})
	}
	co := NewCoordinator(srv.URL, time.Second, zerolog.Nop())

	tasks, err := co.QueueTaskTypes(context.Background())
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(tasks) != 2 || tasks[0] != "asr" || tasks[1] != "translation" {
		t.Fatalf("unexpected tasks: %v", tasks)
	}
}
