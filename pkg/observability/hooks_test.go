package observability

import (
	"context"
	"testing"
	"time"
)

type recordingPipelineHooks struct {
	NoopPipelineHooks
	solves []string
}

func (r *recordingPipelineHooks) OnSolveStart(_ context.Context, solver string, _, _ int) {
	r.solves = append(r.solves, solver)
}

type recordingCacheHooks struct {
	hits, misses int
}

func (r *recordingCacheHooks) OnCacheHit(context.Context, string)      { r.hits++ }
func (r *recordingCacheHooks) OnCacheMiss(context.Context, string)     { r.misses++ }
func (r *recordingCacheHooks) OnCacheSet(context.Context, string, int) {}

type recordingHTTPHooks struct {
	NoopHTTPHooks
}

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	p := NoopPipelineHooks{}
	p.OnLabelComplete(ctx, 3, 12, time.Millisecond, nil)
	p.OnWeightsComplete(ctx, "overlap", 20, time.Millisecond, nil)
	p.OnSolveStart(ctx, "mip", 12, 20)
	p.OnSolveComplete(ctx, "mip", 9.8, true, time.Second, nil)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "solve")
	c.OnCacheMiss(ctx, "weights")
	c.OnCacheSet(ctx, "solve", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "POST", "/v1/track")
	h.OnResponse(ctx, "POST", "/v1/track", 200, time.Second)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Pipeline() should default to NoopPipelineHooks")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should default to NoopCacheHooks")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should default to NoopHTTPHooks")
	}

	ph := &recordingPipelineHooks{}
	SetPipelineHooks(ph)
	Pipeline().OnSolveStart(context.Background(), "graph", 1, 0)
	if len(ph.solves) != 1 || ph.solves[0] != "graph" {
		t.Errorf("recorded solves = %v", ph.solves)
	}

	ch := &recordingCacheHooks{}
	SetCacheHooks(ch)
	Cache().OnCacheHit(context.Background(), "solve")
	Cache().OnCacheMiss(context.Background(), "solve")
	if ch.hits != 1 || ch.misses != 1 {
		t.Errorf("hits, misses = %d, %d; want 1, 1", ch.hits, ch.misses)
	}

	hh := &recordingHTTPHooks{}
	SetHTTPHooks(hh)
	if HTTP() != hh {
		t.Error("SetHTTPHooks should register custom hooks")
	}

	Reset()
	if _, ok := Pipeline().(NoopPipelineHooks); !ok {
		t.Error("Reset() should restore NoopPipelineHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	custom := &recordingPipelineHooks{}
	SetPipelineHooks(custom)
	SetPipelineHooks(nil)
	if Pipeline() != custom {
		t.Error("SetPipelineHooks(nil) should keep the registered hooks")
	}
	SetCacheHooks(nil)
	SetHTTPHooks(nil)
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("SetCacheHooks(nil) should keep the defaults")
	}
}
