package synth

import (
	"errors"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/errs"
)

// stubPort records concurrent use and renders the patch values as samples.
type stubPort struct {
	active  *int32
	maxSeen *int32
	patch   Patch
	over    map[int]float64
	fail    bool
}

func (s *stubPort) LoadPatch(io.Reader) error { return nil }
func (s *stubPort) SetPatch(p Patch) error { s.patch = p.Clone(); return nil }
func (s *stubPort) Patch() Patch { return s.patch }
func (s *stubPort) Parameters() []Parameter {
	return []Parameter{{Index: 0, Name: "a"}, {Index: 1, Name: "b"}}
}
func (s *stubPort) SetOverriddenParameters(v map[int]float64) error { s.over = v; return nil }
func (s *stubPort) Overridden() map[int]float64 { return s.over }
func (s *stubPort) RandomizePatch(*rand.Rand, bool) {}
func (s *stubPort) SampleRate() int { return 8000 }

func (s *stubPort) RenderPatch(RenderSettings) (*audio.Signal, error) {
	n := atomic.AddInt32(s.active, 1)
	defer atomic.AddInt32(s.active, -1)
	for {
		m := atomic.LoadInt32(s.maxSeen)
		if n <= m || atomic.CompareAndSwapInt32(s.maxSeen, m, n) {
			break
		}
	}
	if s.fail {
		return nil, io.ErrUnexpectedEOF
	}
	return audio.New(s.patch.Values(), 8000), nil
}

func TestLockedSerializesRenders(t *testing.T) {
	var active, maxSeen int32
	l := NewLocked(&stubPort{active: &active, maxSeen: &maxSeen})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := l.Render(Patch{{0, float64(i) / 16}}, DefaultRenderSettings()); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent renders = %d, want 1", maxSeen)
	}
}

func TestPoolUsesOnePortPerWorker(t *testing.T) {
	var active, maxSeen int32
	built := 0
	factory := func() (Port, error) {
		built++
		return &stubPort{active: &active, maxSeen: &maxSeen}, nil
	}
	p, err := NewPool(factory, 3, map[int]float64{1: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if built != 3 || p.Concurrency() != 3 {
		t.Fatalf("built %d ports, concurrency %d", built, p.Concurrency())
	}
	if p.Overridden()[1] != 0.5 {
		t.Fatalf("overrides not applied: %v", p.Overridden())
	}
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Render(Patch{{0, 0.25}}, DefaultRenderSettings()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if maxSeen > 3 {
		t.Fatalf("max concurrent renders = %d, want <= 3", maxSeen)
	}
}

func TestRenderFailureIsRenderError(t *testing.T) {
	var active, maxSeen int32
	l := NewLocked(&stubPort{active: &active, maxSeen: &maxSeen, fail: true})
	_, err := l.Render(Patch{{0, 0.5}}, DefaultRenderSettings())
	if !errors.Is(err, errs.ErrRender) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected wrapped render error, got %v", err)
	}
}

func TestFreeIndices(t *testing.T) {
	var active, maxSeen int32
	p := &stubPort{active: &active, maxSeen: &maxSeen, over: map[int]float64{0: 0.3}}
	got := FreeIndices(p)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("FreeIndices = %v, want [1]", got)
	}
}
