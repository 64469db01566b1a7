package synth

import (
	"sync"

	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/errs"
)

// Renderer renders patches for the estimators. Implementations hold a
// port only for the duration of one set-and-render call.
type Renderer interface {
	Render(p Patch, s RenderSettings) (*audio.Signal, error)
	Parameters() []Parameter
	Overridden() map[int]float64
	SampleRate() int
	// Concurrency is the number of renders that may run at once.
	Concurrency() int
}

// Locked serializes access to a single port.
type Locked struct {
	mu   sync.Mutex
	port Port
}

// NewLocked wraps port.
func NewLocked(port Port) *Locked {
	return &Locked{port: port}
}

// Render sets p and renders it while holding the lock.
func (l *Locked) Render(p Patch, s RenderSettings) (*audio.Signal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return setAndRender(l.port, p, s)
}

func (l *Locked) Parameters() []Parameter {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port.Parameters()
}

func (l *Locked) Overridden() map[int]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port.Overridden()
}

func (l *Locked) SampleRate() int { return l.port.SampleRate() }

func (l *Locked) Concurrency() int { return 1 }

// Port returns the wrapped port. Callers must not use it concurrently
// with Render.
func (l *Locked) Port() Port { return l.port }

// Pool owns one port per worker.
type Pool struct {
	ports []Port
	free  chan Port
}

// NewPool builds n ports from factory, applying overrides to each.
func NewPool(factory Factory, n int, overrides map[int]float64) (*Pool, error) {
	if factory == nil {
		return nil, errs.Config("synth_pool", "nil factory")
	}
	if n < 1 {
		n = 1
	}
	p := &Pool{free: make(chan Port, n)}
	for i := 0; i < n; i++ {
		port, err := factory()
		if err != nil {
			return nil, errs.Config("synth_pool", "port %d: %v", i, err)
		}
		if len(overrides) > 0 {
			if err := port.SetOverriddenParameters(overrides); err != nil {
				return nil, err
			}
		}
		p.ports = append(p.ports, port)
		p.free <- port
	}
	return p, nil
}

// Render borrows a port, renders p and returns the port.
func (p *Pool) Render(patch Patch, s RenderSettings) (*audio.Signal, error) {
	port := <-p.free
	defer func() { p.free <- port }()
	return setAndRender(port, patch, s)
}

func (p *Pool) Parameters() []Parameter { return p.ports[0].Parameters() }

func (p *Pool) Overridden() map[int]float64 { return p.ports[0].Overridden() }

func (p *Pool) SampleRate() int { return p.ports[0].SampleRate() }

func (p *Pool) Concurrency() int { return len(p.ports) }

func setAndRender(port Port, p Patch, s RenderSettings) (*audio.Signal, error) {
	if err := port.SetPatch(p); err != nil {
		return nil, errs.Render("set_patch", err)
	}
	out, err := port.RenderPatch(s)
	if err != nil {
		return nil, errs.Render("render_patch", err)
	}
	if out == nil || out.Frames() == 0 {
		return nil, errs.Render("render_patch", errs.Validation("render_patch", "empty render"))
	}
	return out, nil
}
