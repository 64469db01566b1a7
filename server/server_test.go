package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-soundmatch/audio"
	"github.com/cwbudde/algo-soundmatch/errs"
	"github.com/cwbudde/algo-soundmatch/estimator"
	"github.com/cwbudde/algo-soundmatch/match"
	"github.com/cwbudde/algo-soundmatch/synth"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeMatcher struct {
	err     error
	delay   time.Duration
	active  atomic.Int32
	maxSeen atomic.Int32
	frames  atomic.Int64
}

func (f *fakeMatcher) Match(_ context.Context, target *audio.Signal) (*match.Result, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(f.delay)
	f.frames.Store(int64(target.Frames()))
	if f.err != nil {
		return nil, f.err
	}
	patch := synth.Patch{{Index: 0, Value: 0.25}, {Index: 1, Value: 0.75}}
	return &match.Result{
		Patch:      patch,
		Prediction: &estimator.Prediction{Patch: patch, Fitness: 0.5, Evaluations: 12},
	}, nil
}

func wavFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "target.wav")
	require.NoError(t, audio.SaveWAV(path, audio.Sine(440, 0.1, 8000, 0.5)))
	return path
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	u := "/sound_match"
	if target != "" {
		u += "?target=" + url.QueryEscape(target)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	New(&fakeMatcher{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMatchByPath(t *testing.T) {
	fm := &fakeMatcher{}
	h := New(fm).Handler()
	rec := get(t, h, wavFile(t, t.TempDir()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp MatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, synth.Patch{{Index: 0, Value: 0.25}, {Index: 1, Value: 0.75}}, resp.Patch)
	assert.InDelta(t, 0.5, resp.Fitness, 1e-12)
	assert.Equal(t, 12, resp.Evaluations)
	assert.EqualValues(t, 800, fm.frames.Load())
}

func TestMatchByPathErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("not a wav file"), 0o644))

	cases := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"missing target", "", http.StatusBadRequest, "MISSING_TARGET"},
		{"no such file", filepath.Join(dir, "nope.wav"), http.StatusNotFound, "TARGET_NOT_FOUND"},
		{"not audio", garbage, http.StatusBadRequest, "INVALID_AUDIO"},
	}
	h := New(&fakeMatcher{}).Handler()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, h, tc.target)
			assert.Equal(t, tc.status, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.code, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestMatchFailureStatus(t *testing.T) {
	path := wavFile(t, t.TempDir())
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", errs.WithStage(match.StageEstimation, errs.Validation("ga", "shape mismatch")), http.StatusUnprocessableEntity},
		{"estimator", errs.Wrap(errs.KindEstimator, match.StageEstimation, errs.Render("render_patch", errors.New("crash"))), http.StatusInternalServerError},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, New(&fakeMatcher{err: tc.err}).Handler(), path)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestMatchByBody(t *testing.T) {
	var buf bytes.Buffer
	sig := audio.Sine(220, 0.2, 8000, 0.5)
	ws := &memWriteSeeker{}
	require.NoError(t, audio.WriteWAV(ws, sig))
	buf.Write(ws.buf)

	fm := &fakeMatcher{}
	h := New(fm).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sound_match", &buf))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1600, fm.frames.Load())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sound_match", bytes.NewReader(nil)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	small := New(fm, WithMaxBody(16)).Handler()
	rec = httptest.NewRecorder()
	small.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sound_match", bytes.NewReader(ws.buf)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRootRestriction(t *testing.T) {
	root := t.TempDir()
	wavFile(t, root)
	outside := wavFile(t, t.TempDir())
	h := New(&fakeMatcher{}, WithRoot(root)).Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "target.wav").Code)
	assert.Equal(t, http.StatusForbidden, get(t, h, outside).Code)
	assert.Equal(t, http.StatusForbidden, get(t, h, "../"+filepath.Base(filepath.Dir(outside))+"/target.wav").Code)
}

func TestMatchesAreSerialized(t *testing.T) {
	path := wavFile(t, t.TempDir())
	fm := &fakeMatcher{delay: 20 * time.Millisecond}
	h := New(fm).Handler()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sound_match?target="+url.QueryEscape(path), nil))
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, fm.maxSeen.Load())
}

// memWriteSeeker is an in-memory io.WriteSeeker for WAV encoding.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += n
	return n, nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case 0:
		next = offset
	case 1:
		next = int64(m.pos) + offset
	case 2:
		next = int64(len(m.buf)) + offset
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = int(next)
	return next, nil
}
