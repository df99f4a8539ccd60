package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/framefinder/visim/internal/domain"
)

// --- Mocks ---

// fakeExtractor maps image bytes to a canned vector, failing for ids listed
// in failFor. It tracks the highest number of concurrent calls observed.
type fakeExtractor struct {
	mu          sync.Mutex
	failFor     map[string]bool
	inFlight    int32
	maxInFlight int32
	calls       int
}

func (f *fakeExtractor) ExtractOne(_ context.Context, data []byte) (domain.Vector, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		observed := atomic.LoadInt32(&f.maxInFlight)
		if cur <= observed || atomic.CompareAndSwapInt32(&f.maxInFlight, observed, cur) {
			break
		}
	}

	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	id := string(data)
	if f.failFor[id] {
		return nil, fmt.Errorf("decode %s: %w", id, domain.ErrPreprocess)
	}
	return domain.Vector{float32(len(id)), 1}, nil
}

func bytesLoader(ctx context.Context, id string) ([]byte, error) {
	return []byte(id), nil
}

func TestNew_RejectsNonPositiveConcurrency(t *testing.T) {
	for _, c := range []int{0, -1} {
		if _, err := New(&fakeExtractor{}, bytesLoader, c, zap.NewNop()); !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("New(concurrency=%d): err = %v, want ErrConfiguration", c, err)
		}
	}
}

func TestRun_ResultsInInputOrderWithIdentifiers(t *testing.T) {
	ids := []string{"ph://1", "ph://02", "ph://003", "ph://0004", "ph://00005"}
	runner, err := New(&fakeExtractor{}, bytesLoader, 2, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	results, err := runner.Run(context.Background(), ids, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(results) != len(ids) {
		t.Fatalf("got %d results, want %d", len(results), len(ids))
	}
	for i, res := range results {
		if res.ID() != ids[i] {
			t.Errorf("results[%d].ID = %q, want %q", i, res.ID(), ids[i])
		}
		// The fake derives the vector from the identifier, so a positional
		// mix-up shows up as the wrong vector under the right id.
		if res.Vector()[0] != float32(len(ids[i])) {
			t.Errorf("results[%d] carries a vector for a different identifier", i)
		}
	}
}

func TestRun_FailureIsolatedAndTagged(t *testing.T) {
	ids := []string{"a", "b", "broken", "d", "e"}
	ext := &fakeExtractor{failFor: map[string]bool{"broken": true}}
	runner, err := New(ext, bytesLoader, 2, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	var fractions []float64
	results, err := runner.Run(context.Background(), ids, func(f float64) {
		fractions = append(fractions, f)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	ok := Successes(results)
	if len(ok) != 4 {
		t.Fatalf("got %d successes, want 4", len(ok))
	}
	for _, res := range ok {
		if res.ID() == "broken" {
			t.Error("failed item leaked into successes")
		}
		if res.Vector()[0] != float32(len(res.ID())) {
			t.Errorf("success %q paired with the wrong vector", res.ID())
		}
	}

	if results[2].OK() || results[2].ID() != "broken" {
		t.Error("failed item lost its slot in the attempted list")
	}
	if !errors.Is(results[2].Err(), domain.ErrPreprocess) {
		t.Errorf("results[2].Err = %v, want ErrPreprocess", results[2].Err())
	}

	if len(fractions) == 0 || fractions[len(fractions)-1] != 1.0 {
		t.Fatalf("final progress = %v, want exactly 1.0", fractions)
	}
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Fatalf("progress not monotonic: %v", fractions)
		}
	}
}

func TestRun_ConcurrencyBoundedByChunkSize(t *testing.T) {
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("ph://%d", i)
	}
	ext := &fakeExtractor{}
	runner, err := New(ext, bytesLoader, 4, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := runner.Run(context.Background(), ids, nil); err != nil {
		t.Fatal(err)
	}

	if ext.maxInFlight > 4 {
		t.Errorf("observed %d concurrent extractions, limit is 4", ext.maxInFlight)
	}
	if ext.calls != 20 {
		t.Errorf("extractor called %d times, want 20", ext.calls)
	}
}

func TestRun_ProgressPerChunk(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e"}
	runner, err := New(&fakeExtractor{}, bytesLoader, 2, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	var fractions []float64
	if _, err := runner.Run(context.Background(), ids, func(f float64) {
		fractions = append(fractions, f)
	}); err != nil {
		t.Fatal(err)
	}

	want := []float64{0.4, 0.8, 1.0}
	if len(fractions) != len(want) {
		t.Fatalf("fractions = %v, want %v", fractions, want)
	}
	for i := range want {
		if diff := fractions[i] - want[i]; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("fractions = %v, want %v", fractions, want)
		}
	}
}

func TestRun_EmptyInput(t *testing.T) {
	runner, err := New(&fakeExtractor{}, bytesLoader, 3, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	final := -1.0
	results, err := runner.Run(context.Background(), nil, func(f float64) { final = f })
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for empty input", len(results))
	}
	if final != 1.0 {
		t.Errorf("final progress = %v, want 1.0", final)
	}
}

func TestRun_CancellationStopsAtChunkBoundary(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f"}
	ext := &fakeExtractor{}
	runner, err := New(ext, bytesLoader, 2, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	results, err := runner.Run(ctx, ids, func(f float64) {
		// Cancel after the first chunk reports.
		once.Do(cancel)
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d attempted results after cancel, want 2 (one chunk)", len(results))
	}
}

func TestRun_LoaderFailureIsPerItem(t *testing.T) {
	loader := func(_ context.Context, id string) ([]byte, error) {
		if id == "missing" {
			return nil, errors.New("file not found")
		}
		return []byte(id), nil
	}
	runner, err := New(&fakeExtractor{}, loader, 2, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	results, err := runner.Run(context.Background(), []string{"a", "missing", "c"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(Successes(results)) != 2 {
		t.Errorf("got %d successes, want 2", len(Successes(results)))
	}
	if !errors.Is(results[1].Err(), domain.ErrPreprocess) {
		t.Errorf("loader failure err = %v, want ErrPreprocess", results[1].Err())
	}
}
