package flags

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreSeedsKnownModulesOnly(t *testing.T) {
	s := NewStore(map[string]bool{"books": true, "unknown": true})

	snap := s.Snapshot()
	require.Len(t, snap, len(Modules))
	assert.True(t, snap.Enabled(Books))
	assert.False(t, snap.Enabled(Pages))
	assert.False(t, snap.Enabled(Comments))
	_, present := snap[Module("unknown")]
	assert.False(t, present)
}

func TestApplyIgnoresUnknownKeysAndNonBooleans(t *testing.T) {
	s := NewStore(map[string]bool{"books": true})

	tests := []struct {
		name    string
		partial map[string]any
		want    Flags
	}{
		{
			name:    "boolean update",
			partial: map[string]any{"pages": true},
			want:    Flags{Books: true, Pages: true, Comments: false},
		},
		{
			name:    "unknown key",
			partial: map[string]any{"shelves": false},
			want:    Flags{Books: true, Pages: true, Comments: false},
		},
		{
			name:    "string value",
			partial: map[string]any{"books": "false"},
			want:    Flags{Books: true, Pages: true, Comments: false},
		},
		{
			name:    "number value",
			partial: map[string]any{"comments": 1},
			want:    Flags{Books: true, Pages: true, Comments: false},
		},
		{
			name:    "mixed",
			partial: map[string]any{"books": false, "comments": nil, "x": true},
			want:    Flags{Books: false, Pages: true, Comments: false},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := s.Apply(test.partial)
			assert.Equal(t, test.want, got)
			assert.Equal(t, test.want, s.Snapshot())
		})
	}
}

func TestSnapshotIsNotAffectedByLaterWrites(t *testing.T) {
	s := NewStore(map[string]bool{"books": true})
	before := s.Snapshot()

	s.Set(Books, false)

	assert.True(t, before.Enabled(Books))
	assert.False(t, s.Enabled(Books))
}

func TestOnChangeCalledOnlyForEffectiveUpdates(t *testing.T) {
	s := NewStore(nil)
	var calls []Flags
	s.OnChange(func(f Flags) { calls = append(calls, f) })

	s.Apply(map[string]any{"nope": true})
	s.Apply(map[string]any{"pages": true})

	require.Len(t, calls, 1)
	assert.True(t, calls[0].Enabled(Pages))
}

func TestOnChangeObserverEndsOnLatestSnapshot(t *testing.T) {
	s := NewStore(map[string]bool{"books": true})

	var (
		mu       sync.Mutex
		mirrored Flags
		calls    atomic.Int32
	)
	held := make(chan struct{})
	release := make(chan struct{})
	s.OnChange(func(f Flags) {
		if calls.Add(1) == 1 {
			close(held)
			<-release
		}
		mu.Lock()
		mirrored = f
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.Apply(map[string]any{"books": false})
	}()
	<-held

	// The second write lands while the first write's hook is still running
	go func() {
		defer wg.Done()
		s.Apply(map[string]any{"pages": true})
	}()
	require.Eventually(t, func() bool { return s.Enabled(Pages) }, time.Second, time.Millisecond)

	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, s.Snapshot(), mirrored)
	assert.True(t, mirrored.Enabled(Pages))
	assert.False(t, mirrored.Enabled(Books))
}

func TestConcurrentWritersNeverLoseKeys(t *testing.T) {
	for i := 0; i < 200; i++ {
		s := NewStore(map[string]bool{"books": true, "pages": false, "comments": true})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Apply(map[string]any{"books": false})
		}()
		go func() {
			defer wg.Done()
			s.Apply(map[string]any{"pages": true})
		}()
		wg.Wait()

		got := s.Snapshot()
		require.False(t, got.Enabled(Books))
		require.True(t, got.Enabled(Pages))
		require.True(t, got.Enabled(Comments), "untouched key changed")
	}
}

func TestReadersSeeWholeSnapshots(t *testing.T) {
	s := NewStore(map[string]bool{"books": false, "pages": false})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := s.Snapshot()
			// the writer always flips both keys together
			if snap.Enabled(Books) != snap.Enabled(Pages) {
				t.Errorf("torn snapshot: %v", snap)
				return
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		on := i%2 == 0
		s.Apply(map[string]any{"books": on, "pages": on})
	}
	close(stop)
	wg.Wait()
}

func TestEnabledModulesSorted(t *testing.T) {
	f := Flags{Pages: true, Books: true, Comments: false}
	assert.Equal(t, []Module{Books, Pages}, f.EnabledModules())
	assert.True(t, IsKnown("comments"))
	assert.False(t, IsKnown("chapters"))
}
