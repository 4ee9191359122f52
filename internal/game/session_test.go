package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_StartAndEnd(t *testing.T) {
	var ended []string
	s := NewSession(func(_ context.Context, id string) { ended = append(ended, id) })
	ctx := context.Background()

	started, err := s.Start(ctx, "duck")
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, "duck", s.Active())

	again, err := s.Start(ctx, "duck")
	require.NoError(t, err)
	assert.False(t, again, "approaching the active character is a no-op")
	assert.Empty(t, ended)

	id, err := s.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, "duck", id)
	assert.Equal(t, "", s.Active())
	assert.Equal(t, []string{"duck"}, ended)

	id, err = s.End(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Len(t, ended, 1, "ending twice runs the hook once")
}

func TestSession_EpochChangesOnClose(t *testing.T) {
	s := NewSession(nil)
	ctx := context.Background()

	_, err := s.Start(ctx, "duck")
	require.NoError(t, err)
	active, epoch := s.Current()
	assert.Equal(t, "duck", active)

	_, err = s.Start(ctx, "duck")
	require.NoError(t, err)
	_, same := s.Current()
	assert.Equal(t, epoch, same, "approaching the active character keeps the conversation")

	_, err = s.End(ctx)
	require.NoError(t, err)
	_, err = s.Start(ctx, "duck")
	require.NoError(t, err)
	active, reopened := s.Current()
	assert.Equal(t, "duck", active)
	assert.NotEqual(t, epoch, reopened, "a reopened conversation is a new one")
}

func TestSession_SwitchEndsPrevious(t *testing.T) {
	var ended []string
	var activeDuringHook string
	var s *Session
	s = NewSession(func(_ context.Context, id string) {
		ended = append(ended, id)
		activeDuringHook = s.Active()
	})
	ctx := context.Background()

	_, err := s.Start(ctx, "duck")
	require.NoError(t, err)
	started, err := s.Start(ctx, "gardener_pig")
	require.NoError(t, err)

	assert.True(t, started)
	assert.Equal(t, []string{"duck"}, ended)
	assert.Equal(t, "duck", activeDuringHook, "the previous conversation is closing, not replaced, while the hook runs")
	assert.Equal(t, "gardener_pig", s.Active())
}

func TestSession_StartWaitsForClose(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	s := NewSession(func(context.Context, string) {
		close(entered)
		<-release
	})
	ctx := context.Background()

	_, err := s.Start(ctx, "duck")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.End(ctx)
	}()
	<-entered

	startErr := make(chan error, 1)
	go func() {
		_, err := s.Start(ctx, "owl_informant")
		startErr <- err
	}()

	select {
	case <-startErr:
		t.Fatal("Start returned while the previous conversation was still closing")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-startErr)
	wg.Wait()
	assert.Equal(t, "owl_informant", s.Active())
}

func TestSession_StartCancelledWhileClosing(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	s := NewSession(func(context.Context, string) {
		close(entered)
		<-release
	})
	defer close(release)

	_, err := s.Start(context.Background(), "duck")
	require.NoError(t, err)
	go func() { _, _ = s.End(context.Background()) }()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	started, err := s.Start(ctx, "troll")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, started)
}

func TestSession_SingleActiveUnderContention(t *testing.T) {
	var mu sync.Mutex
	open := 0
	maxOpen := 0
	s := NewSession(func(context.Context, string) {
		mu.Lock()
		open--
		mu.Unlock()
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"duck", "troll", "sphinx", "giant_spider", "duck", "troll"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started, err := s.Start(ctx, id)
			if err != nil || !started {
				return
			}
			mu.Lock()
			open++
			maxOpen = max(maxOpen, open)
			mu.Unlock()
		}()
	}
	wg.Wait()
	_, err := s.End(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, open)
	assert.LessOrEqual(t, maxOpen, 2, "at most one conversation plus one mid-close")
}
