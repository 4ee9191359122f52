package runner

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/questline/internal/game"
	"github.com/jwebster45206/questline/internal/handlers"
	"github.com/jwebster45206/questline/internal/services"
	"github.com/jwebster45206/questline/internal/storage"
	"github.com/jwebster45206/questline/internal/worker"
	"github.com/jwebster45206/questline/pkg/content"
)

const casesDir = "../cases"

// newInProcessAPI serves the game API over httptest with a mock model
// behind the real oracle worker.
func newInProcessAPI(t *testing.T) (*httptest.Server, *services.MockLLM) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	c, err := content.Default()
	require.NoError(t, err)

	llm := services.NewMockLLM()
	oracle := worker.NewOracle(llm, worker.Options{}, log)
	oracle.Start()
	t.Cleanup(oracle.Stop)

	g, err := game.New(game.Options{
		Catalog:          content.New(c, content.WithSeed(7)),
		Store:            storage.NewSnapshotStore(storage.NewMemoryBackend(), "", log),
		Oracle:           oracle,
		Logger:           log,
		AutosaveInterval: -1,
		Rand:             rand.New(rand.NewPCG(1, 2)),
	})
	require.NoError(t, err)
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(func() { _ = g.Close(context.Background()) })

	mux := http.NewServeMux()
	mux.Handle("/v1/gamestate", handlers.NewGameStateHandler(g, log))
	mux.Handle("/v1/gamestate/", handlers.NewGameStateHandler(g, log))
	mux.Handle("/v1/conversation", handlers.NewConversationHandler(g, log))
	mux.Handle("/v1/conversation/", handlers.NewConversationHandler(g, log))
	mux.Handle("/v1/locations/", handlers.NewLocationsHandler(g, log))
	mux.Handle("/v1/items/", handlers.NewItemsHandler(g, log))
	mux.Handle("/v1/achievements", handlers.NewAchievementsHandler(g, log))
	mux.Handle("/v1/showdown", handlers.NewShowdownHandler(g, log))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, llm
}

func TestCases_InProcess(t *testing.T) {
	srv, llm := newInProcessAPI(t)

	r := NewRunner(srv.URL)
	r.Client = srv.Client()
	r.Timeout = 5 * time.Second
	r.Scripter = llm
	r.Logger = t.Logf

	files, err := DiscoverCases(casesDir)
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		jobs, err := LoadTestSuiteWithExpansion(file, casesDir)
		require.NoError(t, err, file)

		for _, job := range jobs {
			result, err := r.RunSuite(context.Background(), job.Suite)
			assert.NoError(t, err, "%s (%s)", job.Name, filepath.Base(file))
			assert.NotEmpty(t, result.GameID)
			for _, step := range result.Results {
				assert.False(t, step.Skipped, "%s: %s", job.Name, step.StepName)
			}
		}
	}
}

func TestRunSuite_ReportsFailures(t *testing.T) {
	srv, llm := newInProcessAPI(t)

	level := 3
	suite := TestSuite{
		Name: "wrong level",
		Steps: []TestStep{
			{Action: ActionStatus, Expectations: Expectations{Level: &level}},
			{Action: ActionLook, Arg: "moms_letter", Expectations: Expectations{Unlocked: []string{"READ_MOMS_LETTER"}}},
		},
	}

	r := NewRunner(srv.URL)
	r.Scripter = llm

	result, err := r.RunSuite(context.Background(), suite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected level 3, got 1")
	require.Len(t, result.Results, 2, "continue mode runs every step")
	assert.True(t, result.Results[1].Success)

	r.ErrorHandlingMode = ErrorHandlingExit
	result, err = r.RunSuite(context.Background(), suite)
	require.Error(t, err)
	assert.Len(t, result.Results, 1)
}

func TestRunSuite_LiveModelSkipsScriptedSteps(t *testing.T) {
	srv, _ := newInProcessAPI(t)

	r := NewRunner(srv.URL)
	result, err := r.RunSuite(context.Background(), TestSuite{
		Name: "unscripted",
		Steps: []TestStep{
			{Action: ActionTalk, Arg: "duck"},
			{Action: ActionSay, Arg: "Am I ready?", OracleReply: "Quack! I'm ready for the day!",
				Expectations: Expectations{Unlocked: []string{"READY_FOR_THE_DAY"}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	assert.True(t, result.Results[1].Skipped)
	assert.Equal(t, "Mock response", result.Results[1].ResponseText)
}

func TestLoadTestSuite(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: Bad\nsteps:\n  - action: dance\n"), 0o644))
	_, err := LoadTestSuite(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown action "dance"`)

	typo := filepath.Join(dir, "typo.yaml")
	require.NoError(t, os.WriteFile(typo, []byte("name: Typo\nsteps:\n  - action: status\n    expcet: {}\n"), 0o644))
	_, err = LoadTestSuite(typo)
	assert.Error(t, err, "unknown fields are rejected")

	jobs, err := LoadTestSuiteWithExpansion(filepath.Join(casesDir, "campaign.yaml"), casesDir)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.True(t, jobs[0].Suite.StartsFresh())
	assert.False(t, jobs[1].Suite.StartsFresh())
}

func TestCheckFailure(t *testing.T) {
	exp := Expectations{Status: http.StatusConflict, Error: "Not Complete"}

	assert.NoError(t, checkFailure(exp, &APIError{Status: 409, Message: "current level is not complete"}))
	assert.ErrorContains(t, checkFailure(exp, nil), "succeeded")
	assert.ErrorContains(t, checkFailure(exp, &APIError{Status: 404, Message: "not complete"}), "expected status 409")
	assert.ErrorContains(t, checkFailure(exp, &APIError{Status: 409, Message: "blocked"}), "expected error containing")
	assert.ErrorContains(t, checkFailure(exp, context.DeadlineExceeded), "expected an API error")
}

func TestSameSet(t *testing.T) {
	assert.True(t, sameSet([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, sameSet([]string{"a"}, []string{"a", "a"}))
	assert.False(t, sameSet([]string{"a", "b"}, []string{"a", "c"}))
}
