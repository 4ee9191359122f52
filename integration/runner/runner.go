package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/questline/internal/game"
	"github.com/jwebster45206/questline/internal/handlers"
	"github.com/jwebster45206/questline/pkg/actor"
	"github.com/jwebster45206/questline/pkg/chat"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// ReplyScripter sets the next reply of a mock model.
type ReplyScripter interface {
	SetReply(reply string)
}

// Runner executes integration tests against a running questline API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...any)
	ErrorHandlingMode ErrorHandlingMode
	// Scripter is set when the API is backed by a mock model. Without one,
	// steps that script a reply only check that the call succeeded.
	Scripter ReplyScripter
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 60 * time.Second},
		Timeout:           30 * time.Second,
		Logger:            func(string, ...any) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Status, e.Message)
}

// outcome is what a single action produced.
type outcome struct {
	text       string
	unlocked   []string
	transition string
}

type advanceResponse struct {
	Transition string      `json:"transition"`
	Status     game.Status `json:"status"`
}

// LoadTestSuite loads a test suite from a YAML file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse YAML in %s: %w", filename, err)
	}
	for i, step := range suite.Steps {
		if !knownAction(step.Action) {
			return TestSuite{}, fmt.Errorf("%s step %d: unknown action %q", filename, i+1, step.Action)
		}
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// DiscoverCases returns the YAML case files in dir, sorted by name.
func DiscoverCases(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to list cases in %s: %w", dir, err)
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return files, nil
}

// RunSuite executes a complete test suite
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	if suite.StartsFresh() {
		if err := r.do(ctx, http.MethodPost, "/v1/gamestate/reset", handlers.ResetRequest{Full: true}, nil); err != nil {
			result.Error = fmt.Errorf("failed to start a new game: %w", err)
			result.Duration = time.Since(start)
			return result, result.Error
		}
	}

	var status game.Status
	if err := r.do(ctx, http.MethodGet, "/v1/gamestate", nil, &status); err != nil {
		result.Error = fmt.Errorf("failed to get gamestate: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}
	result.GameID = status.GameID

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Label())
		stepResult := r.executeStep(ctx, step)
		stepResult.TestName = suite.Name
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Label(), stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i+1, step.Label(), stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		if stepResult.Skipped {
			r.Logger("    [%d/%d] - %s (scripted expectations skipped)", i+1, len(suite.Steps), step.Label())
			continue
		}
		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Label(), stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// executeStep performs one action and checks its expectations
func (r *Runner) executeStep(ctx context.Context, step TestStep) TestResult {
	start := time.Now()
	result := TestResult{
		StepName: step.Label(),
		IsReset:  step.Action == ActionReset,
	}
	finish := func(err error) TestResult {
		result.Error = err
		result.Success = err == nil
		result.Duration = time.Since(start)
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	if step.Scripted() && r.Scripter != nil {
		r.Scripter.SetReply(step.OracleReply)
	}

	out, err := r.perform(ctx, step)
	exp := step.Expectations

	if exp.Error != "" || exp.Status != 0 {
		return finish(checkFailure(exp, err))
	}
	if err != nil {
		return finish(err)
	}
	result.ResponseText = out.text

	if step.Scripted() && r.Scripter == nil {
		result.Skipped = true
		return finish(nil)
	}

	if err := checkOutcome(exp, out); err != nil {
		return finish(fmt.Errorf("expectation failed: %w", err))
	}
	if needsStatus(exp) {
		var status game.Status
		if err := r.do(ctx, http.MethodGet, "/v1/gamestate", nil, &status); err != nil {
			return finish(fmt.Errorf("failed to get gamestate after step: %w", err))
		}
		if err := checkStatus(exp, &status); err != nil {
			return finish(fmt.Errorf("expectation failed: %w", err))
		}
	}
	if len(exp.Achievements) > 0 {
		var ach handlers.AchievementsResponse
		if err := r.do(ctx, http.MethodGet, "/v1/achievements", nil, &ach); err != nil {
			return finish(fmt.Errorf("failed to get achievements after step: %w", err))
		}
		if err := checkAchievements(exp.Achievements, ach.Achievements); err != nil {
			return finish(fmt.Errorf("expectation failed: %w", err))
		}
	}

	return finish(nil)
}

// perform sends the request for step's action.
func (r *Runner) perform(ctx context.Context, step TestStep) (outcome, error) {
	var out outcome
	switch step.Action {
	case ActionStatus:
		var s game.Status
		err := r.do(ctx, http.MethodGet, "/v1/gamestate", nil, &s)
		out.text = s.LevelName
		return out, err

	case ActionReset:
		var s game.Status
		err := r.do(ctx, http.MethodPost, "/v1/gamestate/reset", handlers.ResetRequest{Full: step.Arg == "full"}, &s)
		out.text = "[GAMESTATE RESET]"
		return out, err

	case ActionAdvance:
		var a advanceResponse
		err := r.do(ctx, http.MethodPost, "/v1/gamestate/advance", nil, &a)
		out.text = a.Status.LevelName
		out.transition = a.Transition
		return out, err

	case ActionTalk:
		var o game.Opening
		err := r.do(ctx, http.MethodPost, "/v1/conversation", handlers.StartConversationRequest{CharacterID: step.Arg}, &o)
		out.text = o.Greeting
		return out, err

	case ActionSay:
		var resp chat.ChatResponse
		err := r.do(ctx, http.MethodPost, "/v1/conversation/messages", chat.ChatRequest{Message: step.Arg}, &resp)
		out.text = resp.Message
		out.unlocked = resp.Unlocked
		out.transition = resp.Transition
		return out, err

	case ActionBye:
		return out, r.do(ctx, http.MethodDelete, "/v1/conversation", nil, nil)

	case ActionGo:
		var s game.Status
		err := r.do(ctx, http.MethodPost, "/v1/locations/"+url.PathEscape(step.Arg), nil, &s)
		out.text = s.Location.Description
		return out, err

	case ActionLook:
		var v game.ItemView
		err := r.do(ctx, http.MethodPost, "/v1/items/"+url.PathEscape(step.Arg)+"/examine", nil, &v)
		out.text = v.Description
		out.unlocked = v.Unlocked
		return out, err

	case ActionShowdown:
		var res actor.ShowdownResult
		err := r.do(ctx, http.MethodPost, "/v1/showdown", nil, &res)
		out.text = fmt.Sprintf("success=%t score=%d/%d", res.Success, res.Score, res.MaxScore)
		return out, err

	case ActionAchievements:
		var ach handlers.AchievementsResponse
		err := r.do(ctx, http.MethodGet, "/v1/achievements", nil, &ach)
		var titles []string
		for _, a := range ach.Achievements {
			if a.Unlocked {
				titles = append(titles, a.Title)
			}
		}
		out.text = strings.Join(titles, ", ")
		return out, err
	}
	return out, fmt.Errorf("unknown action %q", step.Action)
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil. Non-2xx responses become *APIError.
func (r *Runner) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errorResp handlers.ErrorResponse
		msg := string(data)
		if json.Unmarshal(data, &errorResp) == nil && errorResp.Error != "" {
			msg = errorResp.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func knownAction(action string) bool {
	switch action {
	case ActionStatus, ActionReset, ActionAdvance, ActionTalk, ActionSay, ActionBye,
		ActionGo, ActionLook, ActionShowdown, ActionAchievements:
		return true
	}
	return false
}

func needsStatus(exp Expectations) bool {
	return exp.Level != nil || exp.Phase != nil || exp.Location != nil ||
		exp.Energy != nil || exp.Conversation != nil || len(exp.Recruits) > 0
}

// checkFailure validates a step that is expected to be rejected.
func checkFailure(exp Expectations, err error) error {
	if err == nil {
		return fmt.Errorf("expected the step to fail, but it succeeded")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("expected an API error, got: %w", err)
	}
	if exp.Status != 0 && apiErr.Status != exp.Status {
		return fmt.Errorf("expected status %d, got %d (%s)", exp.Status, apiErr.Status, apiErr.Message)
	}
	if exp.Error != "" && !strings.Contains(strings.ToLower(apiErr.Message), strings.ToLower(exp.Error)) {
		return fmt.Errorf("expected error containing '%s', got '%s'", exp.Error, apiErr.Message)
	}
	return nil
}

// checkOutcome validates what the action itself returned.
func checkOutcome(exp Expectations, out outcome) error {
	if len(exp.Unlocked) > 0 && !sameSet(exp.Unlocked, out.unlocked) {
		return fmt.Errorf("expected unlocked %v, got %v", exp.Unlocked, out.unlocked)
	}
	if exp.Transition != nil && out.transition != *exp.Transition {
		return fmt.Errorf("expected transition '%s', got '%s'", *exp.Transition, out.transition)
	}

	lowerResponse := strings.ToLower(out.text)
	for _, expectedText := range exp.ResponseContains {
		if !strings.Contains(lowerResponse, strings.ToLower(expectedText)) {
			return fmt.Errorf("expected response to contain '%s', but it didn't", expectedText)
		}
	}
	for _, unexpectedText := range exp.ResponseNotContains {
		if strings.Contains(lowerResponse, strings.ToLower(unexpectedText)) {
			return fmt.Errorf("expected response to NOT contain '%s', but it did", unexpectedText)
		}
	}

	if exp.ResponseRegex != "" {
		matched, err := regexp.MatchString(exp.ResponseRegex, out.text)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		if !matched {
			return fmt.Errorf("response didn't match regex pattern: %s", exp.ResponseRegex)
		}
	}
	return nil
}

// checkStatus validates the game status after the step.
func checkStatus(exp Expectations, s *game.Status) error {
	if exp.Level != nil && s.Level != *exp.Level {
		return fmt.Errorf("expected level %d, got %d", *exp.Level, s.Level)
	}
	if exp.Phase != nil && s.PhaseName != *exp.Phase {
		return fmt.Errorf("expected phase %s, got %s", *exp.Phase, s.PhaseName)
	}
	if exp.Location != nil && s.Location.ID != *exp.Location {
		return fmt.Errorf("expected location %s, got %s", *exp.Location, s.Location.ID)
	}
	if exp.Energy != nil {
		if s.Energy == nil {
			return fmt.Errorf("expected energy %d, but the level does not track energy", *exp.Energy)
		}
		if s.Energy.Current != *exp.Energy {
			return fmt.Errorf("expected energy %d, got %d", *exp.Energy, s.Energy.Current)
		}
	}
	if exp.Conversation != nil && s.Conversation != *exp.Conversation {
		return fmt.Errorf("expected conversation '%s', got '%s'", *exp.Conversation, s.Conversation)
	}
	if len(exp.Recruits) > 0 {
		actual := slices.Clone(s.Recruits.Monsters)
		if s.Recruits.TrapMaker != "" {
			actual = append(actual, s.Recruits.TrapMaker)
		}
		if !sameSet(exp.Recruits, actual) {
			return fmt.Errorf("expected recruits %v, got %v", exp.Recruits, actual)
		}
	}
	return nil
}

func checkAchievements(want []string, views []game.AchievementView) error {
	unlocked := make(map[string]bool, len(views))
	for _, v := range views {
		unlocked[v.ID] = v.Unlocked
	}
	for _, id := range want {
		if !unlocked[id] {
			return fmt.Errorf("expected achievement %s to be unlocked", id)
		}
	}
	return nil
}

// sameSet compares two lists ignoring order.
func sameSet(want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	a, b := slices.Clone(want), slices.Clone(got)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
