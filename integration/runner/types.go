package runner

import (
	"time"
)

// Step actions map onto the game API.
const (
	ActionStatus       = "status"       // GET /v1/gamestate
	ActionReset        = "reset"        // POST /v1/gamestate/reset, arg "full" for a new game
	ActionAdvance      = "advance"      // POST /v1/gamestate/advance
	ActionTalk         = "talk"         // POST /v1/conversation, arg is the character id
	ActionSay          = "say"          // POST /v1/conversation/messages, arg is the message
	ActionBye          = "bye"          // DELETE /v1/conversation
	ActionGo           = "go"           // POST /v1/locations/{arg}
	ActionLook         = "look"         // POST /v1/items/{arg}/examine
	ActionShowdown     = "showdown"     // POST /v1/showdown
	ActionAchievements = "achievements" // GET /v1/achievements
)

// TestSuite defines a complete integration test scenario.
// Can either be a regular test with Steps, or a suite that references other Cases.
type TestSuite struct {
	Name      string     `yaml:"name"`
	FreshGame *bool      `yaml:"fresh_game,omitempty"` // full reset before the first step, default true
	Steps     []TestStep `yaml:"steps,omitempty"`
	Cases     []string   `yaml:"cases,omitempty"` // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// StartsFresh reports whether the suite begins with a new game.
func (ts *TestSuite) StartsFresh() bool {
	return ts.FreshGame == nil || *ts.FreshGame
}

// TestStep defines a single player action and its expected outcomes.
// OracleReply scripts the character's answer when the runner drives a
// mock model. Against a live model the scripted expectations are skipped.
type TestStep struct {
	Name         string       `yaml:"name,omitempty"`
	Action       string       `yaml:"action"`
	Arg          string       `yaml:"arg,omitempty"`
	OracleReply  string       `yaml:"oracle_reply,omitempty"`
	Expectations Expectations `yaml:"expect"`
}

// Scripted reports whether the step's outcome depends on a scripted reply.
func (s TestStep) Scripted() bool {
	return s.OracleReply != ""
}

// Label names the step for logs.
func (s TestStep) Label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Arg != "" {
		return s.Action + " " + s.Arg
	}
	return s.Action
}

// Expectations defines what to check after a step executes
type Expectations struct {
	// Game status after the step
	Level        *int     `yaml:"level,omitempty"`
	Phase        *string  `yaml:"phase,omitempty"`
	Location     *string  `yaml:"location,omitempty"`
	Energy       *int     `yaml:"energy,omitempty"`
	Conversation *string  `yaml:"conversation,omitempty"` // "" means no open conversation
	Achievements []string `yaml:"achievements,omitempty"` // all must be unlocked
	Recruits     []string `yaml:"recruits,omitempty"`     // monsters and trap maker, order independent

	// Step outcome
	Unlocked   []string `yaml:"unlocked,omitempty"`   // unlocked by this step, order independent
	Transition *string  `yaml:"transition,omitempty"` // from a reply or an advance
	Error      string   `yaml:"error,omitempty"`      // the step must fail with this message fragment
	Status     int      `yaml:"status,omitempty"`     // expected HTTP status when failing

	// Response Analysis
	ResponseContains    []string `yaml:"response_contains,omitempty"`
	ResponseNotContains []string `yaml:"response_not_contains,omitempty"`
	ResponseRegex       string   `yaml:"response_regex,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName     string
	StepName     string
	Success      bool
	Skipped      bool // scripted expectations not checked against a live model
	Error        error
	Duration     time.Duration
	ResponseText string
	IsReset      bool // reset steps do not count toward pass/fail metrics
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
	GameID   string // game the suite played
}
