package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwebster45206/questline/internal/services"
	"github.com/jwebster45206/questline/pkg/chat"
	"github.com/jwebster45206/questline/pkg/content"
	"github.com/jwebster45206/questline/pkg/prompts"
)

const (
	// PromptHistoryLimit is how many past exchanges accompany a message.
	PromptHistoryLimit = prompts.DefaultHistoryLimit

	DefaultDelay      = 500 * time.Millisecond
	DefaultTimeout    = 30 * time.Second
	defaultQueueDepth = 64
)

var errStopped = errors.New("oracle stopped")

// Request is one question for a character.
type Request struct {
	Character content.Character
	Message   string
	History   []chat.Exchange

	// HistoryLimit overrides PromptHistoryLimit when > 0.
	HistoryLimit int
	// Hint is a keyword the character should respond to eagerly.
	Hint string
	// FallbackText replaces the personality fallback line when set.
	FallbackText string
}

// Reply is the oracle's answer. Fallback is set when the text is filler
// because the provider could not answer.
type Reply struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback,omitempty"`
}

type job struct {
	id   string
	ctx  context.Context
	req  Request
	done chan Reply
}

// Options configures an Oracle.
type Options struct {
	Delay      time.Duration // pause between consecutive requests
	Timeout    time.Duration // per-request provider timeout
	QueueDepth int
}

// Oracle serializes character requests to the LLM provider. Exactly one
// request is in flight at a time and queued requests are served in order.
type Oracle struct {
	llm     services.LLMService
	delay   time.Duration
	timeout time.Duration
	jobs    chan *job
	log     *slog.Logger
	tracer  trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewOracle creates an oracle in front of llm. Call Start before use.
func NewOracle(llm services.LLMService, opts Options, log *slog.Logger) *Oracle {
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaultQueueDepth
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Oracle{
		llm:     llm,
		delay:   opts.Delay,
		timeout: opts.Timeout,
		jobs:    make(chan *job, opts.QueueDepth),
		log:     log,
		tracer:  otel.Tracer("questline/worker"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the processing loop. Calling it again has no effect.
func (o *Oracle) Start() {
	o.startOnce.Do(func() {
		o.log.Info("Oracle starting", "delay", o.delay, "timeout", o.timeout)
		o.wg.Add(1)
		go o.run()
	})
}

// Stop cancels the in-flight request and waits for the loop to exit.
// Callers still waiting get a fallback reply.
func (o *Oracle) Stop() {
	o.log.Info("Oracle stop requested")
	o.cancel()
	o.wg.Wait()
}

// Pending returns the number of queued requests.
func (o *Oracle) Pending() int {
	return len(o.jobs)
}

// GenerateResponse asks character for a reply to playerMessage. It never
// fails: on any error the reply is a fallback line.
func (o *Oracle) GenerateResponse(ctx context.Context, character content.Character, playerMessage string, history []chat.Exchange) Reply {
	return o.Generate(ctx, Request{Character: character, Message: playerMessage, History: history})
}

// Generate queues req and waits for its reply.
func (o *Oracle) Generate(ctx context.Context, req Request) Reply {
	j := &job{
		id:   uuid.New().String(),
		ctx:  ctx,
		req:  req,
		done: make(chan Reply, 1),
	}

	if o.ctx.Err() != nil {
		return o.fallback(j, errStopped)
	}

	select {
	case o.jobs <- j:
	case <-ctx.Done():
		return o.fallback(j, ctx.Err())
	case <-o.ctx.Done():
		return o.fallback(j, errStopped)
	}

	select {
	case r := <-j.done:
		return r
	case <-ctx.Done():
		return o.fallback(j, ctx.Err())
	case <-o.ctx.Done():
		return o.fallback(j, errStopped)
	}
}

func (o *Oracle) run() {
	defer o.wg.Done()

	var last time.Time
	for {
		select {
		case <-o.ctx.Done():
			o.log.Info("Oracle shutting down", "pending", len(o.jobs))
			return
		case j := <-o.jobs:
			if !o.pause(last) {
				return
			}
			j.done <- o.process(j)
			last = time.Now()
		}
	}
}

// pause waits out the remainder of the inter-request delay. It returns
// false if the oracle was stopped meanwhile.
func (o *Oracle) pause(last time.Time) bool {
	if last.IsZero() || o.delay == 0 {
		return true
	}
	wait := o.delay - time.Since(last)
	if wait <= 0 {
		return true
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-o.ctx.Done():
		return false
	}
}

func (o *Oracle) process(j *job) Reply {
	if err := j.ctx.Err(); err != nil {
		return o.fallback(j, err)
	}

	ctx, cancel := context.WithTimeout(j.ctx, o.timeout)
	defer cancel()
	stop := context.AfterFunc(o.ctx, cancel)
	defer stop()

	ctx, span := o.tracer.Start(ctx, "oracle.generate", trace.WithAttributes(
		attribute.String("oracle.job_id", j.id),
		attribute.String("oracle.character", j.req.Character.ID),
		attribute.Int("oracle.history", len(j.req.History)),
		attribute.Bool("oracle.hint", j.req.Hint != ""),
	))
	defer span.End()

	limit := j.req.HistoryLimit
	if limit <= 0 {
		limit = PromptHistoryLimit
	}

	messages, err := prompts.New().
		WithCharacter(j.req.Character).
		WithHistory(j.req.History).
		WithHistoryLimit(limit).
		WithUserMessage(j.req.Message).
		WithHint(j.req.Hint).
		Build()
	if err != nil {
		span.SetAttributes(attribute.Bool("oracle.fallback", true))
		return o.fallback(j, fmt.Errorf("failed to build chat messages: %w", err))
	}

	start := time.Now()
	o.log.Debug("Sending request to oracle",
		"job_id", j.id,
		"character", j.req.Character.ID,
		"messages", len(messages),
	)

	text, err := o.llm.Complete(ctx, messages)
	if err == nil && strings.TrimSpace(text) == "" {
		err = services.ErrInvalidResponse
	}
	if err != nil {
		span.SetAttributes(attribute.Bool("oracle.fallback", true))
		return o.fallback(j, err)
	}

	o.log.Info("Oracle replied",
		"job_id", j.id,
		"character", j.req.Character.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Reply{Text: strings.TrimSpace(text)}
}

func (o *Oracle) fallback(j *job, err error) Reply {
	o.log.Warn("Oracle request failed, using fallback line",
		"error", err,
		"job_id", j.id,
		"character", j.req.Character.ID,
	)
	text := j.req.FallbackText
	if text == "" {
		text = prompts.FallbackFor(j.req.Character, j.req.Message)
	}
	return Reply{Text: text, Fallback: true}
}
