// Package analysis reviews candidate code through an external model.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ziadismael/DevPath/interviewer/internal/metrics"
)

// FailureMessage is returned to the model whenever analysis fails, whatever
// the underlying cause.
const FailureMessage = "Error: Could not analyze code at this moment."

const reportHeader = "SYSTEM ANALYSIS REPORT (Do not read this header):\n"

// Backend performs one completion against the external analysis model.
type Backend interface {
	Complete(ctx context.Context, messages []*schema.Message) (string, error)
}

// ErrorKind classifies an analysis Error.
type ErrorKind string

const (
	KindService ErrorKind = "service"
	KindTimeout ErrorKind = "timeout"
	KindEmpty   ErrorKind = "empty"
)

// Error wraps a failed analysis.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("code analysis %s", e.Kind)
	}
	return fmt.Sprintf("code analysis %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options tunes the Service.
type Options struct {
	// Timeout bounds one call including the wait for a worker slot.
	Timeout time.Duration
	// Workers bounds concurrent external calls across all sessions.
	Workers int
}

// Service renders the review prompt and runs it on the Backend.
type Service struct {
	backend  Backend
	template prompt.ChatTemplate
	sem      *semaphore.Weighted
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.Recorder
}

// NewService wires a Backend with the review template.
func NewService(backend Backend, opts Options, logger *zap.Logger, recorder *metrics.Recorder) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Service{
		backend: backend,
		template: prompt.FromMessages(
			schema.FString,
			schema.UserMessage(reviewPrompt),
		),
		sem:     semaphore.NewWeighted(int64(workers)),
		timeout: timeout,
		logger:  logger,
		metrics: recorder,
	}
}

// Analyze returns the analysis report for code or an *Error.
func (s *Service) Analyze(ctx context.Context, code string) (string, error) {
	start := time.Now()
	report, err := s.analyze(ctx, code)

	status := "ok"
	if err != nil {
		var aerr *Error
		if errors.As(err, &aerr) {
			status = string(aerr.Kind)
		} else {
			status = string(KindService)
		}
	}
	s.metrics.ObserveAnalysis(status, time.Since(start))
	return report, err
}

// Report runs Analyze and collapses every failure to FailureMessage. The
// underlying error is logged, never returned.
func (s *Service) Report(ctx context.Context, code string) string {
	report, err := s.Analyze(ctx, code)
	if err != nil {
		s.logger.Error("code analysis failed", zap.Int("code_len", len(code)), zap.Error(err))
		return FailureMessage
	}
	return report
}

func (s *Service) analyze(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	messages, err := s.template.Format(ctx, map[string]any{"code": code})
	if err != nil {
		return "", &Error{Kind: KindService, Err: fmt.Errorf("render review prompt: %w", err)}
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", &Error{Kind: KindTimeout, Err: fmt.Errorf("waiting for analysis worker: %w", err)}
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	// The backend may ignore ctx; the slot is released only when it returns so a
	// hung call keeps counting against the worker limit.
	go func() {
		defer s.sem.Release(1)
		text, err := s.backend.Complete(ctx, messages)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", &Error{Kind: KindTimeout, Err: ctx.Err()}
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return "", &Error{Kind: KindTimeout, Err: res.err}
			}
			return "", &Error{Kind: KindService, Err: res.err}
		}
		text := strings.TrimSpace(res.text)
		if text == "" {
			return "", &Error{Kind: KindEmpty}
		}
		return reportHeader + text, nil
	}
}

const reviewPrompt = `You are a technical interviewer reviewing a candidate's code.
Analyze the code below.

Guidelines:
1. Do NOT rewrite or autocomplete the code.
2. Point out logical errors, bugs and missing edge cases.
3. If the candidate has not discussed time and space complexity (Big O), ask about it.
4. Offer an optimization hint when there is one, without giving the answer.

Candidate's code:
{code}`
