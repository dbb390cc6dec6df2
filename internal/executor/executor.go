// Package executor runs a job record as an external process.
//
// The process talks back through its standard error: every line starting
// with '!' is an action line ("!add <json record>"), every other non-blank
// line is an error line. Standard output is free-form and goes to the log.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/aatumaykin/jobspool/internal/job"
	"github.com/aatumaykin/jobspool/internal/logger"
	"github.com/aatumaykin/jobspool/internal/metrics"
	"github.com/aatumaykin/jobspool/internal/spool"
)

// ActionAdd enqueues the payload record into the pending spool.
const ActionAdd = "add"

const maxLineSize = 1024 * 1024

var (
	// ErrExecutionFailure is the root of every failed run.
	ErrExecutionFailure = errors.New("job execution failed")
	// ErrMalformedAction means an action line carried a payload that is not a valid record.
	ErrMalformedAction = fmt.Errorf("%w: malformed action line", ErrExecutionFailure)
)

// ExitError reports a process that exited with a nonzero status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("Error caught with code: %d", e.Code)
}

// Is makes errors.Is(err, ErrExecutionFailure) hold for exit errors.
func (e *ExitError) Is(target error) bool {
	return target == ErrExecutionFailure
}

// Submitter accepts follow-up records. spool.Store satisfies it.
type Submitter interface {
	Add(ctx context.Context, state spool.State, rec *job.Record) error
}

// Action is one parsed action line.
type Action struct {
	Name    string
	Payload string
}

// Executor spawns job processes.
type Executor struct {
	submitter Submitter
	logger    *logger.Logger
	timeout   time.Duration
	metrics   *metrics.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithTimeout kills processes still running after d. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithMetrics counts chained submissions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// New creates an Executor that submits follow-up jobs to submitter.
func New(submitter Submitter, log *logger.Logger, opts ...Option) *Executor {
	e := &Executor{
		submitter: submitter,
		logger:    log.Named("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes rec and waits for the process to exit. On a zero exit status
// every !add payload is submitted to the pending spool. Any returned error
// means the job failed and must not be marked done.
func (e *Executor) Run(ctx context.Context, rec *job.Record) error {
	jobField := logger.Field{Key: "job_id", Value: rec.ID}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, rec.Cmd, rec.Args...)
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExecutionFailure, err)
	}

	e.logger.Debug("spawning job",
		jobField,
		logger.Field{Key: "namespace", Value: rec.Namespace},
		logger.Field{Key: "cmd", Value: rec.Cmd},
		logger.Field{Key: "args", Value: rec.Args})

	if err := cmd.Start(); err != nil {
		e.logger.Error("failed to spawn job", err, jobField)
		return fmt.Errorf("%w: %v", ErrExecutionFailure, err)
	}

	e.streamStdout(stdout, jobField)

	waitErr := cmd.Wait()
	actions, errLines := ParseOutput(stderr.String())

	if waitErr != nil {
		runErr := failure(ctx, waitErr, e.timeout)
		for _, line := range errLines {
			e.logger.Error(line, runErr, jobField)
		}
		return runErr
	}

	// Decode everything first so a malformed line submits nothing.
	var followUps []*job.Record
	for _, action := range actions {
		switch action.Name {
		case ActionAdd:
			next, err := decodeFollowUp(action.Payload)
			if err != nil {
				e.logger.Error("malformed action payload", err, jobField,
					logger.Field{Key: "action", Value: action.Name})
				return fmt.Errorf("%w: %v", ErrMalformedAction, err)
			}
			followUps = append(followUps, next)
		default:
			e.logger.Warn("unknown action ignored", jobField,
				logger.Field{Key: "action", Value: action.Name})
		}
	}

	for _, line := range errLines {
		e.logger.Debug(line, jobField)
	}

	for _, next := range followUps {
		if err := e.submitter.Add(ctx, spool.StatePending, next); err != nil {
			return fmt.Errorf("failed to submit follow-up job: %w", err)
		}
		e.metrics.RecordChained(next.Namespace)
		e.logger.Info("follow-up job submitted", jobField,
			logger.Field{Key: "next_id", Value: next.ID},
			logger.Field{Key: "namespace", Value: next.Namespace})
	}

	return nil
}

// streamStdout logs every stdout line as it arrives. Lines longer than
// maxLineSize are logged in pieces; the pipe is read to EOF in every case.
func (e *Executor) streamStdout(r io.Reader, jobField logger.Field) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	for {
		chunk, isPrefix, err := reader.ReadLine()
		if err != nil {
			e.logStdout(line, jobField)
			if !errors.Is(err, io.EOF) {
				e.logger.Warn("stdout stream interrupted", jobField, logger.Field{Key: "error", Value: err})
				_, _ = io.Copy(io.Discard, r)
			}
			return
		}

		line = append(line, chunk...)
		if isPrefix && len(line) < maxLineSize {
			continue
		}
		e.logStdout(line, jobField)
		line = line[:0]
	}
}

func (e *Executor) logStdout(line []byte, jobField logger.Field) {
	text := strings.TrimSpace(string(line))
	if text == "" {
		return
	}
	e.logger.Info(text, jobField)
}

// decodeFollowUp parses an !add payload into a record that the spool will accept.
func decodeFollowUp(payload string) (*job.Record, error) {
	next, err := job.Decode([]byte(payload))
	if err != nil {
		return nil, err
	}
	next.Normalize()
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}

func failure(ctx context.Context, waitErr error, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: killed after %s", ErrExecutionFailure, timeout)
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return fmt.Errorf("%w: %v", ErrExecutionFailure, waitErr)
}

// ParseOutput splits buffered stderr into action lines and error lines.
// Lines are trimmed and blank lines dropped.
func ParseOutput(stderr string) ([]Action, []string) {
	var actions []Action
	var errLines []string

	for _, raw := range strings.Split(stderr, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "!") {
			errLines = append(errLines, line)
			continue
		}

		name, payload := line[1:], ""
		if i := strings.IndexAny(name, " \t"); i >= 0 {
			name, payload = name[:i], name[i+1:]
		}
		actions = append(actions, Action{
			Name:    name,
			Payload: strings.TrimSpace(payload),
		})
	}

	return actions, errLines
}
