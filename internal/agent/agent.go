// Package agent implements the travel concierge's tool-calling loop.
//
// The three pieces are:
//
//   - [Conversation]: the owned, versioned, append-only turn log of one chat
//     session. The system instruction is never stored in it.
//   - [Decider]: one language-model call that turns the conversation into a
//     [Decision]: either a [FinalAnswer] or a batch of [ToolRequests].
//   - [Loop]: the state machine that alternates between the decider and the
//     [tool.Executor] until the model stops asking for tools or the iteration
//     bound is reached.
//
// Tool faults never reach this package as errors; the executor turns them into
// outcomes that are appended as [ToolResultTurn] values so the model can react
// to them. Only [ModelInvocationError] and context cancellation are returned
// from [Loop.Run], and both leave the conversation at its last good version.
//
// This package lives under internal/ because it encapsulates application-private
// orchestration logic and is not intended to be imported by external code.
package agent

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTurn is returned by [Conversation.Append] when a turn would break
// the pairing between tool requests and tool results.
var ErrInvalidTurn = errors.New("agent: invalid turn")

// ModelInvocationError reports a decision step whose model call failed or
// timed out. It is the only fault besides cancellation that [Loop.Run]
// returns to its caller.
type ModelInvocationError struct {
	// Iteration is the 1-based decision step that failed.
	Iteration int

	// Elapsed is how long the failed call ran.
	Elapsed time.Duration

	Err error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("agent: model invocation failed after %s: %v", e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// SafetyLimitExceeded is attached to a [Result] when the loop was forced to
// finish because it reached its iteration bound. It is never returned as an
// error from [Loop.Run].
type SafetyLimitExceeded struct {
	Limit int
}

func (e *SafetyLimitExceeded) Error() string {
	return fmt.Sprintf("agent: iteration limit of %d decision steps reached", e.Limit)
}
