// Package engine runs conversational turns end to end: grounding, extraction,
// resolution and classification on submit, then execution on confirm.
package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fentz26/taskchat/internal/completion"
	"github.com/fentz26/taskchat/internal/conversation"
	"github.com/fentz26/taskchat/internal/executor"
	"github.com/fentz26/taskchat/internal/failure"
	"github.com/fentz26/taskchat/internal/gateway"
	"github.com/fentz26/taskchat/internal/intent"
	"github.com/fentz26/taskchat/internal/llm"
	"github.com/fentz26/taskchat/internal/models"
	"github.com/fentz26/taskchat/internal/resolver"
	"github.com/fentz26/taskchat/internal/snapshot"
	"github.com/fentz26/taskchat/internal/store"
	"github.com/fentz26/taskchat/internal/turn"
)

// Outcome statuses.
const (
	StatusCompleted = "completed"
	StatusNoop      = "noop"
)

// Options tunes an Engine. Zero values select defaults.
type Options struct {
	TaskLimit     int
	HistoryWindow int
	// Completion supplies date offsets and vocabulary; Now is filled per call.
	Completion completion.Options
	Rand       *rand.Rand
	Now        func() time.Time
}

// Engine is safe for concurrent turns. Each turn's steps run sequentially.
type Engine struct {
	snapshots *snapshot.Builder
	gateway   *gateway.Gateway
	exec      *executor.Executor
	log       *zap.Logger
	fill      completion.Options
	now       func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// New wires an Engine over a store and a model provider.
func New(s store.Store, p llm.Provider, log *zap.Logger, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	if opts.Completion == (completion.Options{}) {
		opts.Completion = completion.DefaultOptions(time.Time{})
	}
	return &Engine{
		snapshots: snapshot.NewBuilder(s, opts.TaskLimit),
		gateway:   gateway.New(p, opts.HistoryWindow, log),
		exec:      executor.New(s, log),
		log:       log,
		fill:      opts.Completion,
		now:       opts.Now,
		rng:       opts.Rand,
	}
}

// TurnRequest is one chat submission.
type TurnRequest struct {
	Message          string                 `json:"message"`
	History          []conversation.Message `json:"history"`
	CurrentProjectID *int64                 `json:"currentProjectId,omitempty"`
}

// TurnResult is the extracted, resolved and classified intent for one turn.
type TurnResult struct {
	TurnID         string              `json:"turnId"`
	Extracted      intent.Intent       `json:"extracted"`
	Classification turn.Classification `json:"classification"`
}

// SubmitTurn grounds and extracts an intent for req, resolves the names it
// mentions and classifies it. It never mutates the store.
func (e *Engine) SubmitTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	turnID := uuid.NewString()
	log := e.log.With(zap.String("turn_id", turnID))

	if strings.TrimSpace(req.Message) == "" {
		return nil, failure.New(failure.ErrValidation, "Please type a message.")
	}

	snap, err := e.snapshots.Build(ctx)
	if err != nil {
		log.Error("snapshot failed", zap.Error(err))
		return nil, failure.Wrap(failure.ErrUngrounded, "", err)
	}

	in, err := e.gateway.WithLogger(log).Extract(ctx, snap, req.Message, req.History)
	if err != nil {
		log.Warn("extraction failed", zap.Error(err))
		return nil, err
	}

	dir := resolver.NewDirectory(snap.Projects, snap.Users)
	resolveReferences(&in, dir)

	c := turn.Classify(in)
	if in.Action == intent.ActionCreate && !in.NeedsClarification {
		var pid int64
		e.withRand(func(rng *rand.Rand) {
			pid, err = dir.ProjectForCreate(in.ProjectID, in.ProjectName, req.CurrentProjectID, rng)
		})
		if err != nil {
			c = turn.Classification{Action: in.Action, State: turn.StateBlockedClarification, Message: failure.UserMessage(err)}
		} else {
			in.ProjectID = &pid
		}
	}

	log.Info("turn classified",
		zap.String("action", string(c.Action)),
		zap.String("state", string(c.State)),
		zap.Strings("missing", c.Missing))
	return &TurnResult{TurnID: turnID, Extracted: in, Classification: c}, nil
}

// resolveReferences fills ids from names where the model gave only a name.
// An explicit id always wins.
func resolveReferences(in *intent.Intent, dir *resolver.Directory) {
	if in.ProjectID == nil {
		if pid, ok := dir.ResolveProject(in.ProjectName); ok {
			in.ProjectID = &pid
		}
	}
	if in.AssigneeUserID == nil && !isUnassigned(in.Assignee) {
		if uid, ok := dir.ResolveUser(in.Assignee); ok {
			in.AssigneeUserID = &uid
		}
	}
}

// ConfirmRequest asks to execute a previously returned intent.
type ConfirmRequest struct {
	TurnID           string        `json:"turnId,omitempty"`
	Intent           intent.Intent `json:"intent"`
	ActorUserID      int64         `json:"actorUserId"`
	CurrentProjectID *int64        `json:"currentProjectId,omitempty"`
	// AutoFill fills blank required fields of a create before executing.
	AutoFill bool `json:"autoFill"`
}

// Outcome is the result of a confirmed action.
type Outcome struct {
	Action  intent.Action `json:"action"`
	State   turn.State    `json:"state"`
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Task    *models.Task  `json:"task,omitempty"`
	TaskID  int64         `json:"taskId,omitempty"`
}

// Confirm re-validates req.Intent against the live store and executes it.
// Blocked intents are refused with a turn failure; an update that resolves
// to no fields is a no-op that never reaches the store.
func (e *Engine) Confirm(ctx context.Context, req ConfirmRequest) (*Outcome, error) {
	log := e.log.With(zap.String("turn_id", req.TurnID))
	in := req.Intent
	if in.Action == "" {
		in.Action = intent.ActionCreate
	}

	c := turn.Classify(in)
	m, err := turn.NewMachine(c, in.NeedsClarification)
	if err != nil {
		return nil, fmt.Errorf("turn machine: %w", err)
	}

	switch c.State {
	case turn.StateBlockedMissingID:
		return nil, failure.New(failure.ErrMissingReference, c.Message)
	case turn.StateBlockedClarification:
		return nil, failure.New(failure.ErrAmbiguous, c.Message)
	}
	if req.ActorUserID <= 0 {
		return nil, failure.New(failure.ErrValidation, executor.MsgSignedIn)
	}

	snap, err := e.snapshots.Build(ctx)
	if err != nil {
		return nil, failure.Wrap(failure.ErrUngrounded, "", err)
	}
	dir := resolver.NewDirectory(snap.Projects, snap.Users)

	if c.State == turn.StateBlockedMissingFields {
		if !req.AutoFill {
			return nil, failure.New(failure.ErrValidation, c.Message)
		}
		opts := e.fill
		opts.Now = e.now()
		e.withRand(func(rng *rand.Rand) {
			in = completion.Fill(in, dir.Usernames(), rng, opts)
		})
		if err := m.AutoFill(); err != nil {
			return nil, fmt.Errorf("turn machine: %w", err)
		}
	}

	out := &Outcome{Action: in.Action}
	switch in.Action {
	case intent.ActionUpdate:
		patch, err := buildPatch(in.UpdatedFields, dir)
		if err != nil {
			return nil, err
		}
		if patch.Empty() {
			out.State, out.Status, out.Message = m.State(), StatusNoop, executor.MsgEmptyPatch
			out.TaskID = *in.TaskID
			log.Info("update resolved to no fields", zap.Int64("task_id", *in.TaskID))
			return out, nil
		}
		err = e.execute(m, in.Action, func() error {
			task, err := e.exec.Update(ctx, *in.TaskID, req.ActorUserID, patch)
			out.Task = task
			return err
		})
		if err != nil {
			return nil, err
		}
		out.TaskID = *in.TaskID
		out.Message = fmt.Sprintf("Task #%d updated successfully.", *in.TaskID)

	case intent.ActionDelete:
		err := e.execute(m, in.Action, func() error {
			return e.exec.Delete(ctx, *in.TaskID)
		})
		if err != nil {
			return nil, err
		}
		out.TaskID = *in.TaskID
		out.Message = fmt.Sprintf("Task #%d deleted.", *in.TaskID)

	default:
		var input executor.CreateInput
		var err error
		e.withRand(func(rng *rand.Rand) {
			input, err = buildCreate(in, dir, req, rng)
		})
		if err != nil {
			return nil, err
		}
		err = e.execute(m, in.Action, func() error {
			task, err := e.exec.Create(ctx, input)
			out.Task = task
			return err
		})
		if err != nil {
			return nil, err
		}
		out.TaskID = out.Task.ID
		out.Message = "Task created successfully."
	}

	out.State, out.Status = m.State(), StatusCompleted
	log.Info("turn completed", zap.String("action", string(in.Action)), zap.Int64("task_id", out.TaskID))
	return out, nil
}

// execute drives the machine through executing into completed or failed.
// Executor failures come back prefixed with the action for display.
func (e *Engine) execute(m *turn.Machine, action intent.Action, run func() error) error {
	if err := m.Confirm(); err != nil {
		return fmt.Errorf("turn machine: %w", err)
	}
	if err := run(); err != nil {
		_ = m.Fail()
		e.log.Warn("execution failed", zap.String("action", string(action)), zap.Error(err))
		return describe(action, err)
	}
	return m.Succeed()
}

func describe(action intent.Action, err error) error {
	kind := failure.KindOf(err)
	if kind == nil {
		kind = failure.ErrStore
	}
	msg := fmt.Sprintf("Unable to %s the task: %s", action, failure.UserMessage(err))
	return failure.Wrap(kind, msg, err)
}

func (e *Engine) withRand(fn func(*rand.Rand)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.rng)
}
