package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/docpilot/internal/bridge"
	"github.com/xiaot623/docpilot/internal/domain"
	"github.com/xiaot623/docpilot/internal/runloop"
	"github.com/xiaot623/docpilot/internal/tools"
)

// StartRun accepts a run and returns its id without waiting for it. The run
// proceeds in the background until it completes or fails.
func (s *Service) StartRun(ctx context.Context, sessionID string, req domain.StartRunRequest) (*domain.StartRunResponse, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	if err := validateRunRequest(req); err != nil {
		return nil, err
	}

	maxRounds := req.MaxRounds
	if maxRounds == 0 {
		maxRounds = s.config.MaxRounds
	}
	mode := req.ToolExecution
	if mode == "" {
		mode = s.config.ToolExecution
	}

	run := &domain.Run{
		RunID:         "run_" + uuid.New().String(),
		SessionID:     sess.ID,
		Status:        domain.RunStatusRunning,
		ToolExecution: mode,
		MaxRounds:     maxRounds,
		StartedAt:     time.Now(),
	}
	ar := &activeRun{run: run}
	if err := sess.reserve(ar); err != nil {
		return nil, err
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		sess.release(run.RunID)
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	logger := s.logger.With("session_id", sess.ID, "run_id", run.RunID)
	obs := &runObserver{svc: s, sess: sess, runID: run.RunID, logger: logger}

	var executor bridge.Executor
	if mode == domain.ToolExecutionClient {
		ar.delegated = bridge.NewDelegated(run.RunID, obs.onToolsRequested)
		executor = ar.delegated
	} else {
		executor = bridge.NewDirect(sess.doc,
			bridge.WithPolicy(s.policyEngine),
			bridge.WithStatusListener(obs),
			bridge.WithLogger(logger),
		)
	}

	s.publish(sess, run.RunID, domain.EventTypeRunStarted, domain.RunStartedPayload{
		RunID:         run.RunID,
		MaxRounds:     maxRounds,
		ToolExecution: mode,
	})
	logger.Info("run started", "max_rounds", maxRounds, "tool_execution", mode)

	machine := runloop.New(s.turns, executor, obs, logger)
	input := runloop.Input{
		RunID:     run.RunID,
		SessionID: sess.ID,
		Messages:  domain.CloneMessages(req.Messages),
		MaxRounds: maxRounds,
	}
	s.runs.Add(1)
	go s.execute(sess, machine, input, logger)

	return &domain.StartRunResponse{RunID: run.RunID}, nil
}

func validateRunRequest(req domain.StartRunRequest) error {
	if err := domain.ValidateMessages(req.Messages); err != nil {
		return err
	}
	var problems []string
	for i, msg := range req.Messages {
		for j, call := range msg.ToolCalls {
			if _, known := tools.DefaultRegistry.Lookup(call.Name); call.Name != "" && !known {
				problems = append(problems, fmt.Sprintf("messages[%d].tool_calls[%d].name: unknown tool %q", i, j, call.Name))
			}
		}
	}
	if len(problems) > 0 {
		return domain.InvalidInput(domain.CodeInvalidMessages, "invalid messages", problems...)
	}
	if req.MaxRounds < 0 {
		return domain.InvalidInput(domain.CodeInvalidRequest, "invalid run request", fmt.Sprintf("max_rounds: must be positive, got %d", req.MaxRounds))
	}
	if req.ToolExecution != "" && !req.ToolExecution.Valid() {
		return domain.InvalidInput(domain.CodeInvalidRequest, "invalid run request",
			fmt.Sprintf("tool_execution: must be %q or %q, got %q", domain.ToolExecutionServer, domain.ToolExecutionClient, req.ToolExecution))
	}
	return nil
}

// execute drives the run to a terminal state. The session is released before
// the terminal event is published, so a subscriber reacting to it can start
// the next run at once.
func (s *Service) execute(sess *Session, machine *runloop.Machine, in runloop.Input, logger *slog.Logger) {
	defer s.runs.Done()

	res, err := machine.Run(s.runCtx, in)
	ctx := context.Background()

	if err != nil {
		rounds := runloop.RoundsOf(err)
		code := domain.CodeOf(err)
		switch {
		case errors.Is(err, context.Canceled):
			code = domain.CodeRunCancelled
			err = fmt.Errorf("run cancelled: server shutting down")
		case code == "":
			code = domain.CodeTurnFailed
		}
		if dbErr := s.store.UpdateRunCompleted(ctx, in.RunID, domain.RunStatusFailed, rounds, "", err.Error()); dbErr != nil {
			logger.Error("failed to record run failure", "error", dbErr)
		}
		sess.release(in.RunID)
		s.publish(sess, in.RunID, domain.EventTypeRunFailed, domain.RunFailedPayload{
			RunID: in.RunID,
			Code:  code,
			Error: err.Error(),
		})
		logger.Warn("run failed", "code", code, "rounds", rounds, "error", err)
		return
	}

	if dbErr := s.store.UpdateRunCompleted(ctx, in.RunID, domain.RunStatusCompleted, res.Rounds, res.AssistantText, ""); dbErr != nil {
		logger.Error("failed to record run completion", "error", dbErr)
	}
	sess.release(in.RunID)
	s.publish(sess, in.RunID, domain.EventTypeRunCompleted, domain.RunCompletedPayload{
		RunID:         in.RunID,
		AssistantText: res.AssistantText,
		Messages:      res.Messages,
		Rounds:        res.Rounds,
	})
	logger.Info("run completed", "rounds", res.Rounds)
}

// runObserver turns run progress into session events.
type runObserver struct {
	svc    *Service
	sess   *Session
	runID  string
	logger *slog.Logger
}

var (
	_ runloop.Observer      = (*runObserver)(nil)
	_ bridge.StatusListener = (*runObserver)(nil)
)

func (o *runObserver) OnAssistantDelta(round int, textDelta string) {
	o.svc.publish(o.sess, o.runID, domain.EventTypeAssistantDelta, domain.AssistantDeltaPayload{
		RunID:     o.runID,
		Round:     round,
		TextDelta: textDelta,
	})
}

func (o *runObserver) OnAssistantTurn(round int, assistantText string, toolCalls []domain.ToolCall) {
	if toolCalls == nil {
		toolCalls = []domain.ToolCall{}
	}
	o.svc.publish(o.sess, o.runID, domain.EventTypeAssistantTurn, domain.AssistantTurnPayload{
		RunID:         o.runID,
		Round:         round,
		AssistantText: assistantText,
		ToolCalls:     toolCalls,
	})
}

// OnToolCallsRequested only logs: delegated batches are announced by the
// bridge with their request id, direct ones through tool.status.
func (o *runObserver) OnToolCallsRequested(round int, toolCalls []domain.ToolCall) {
	o.logger.Debug("dispatching tool calls", "round", round, "count", len(toolCalls))
}

func (o *runObserver) OnToolResults(round int, observations []domain.Observation) {
	o.svc.publish(o.sess, o.runID, domain.EventTypeToolResults, domain.ToolResultsPayload{
		RunID:        o.runID,
		Round:        round,
		Observations: observations,
	})
}

func (o *runObserver) OnToolStatus(ec bridge.ExecContext, call domain.ToolCall, status domain.ToolStatus, errMsg string) {
	o.svc.publish(o.sess, o.runID, domain.EventTypeToolStatus, domain.ToolStatusPayload{
		RunID:      o.runID,
		Round:      ec.Round,
		ToolCallID: call.ID,
		Name:       call.Name,
		Status:     status,
		Error:      errMsg,
	})
}

func (o *runObserver) onToolsRequested(req domain.PendingToolRequest) {
	o.logger.Info("tools requested", "request_id", req.RequestID, "round", req.Round, "count", len(req.ToolCalls))
	o.svc.publish(o.sess, o.runID, domain.EventTypeToolsRequested, domain.ToolsRequestedPayload{
		RunID:     req.RunID,
		RequestID: req.RequestID,
		Round:     req.Round,
		ToolCalls: req.ToolCalls,
	})
}
