// Package pipeline drives one question through classification,
// generation, validation, execution and the bounded repair loop.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/queryloom/queryloom/internal/cache"
	"github.com/queryloom/queryloom/internal/executor"
	"github.com/queryloom/queryloom/internal/generate"
	"github.com/queryloom/queryloom/internal/intent"
	"github.com/queryloom/queryloom/internal/observability"
	"github.com/queryloom/queryloom/internal/schema"
	"github.com/queryloom/queryloom/internal/sqlguard"
	"github.com/queryloom/queryloom/internal/viz"
)

type Retriever interface {
	Retrieve(ctx context.Context, question string) schema.Context
}

type Classifier interface {
	Classify(ctx context.Context, question, contextSummary string) (intent.Intent, error)
}

type Request struct {
	Question string
	Execute  bool
}

// RepairAttempt records one trip through the repair state, kept for the
// response and for operators reading the run log.
type RepairAttempt struct {
	Attempt int
	Stage   string
	Reason  string
	SQL     string
}

type Response struct {
	RunID   string
	Intent  intent.Intent
	SQL     string
	Columns []string
	Rows    []map[string]any
	Figure  *viz.Figure
	Repairs []RepairAttempt
	Cached  bool
}

type Options struct {
	// MaxRepairAttempts bounds regenerations after the first attempt;
	// total generations are MaxRepairAttempts+1.
	MaxRepairAttempts int
	RowLimit          int
	StatementTimeout  time.Duration
}

type Service struct {
	Retriever  Retriever
	Classifier Classifier
	Generator  generate.Generator
	Engine     executor.Engine
	Cache      cache.ResultCache
	Logger     *slog.Logger
	Options    Options
}

// Repair loop states. The loop is strictly linear: a failure either
// goes back through Generate or terminates, never to an alternative
// strategy.
type state int

const (
	stateGenerate state = iota
	stateValidate
	stateExecute
	stateRepair
	stateSuccess
	stateExhausted
)

func (s *Service) Handle(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := s.logger().With(
		slog.String("run_id", runID),
	)

	question := strings.TrimSpace(req.Question)

	schemaCtx := s.Retriever.Retrieve(ctx, question)
	allowed := schema.Derive(schemaCtx)

	label, err := s.Classifier.Classify(ctx, question, schemaCtx.PromptText())
	if err != nil {
		observability.ObservePipeline(string(intent.Unsupported), "classification_failed", time.Since(start))
		return Response{}, &Error{Code: CodeClassificationFailed, Detail: err.Error(), Retryable: true}
	}
	if label == intent.Unsupported {
		observability.ObservePipeline(string(label), "unsupported", time.Since(start))
		return Response{}, &Error{Code: CodeUnsupportedQuestion, Detail: "question cannot be answered with a read-only query over the known schema"}
	}

	maxAttempts := s.Options.MaxRepairAttempts + 1
	rowLimit := s.Options.RowLimit
	policy := sqlguard.Policy{Allowed: allowed, MaxRows: rowLimit}

	var (
		attempt  int
		query    generate.Query
		result   executor.Result
		cached   bool
		repairs  []RepairAttempt
		pending  generate.Failure
		failure  *generate.Failure
		terminal *Error
	)

	current := stateGenerate
	for current != stateSuccess && current != stateExhausted && terminal == nil {
		switch current {
		case stateGenerate:
			attempt++
			query, err = s.Generator.Generate(ctx, generate.Input{
				Question: question,
				Context:  schemaCtx,
				Allowed:  allowed,
				Intent:   label,
				RowLimit: rowLimit,
				Failure:  failure,
			})
			if err != nil {
				pending = generate.Failure{Stage: "generation", Reason: err.Error()}
				current = stateRepair
				continue
			}
			query.SQL = sqlguard.EnsureLimit(query.SQL, rowLimit)
			current = stateValidate

		case stateValidate:
			verdict := sqlguard.Validate(query.SQL, policy)
			if !verdict.OK {
				observability.IncrementValidationRejection(verdict.Kind)
				pending = generate.Failure{Stage: "validation", Reason: verdict.Reason(), SQL: query.SQL}
				current = stateRepair
				continue
			}
			if !req.Execute {
				current = stateSuccess
				continue
			}
			current = stateExecute

		case stateExecute:
			if s.Cache != nil {
				if entry, ok := s.Cache.Get(ctx, query.SQL); ok {
					result = executor.Result{Columns: entry.Columns, Rows: entry.Rows}
					cached = true
					current = stateSuccess
					continue
				}
			}
			result, err = s.Engine.Execute(ctx, executor.Request{SQL: query.SQL, Timeout: s.Options.StatementTimeout})
			if err != nil {
				var dbErr *executor.DBError
				if errors.As(err, &dbErr) {
					pending = generate.Failure{Stage: "execution", Reason: dbErr.Error(), SQL: query.SQL}
					current = stateRepair
					continue
				}
				terminal = &Error{Code: CodeExecutionFailed, Detail: err.Error(), Retryable: true}
				continue
			}
			if s.Cache != nil {
				s.Cache.Put(ctx, query.SQL, cache.Entry{Columns: result.Columns, Rows: result.Rows})
			}
			current = stateSuccess

		case stateRepair:
			logger.WarnContext(ctx, "attempt failed",
				slog.Int("attempt", attempt),
				slog.String("stage", pending.Stage),
				slog.String("reason", pending.Reason),
			)
			if attempt >= maxAttempts {
				current = stateExhausted
				continue
			}
			observability.IncrementRepairAttempt(pending.Stage)
			carried := pending
			failure = &carried
			repairs = append(repairs, RepairAttempt{
				Attempt: attempt,
				Stage:   carried.Stage,
				Reason:  carried.Reason,
				SQL:     carried.SQL,
			})
			current = stateGenerate
		}
	}

	if terminal != nil {
		observability.ObservePipeline(string(label), "execution_failed", time.Since(start))
		return Response{}, terminal
	}
	if current == stateExhausted {
		observability.ObservePipeline(string(label), "exhausted", time.Since(start))
		if pending.Stage == "generation" {
			return Response{}, &Error{Code: CodeGenerationFailed, Detail: pending.Reason, Retryable: true}
		}
		return Response{}, &Error{Code: CodeRepairExhausted, Detail: pending.Reason}
	}

	resp := Response{
		RunID:   runID,
		Intent:  label,
		SQL:     query.SQL,
		Repairs: repairs,
		Cached:  cached,
	}
	if req.Execute {
		if label == intent.Visualization {
			figure, err := viz.Build(result.Rows, query.Chart)
			if err != nil {
				// Figure degradation is non-fatal; the SQL already ran.
				logger.WarnContext(ctx, "figure unavailable", slog.Any("error", err))
				figure = nil
			}
			resp.Figure = figure
		} else {
			resp.Columns = result.Columns
			resp.Rows = result.Rows
		}
	}

	logger.InfoContext(ctx, "pipeline completed",
		slog.String("intent", string(label)),
		slog.Int("attempts", attempt),
		slog.Int("rows", len(resp.Rows)),
		slog.Bool("cached", cached),
	)
	observability.ObservePipeline(string(label), "success", time.Since(start))
	return resp, nil
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
