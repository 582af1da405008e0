package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/queryloom/queryloom/internal/pipeline"
	"github.com/queryloom/queryloom/internal/viz"
)

type queryRequest struct {
	Question string `json:"question"`
	Execute  *bool  `json:"execute"`
}

type queryResponse struct {
	SQL     string           `json:"sql"`
	Intent  string           `json:"intent"`
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
	Figure  *viz.Figure      `json:"figure"`
	Repairs int              `json:"repairs"`
	Cached  bool             `json:"cached,omitempty"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "PIPELINE_UNAVAILABLE", "query pipeline is not configured", false)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid JSON", false)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "question is required", false)
		return
	}
	execute := true
	if req.Execute != nil {
		execute = *req.Execute
	}

	resp, err := deps.Pipeline.Handle(r.Context(), pipeline.Request{
		Question: req.Question,
		Execute:  execute,
	})
	if err != nil {
		status, code, detail, retryable := mapPipelineError(err)
		writeError(r.Context(), w, status, code, detail, retryable)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		SQL:     resp.SQL,
		Intent:  string(resp.Intent),
		Columns: resp.Columns,
		Rows:    resp.Rows,
		Figure:  resp.Figure,
		Repairs: len(resp.Repairs),
		Cached:  resp.Cached,
	})
}

func mapPipelineError(err error) (status int, code, detail string, retryable bool) {
	var terminal *pipeline.Error
	if !errors.As(err, &terminal) {
		return http.StatusInternalServerError, "INTERNAL", "unexpected pipeline failure", false
	}
	switch terminal.Code {
	case pipeline.CodeUnsupportedQuestion, pipeline.CodeRepairExhausted:
		status = http.StatusUnprocessableEntity
	case pipeline.CodeClassificationFailed, pipeline.CodeGenerationFailed:
		status = http.StatusBadGateway
	case pipeline.CodeExecutionFailed:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}
	return status, terminal.Code, terminal.Detail, terminal.Retryable
}
