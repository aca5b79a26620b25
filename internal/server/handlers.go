package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/bactrack/pkg/affinity"
	"github.com/matzehuels/bactrack/pkg/buildinfo"
	bterrors "github.com/matzehuels/bactrack/pkg/errors"
	pkgio "github.com/matzehuels/bactrack/pkg/io"
	"github.com/matzehuels/bactrack/pkg/pipeline"
	"github.com/matzehuels/bactrack/pkg/tracking"
)

var contentTypes = map[string]string{
	pipeline.FormatJSON:   "application/json",
	pipeline.FormatCSV:    "text/csv; charset=utf-8",
	pipeline.FormatTracks: "text/plain; charset=utf-8",
	pipeline.FormatDOT:    "text/vnd.graphviz; charset=utf-8",
	pipeline.FormatSVG:    "image/svg+xml",
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: buildinfo.Version})
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	opts, format, err := s.requestOptions(r.URL.Query())
	if err != nil {
		s.writeErr(w, err)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	seq, err := pkgio.ReadSequence(body)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	opts.SolverOptions.TimeLimit = solveBudget(opts.SolverOptions.TimeLimit, s.opts.RequestTimeout)
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()
	opts.Logger = s.logger.With("request_id", middleware.GetReqID(r.Context()))

	res, err := s.runner.Execute(ctx, seq, opts)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	w.Header().Set("X-Run-ID", res.RunID)
	if format == pipeline.FormatJSON {
		s.writeJSON(w, http.StatusOK, res.Report())
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Artifacts[format]); err != nil {
		s.logger.Warn("write response", "err", err)
	}
}

// requestOptions overlays the query parameters on the server defaults.
func (s *Server) requestOptions(q url.Values) (pipeline.Options, string, error) {
	opts := s.defaults
	opts.Formats = nil

	format := q.Get("format")
	if format == "" {
		format = pipeline.FormatJSON
	}
	if err := pipeline.ValidateFormats([]string{format}); err != nil {
		return opts, "", err
	}
	if format != pipeline.FormatJSON {
		opts.Formats = []string{format}
	}

	if v := q.Get("solver"); v != "" {
		sv, err := tracking.ParseVariant(v)
		if err != nil {
			return opts, "", err
		}
		opts.Solver = sv
	}
	if v := q.Get("weight"); v != "" {
		wv, err := affinity.ParseVariant(v)
		if err != nil {
			return opts, "", err
		}
		opts.Weights.Variant = wv
	}
	for name, dst := range map[string]*float64{
		"division":  &opts.Costs.Division,
		"appear":    &opts.Costs.Appear,
		"disappear": &opts.Costs.Disappear,
	} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, "", bterrors.Wrap(bterrors.ErrCodeInvalidInput, err, "parameter %s", name)
		}
		*dst = f
	}
	if v := q.Get("time_limit"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return opts, "", bterrors.New(bterrors.ErrCodeInvalidInput, "parameter time_limit: invalid duration %q", v)
		}
		opts.SolverOptions.TimeLimit = d
	}
	if v := q.Get("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, "", bterrors.Wrap(bterrors.ErrCodeInvalidInput, err, "parameter refresh")
		}
		opts.Refresh = b
	}
	return opts, format, nil
}

// solveBudget caps the solver time limit at four fifths of the request
// timeout, leaving room for labeling, weights and rendering, so that a long
// solve ends with its incumbent instead of a cancelled request.
func solveBudget(limit, timeout time.Duration) time.Duration {
	budget := timeout - timeout/5
	if limit <= 0 || limit > budget {
		return budget
	}
	return limit
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", contentTypes[pipeline.FormatJSON])
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	code := string(bterrors.GetCode(err))
	if code == "" {
		code = string(bterrors.ErrCodeInternal)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	s.writeError(w, status, code, strings.TrimPrefix(err.Error(), code+": "))
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch bterrors.GetCode(err) {
	case bterrors.ErrCodeInvalidInput, bterrors.ErrCodeInvalidConfig,
		bterrors.ErrCodeInvalidHierarchy, bterrors.ErrCodeInvalidFormat:
		return http.StatusBadRequest
	case bterrors.ErrCodeNotFound:
		return http.StatusNotFound
	case bterrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case bterrors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
