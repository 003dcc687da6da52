package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/mpopf/internal/mpopf"
	"github.com/iwvelando/mpopf/internal/optimizer"
	"github.com/iwvelando/mpopf/internal/ref"
	"github.com/iwvelando/mpopf/pkg/constants"
	"github.com/iwvelando/mpopf/pkg/mathutil"
	"github.com/iwvelando/mpopf/pkg/optimization"
	"github.com/iwvelando/mpopf/pkg/output"
	"github.com/iwvelando/mpopf/pkg/powerdata"
	"github.com/iwvelando/mpopf/pkg/validation"
	"go.uber.org/zap"
)

type handler struct {
	logger        *zap.Logger
	maxUploadSize int64
	solveTimeout  time.Duration
	version       string
}

// NewHandler constructs the HTTP handler that serves the optimization API.
func NewHandler(logger *zap.Logger, cfg *Config, version string) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxUploadSize := constants.DefaultMaxUploadSizeBytes
	solveTimeout := constants.DefaultSolveTimeout
	if cfg != nil {
		if cfg.UploadSizeBytes() > 0 {
			maxUploadSize = cfg.UploadSizeBytes()
		}
		if cfg.SolveTimeoutDuration() > 0 {
			solveTimeout = cfg.SolveTimeoutDuration()
		}
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{
		logger:        logger,
		maxUploadSize: maxUploadSize,
		solveTimeout:  solveTimeout,
		version:       trimmedVersion,
	}

	mux := http.NewServeMux()

	// Build and solve a model from an uploaded case file
	mux.HandleFunc("/api/optimize", h.handleOptimize)

	// Per-unit reference summary of an uploaded case file
	mux.HandleFunc("/api/ref", h.handleRef)

	mux.HandleFunc("/api/version", h.handleVersion)

	return mux
}

type optimizeResponse struct {
	Summary   optimization.Summary `json:"summary"`
	Solutions []*mpopf.Solution    `json:"solutions"`
	CSV       string               `json:"csv"`
	Output    string               `json:"output"`
	Duration  string               `json:"duration"`
}

type refResponse struct {
	Name     string  `json:"name"`
	BaseMVA  float64 `json:"baseMVA"`
	RefBus   int     `json:"refBus"`
	Buses    int     `json:"buses"`
	Gens     int     `json:"gens"`
	Branches int     `json:"branches"`
	Arcs     int     `json:"arcs"`
	LoadMW   float64 `json:"loadMW"`
	LoadMVAr float64 `json:"loadMVAr"`
}

// optimizeRequest holds the form fields of /api/optimize.
type optimizeRequest struct {
	formulation string
	opts        []mpopf.Option
	scenarios   map[string]mpopf.Scenario
}

func (h *handler) handleOptimize(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleOptimize"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	path, cleanup, ok := h.receiveCase(w, r, op)
	if !ok {
		return
	}
	defer cleanup()

	req, err := parseOptimizeRequest(r, h.logger)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.solveTimeout)
	defer cancel()

	factory, err := mpopf.NewFactory(req.formulation, path, nil)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	var model mpopf.AbstractModel
	var solutions func() []*mpopf.Solution
	if len(req.scenarios) > 0 {
		mu, err := mpopf.CreateModelUncertainty(ctx, factory, req.scenarios, req.opts...)
		if err != nil {
			h.respondErrorWithOp(w, modelErrorStatus(err), fmt.Sprintf("failed to build model: %v", err), op)
			return
		}
		model, solutions = mu, mu.ScenarioSolutions
	} else {
		m, err := mpopf.CreateModel(ctx, factory, req.opts...)
		if err != nil {
			h.respondErrorWithOp(w, modelErrorStatus(err), fmt.Sprintf("failed to build model: %v", err), op)
			return
		}
		model = m
		solutions = func() []*mpopf.Solution {
			sol, _ := m.Solution()
			return []*mpopf.Solution{sol}
		}
	}

	var printed bytes.Buffer
	summary, err := optimizer.OptimizeModel(ctx, h.logger, model, &printed)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		h.respondErrorWithOp(w, status, err.Error(), op)
		return
	}

	sols := solutions()
	var csvBuf bytes.Buffer
	if err := output.CsvFormat(&csvBuf, sols); err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to render CSV: %v", err), op)
		return
	}

	elapsed := time.Since(start)
	h.logger.Info("optimization request served",
		zap.String("op", op),
		zap.String("model_id", summary.ModelID),
		zap.String("formulation", summary.Formulation),
		zap.String("status", summary.Status),
		zap.Int("scenarios", len(sols)),
		zap.Duration("duration", elapsed),
	)

	h.writeJSON(w, http.StatusOK, optimizeResponse{
		Summary:   summary,
		Solutions: sols,
		CSV:       csvBuf.String(),
		Output:    printed.String(),
		Duration:  elapsed.String(),
	})
}

func (h *handler) handleRef(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleRef"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	path, cleanup, ok := h.receiveCase(w, r, op)
	if !ok {
		return
	}
	defer cleanup()

	network, err := powerdata.Load(path)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}
	rf, err := ref.GetRef(network)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	pd, qd := rf.TotalLoad()
	h.writeJSON(w, http.StatusOK, refResponse{
		Name:     rf.Name,
		BaseMVA:  rf.BaseMVA,
		RefBus:   rf.RefBus(),
		Buses:    len(rf.BusIDs),
		Gens:     len(rf.GenIDs),
		Branches: len(rf.BranchIDs),
		Arcs:     len(rf.Arcs),
		LoadMW:   mathutil.Round(pd*rf.BaseMVA, 6),
		LoadMVAr: mathutil.Round(qd*rf.BaseMVA, 6),
	})
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

// receiveCase stores the uploaded "file" part in a temporary file that keeps
// the upload's extension, so the case loader can detect its format.
func (h *handler) receiveCase(w http.ResponseWriter, r *http.Request, op string) (string, func(), bool) {
	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds limit of %d bytes", h.maxUploadSize), op)
			return "", nil, false
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to parse upload: %v", err), op)
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, "missing case file", op)
		return "", nil, false
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			h.logger.Warn("failed to close uploaded file",
				zap.String("op", op),
				zap.Error(closeErr),
			)
		}
	}()

	if err := validation.ValidateCaseFile(header.Filename); err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return "", nil, false
	}

	dir, err := os.MkdirTemp("", "mpopf-upload-")
	if err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to store upload: %v", err), op)
		return "", nil, false
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			h.logger.Warn("failed to remove upload directory",
				zap.String("op", op),
				zap.String("dir", dir),
				zap.Error(err),
			)
		}
	}

	path := filepath.Join(dir, filepath.Base(header.Filename))
	dst, err := os.Create(path)
	if err == nil {
		_, err = io.Copy(dst, file)
		if closeErr := dst.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		cleanup()
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to store upload: %v", err), op)
		return "", nil, false
	}
	return path, cleanup, true
}

func parseOptimizeRequest(r *http.Request, logger *zap.Logger) (*optimizeRequest, error) {
	req := &optimizeRequest{
		formulation: strings.ToLower(strings.TrimSpace(r.FormValue("formulation"))),
		opts:        []mpopf.Option{mpopf.WithLogger(logger)},
	}
	if req.formulation == "" {
		req.formulation = constants.FormulationDC
	}
	if err := validation.ValidateFormulation(req.formulation); err != nil {
		return nil, err
	}

	periods, rampingCost := constants.DefaultTimePeriods, constants.DefaultRampingCost
	var factors []float64
	if v := strings.TrimSpace(r.FormValue("timePeriods")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid timePeriods %q: %w", v, err)
		}
		periods = n
		req.opts = append(req.opts, mpopf.WithTimePeriods(n))
	}
	if v := strings.TrimSpace(r.FormValue("factors")); v != "" {
		var err error
		if factors, err = parseFactors(v); err != nil {
			return nil, err
		}
		req.opts = append(req.opts, mpopf.WithFactors(factors...))
	}
	if v := strings.TrimSpace(r.FormValue("rampingCost")); v != "" {
		c, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid rampingCost %q: %w", v, err)
		}
		rampingCost = c
		req.opts = append(req.opts, mpopf.WithRampingCost(c))
	}
	if err := validation.ValidateSchedule(periods, factors, rampingCost); err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(r.FormValue("modelType")); v != "" {
		mt, err := mpopf.ParseModelType(v)
		if err != nil {
			return nil, err
		}
		req.opts = append(req.opts, mpopf.WithModelType(mt))
	}
	if v := strings.TrimSpace(r.FormValue("scenarios")); v != "" {
		if err := json.Unmarshal([]byte(v), &req.scenarios); err != nil {
			return nil, fmt.Errorf("invalid scenarios: %w", err)
		}
	}
	return req, nil
}

func parseFactors(value string) ([]float64, error) {
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' })
	factors := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid factor %q: %w", f, err)
		}
		factors = append(factors, v)
	}
	return factors, nil
}

func modelErrorStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, mpopf.ErrInvalidOption),
		errors.Is(err, powerdata.ErrInvalidNetwork),
		errors.Is(err, ref.ErrNoReferenceBus),
		errors.Is(err, ref.ErrMultipleReferenceBuses),
		errors.Is(err, ref.ErrZeroImpedance):
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
