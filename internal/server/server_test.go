package server

import (
	"bytes"
	"encoding/json"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/iwvelando/mpopf/pkg/testutil"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func twoBusYAML(t *testing.T, rate float64) []byte {
	t.Helper()
	data, err := yaml.Marshal(testutil.TwoBusNetwork(0, rate))
	if err != nil {
		t.Fatalf("failed to marshal network: %v", err)
	}
	return data
}

func uploadRequest(t *testing.T, target, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field %s: %v", k, err)
		}
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("failed to write form data: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHandleOptimizeSuccess(t *testing.T) {
	handler := NewHandler(zap.NewNop(), nil, "test")

	req := uploadRequest(t, "/api/optimize", "two_bus.yaml", twoBusYAML(t, 30), map[string]string{
		"formulation": "DC",
		"timePeriods": "2",
		"factors":     "1, 1.2",
	})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp optimizeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	// period 1: 30 MW at 10 + 20 MW at 20; period 2: 30 MW at 10 + 30 MW at 20
	if math.Abs(resp.Summary.Objective-1600) > 1e-6 {
		t.Fatalf("expected objective 1600, got %v", resp.Summary.Objective)
	}
	if !resp.Summary.Converged || resp.Summary.TimePeriods != 2 {
		t.Fatalf("unexpected summary %+v", resp.Summary)
	}
	if len(resp.Solutions) != 1 || len(resp.Solutions[0].Periods) != 2 {
		t.Fatalf("expected one solution with two periods, got %+v", resp.Solutions)
	}
	if !strings.HasPrefix(resp.Output, "Optimal cost: ") {
		t.Fatalf("expected printed cost, got %q", resp.Output)
	}
	if !strings.HasPrefix(resp.CSV, "scenario,period,element,id,quantity,value") {
		t.Fatalf("expected CSV data in response, got %q", resp.CSV)
	}
	if resp.Duration == "" {
		t.Fatal("expected duration in response")
	}
}

func TestHandleOptimizeScenarios(t *testing.T) {
	handler := NewHandler(zap.NewNop(), nil, "test")

	req := uploadRequest(t, "/api/optimize", "two_bus.yaml", twoBusYAML(t, 0), map[string]string{
		"timePeriods": "2",
		"scenarios":   `{"low": {"probability": 0.5, "loadScale": [1, 0.8]}, "high": {"probability": 0.5, "loadScale": [1, 1.4]}}`,
	})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp optimizeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Solutions) != 2 || resp.Solutions[0].Scenario != "high" || resp.Solutions[1].Scenario != "low" {
		t.Fatalf("expected two sorted scenario solutions, got %+v", resp.Solutions)
	}
	want := 500 + 0.5*700 + 0.5*400
	if math.Abs(resp.Summary.Objective-want) > 1e-6 {
		t.Fatalf("expected objective %v, got %v", want, resp.Summary.Objective)
	}
}

func TestHandleOptimizeErrors(t *testing.T) {
	handler := NewHandler(zap.NewNop(), nil, "test")
	valid := twoBusYAML(t, 0)

	tests := []struct {
		name     string
		filename string
		data     []byte
		fields   map[string]string
		status   int
		errText  string
	}{
		{name: "missing file", status: http.StatusBadRequest, errText: "missing case file"},
		{name: "unsupported extension", filename: "case.raw", data: valid, status: http.StatusBadRequest, errText: "extension"},
		{name: "unknown formulation", filename: "case.yaml", data: valid, fields: map[string]string{"formulation": "socp"}, status: http.StatusBadRequest, errText: "formulation"},
		{name: "bad periods", filename: "case.yaml", data: valid, fields: map[string]string{"timePeriods": "two"}, status: http.StatusBadRequest, errText: "timePeriods"},
		{name: "bad factor", filename: "case.yaml", data: valid, fields: map[string]string{"factors": "1,x"}, status: http.StatusBadRequest, errText: "factor"},
		{name: "bad ramping cost", filename: "case.yaml", data: valid, fields: map[string]string{"rampingCost": "1.5"}, status: http.StatusBadRequest, errText: "rampingCost"},
		{name: "bad scenarios", filename: "case.yaml", data: valid, fields: map[string]string{"scenarios": "{"}, status: http.StatusBadRequest, errText: "scenarios"},
		{name: "factor count", filename: "case.yaml", data: valid, fields: map[string]string{"timePeriods": "3", "factors": "1,2"}, status: http.StatusBadRequest, errText: "factors"},
		{name: "zero periods", filename: "case.yaml", data: valid, fields: map[string]string{"timePeriods": "0"}, status: http.StatusBadRequest, errText: "time period"},
		{name: "negative ramping cost", filename: "case.yaml", data: valid, fields: map[string]string{"rampingCost": "-2"}, status: http.StatusBadRequest, errText: "ramping cost"},
		{name: "lp for ac", filename: "case.yaml", data: valid, fields: map[string]string{"formulation": "ac", "modelType": "lp"}, status: http.StatusBadRequest, errText: "model type"},
		{name: "malformed case", filename: "case.m", data: []byte("function mpc = broken\nmpc.baseMVA = ;\n"), status: http.StatusUnprocessableEntity, errText: "failed to build model"},
		{
			name:     "negative cost count",
			filename: "case.m",
			data: []byte("function mpc = bad\nmpc.baseMVA = 100;\nmpc.bus = [1 3 0 0 0 0 1 1 0 230 1 1.1 0.9;];\n" +
				"mpc.gen = [1 0 0 10 -10 1 100 1 10 0;];\nmpc.gencost = [2 0 0 -1 0;];\n"),
			status:  http.StatusUnprocessableEntity,
			errText: "invalid cost count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := uploadRequest(t, "/api/optimize", tt.filename, tt.data, tt.fields)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
			var resp map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if !strings.Contains(resp["error"], tt.errText) {
				t.Fatalf("expected error mentioning %q, got %q", tt.errText, resp["error"])
			}
		})
	}
}

func TestHandleOptimizeUploadLimit(t *testing.T) {
	cfg := &Config{}
	cfg.SetUploadSizeBytes(64)
	handler := NewHandler(zap.NewNop(), cfg, "test")

	req := uploadRequest(t, "/api/optimize", "two_bus.yaml", twoBusYAML(t, 0), nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleRef(t *testing.T) {
	handler := NewHandler(zap.NewNop(), nil, "test")
	data, err := os.ReadFile(testutil.CasePath("case5.m"))
	if err != nil {
		t.Fatalf("failed to read case: %v", err)
	}

	req := uploadRequest(t, "/api/ref", "case5.m", data, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp refResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Name != "case5" || resp.RefBus != 4 || resp.Buses != 5 || resp.Gens != 5 || resp.Branches != 6 {
		t.Fatalf("unexpected reference summary %+v", resp)
	}
	if resp.Arcs != 2*resp.Branches {
		t.Fatalf("expected two arcs per branch, got %d", resp.Arcs)
	}
	if math.Abs(resp.LoadMW-1000) > 1e-9 {
		t.Fatalf("expected 1000 MW of load, got %v", resp.LoadMW)
	}
}

func TestHandleRefRejectsInvalidNetwork(t *testing.T) {
	handler := NewHandler(zap.NewNop(), nil, "test")
	n := testutil.TwoBusNetwork(0, 0)
	n.Buses[0].Type = 1
	data, err := yaml.Marshal(n)
	if err != nil {
		t.Fatalf("failed to marshal network: %v", err)
	}

	req := uploadRequest(t, "/api/ref", "two_bus.yaml", data, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "reference bus") {
		t.Fatalf("expected reference bus error, got %s", rr.Body.String())
	}
}

func TestHandleRefRejectsMalformedCostRow(t *testing.T) {
	handler := NewHandler(zap.NewNop(), nil, "test")
	data := []byte("function mpc = bad\nmpc.baseMVA = 100;\n" +
		"mpc.bus = [1 3 0 0 0 0 1 1 0 230 1 1.1 0.9;];\n" +
		"mpc.gen = [1 0 0 10 -10 1 100 1 10 0;];\n" +
		"mpc.gencost = [2 0 0 -1 0;];\n")

	req := uploadRequest(t, "/api/ref", "bad.m", data, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "invalid cost count") {
		t.Fatalf("expected cost count error, got %s", rr.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := NewHandler(zap.NewNop(), nil, "test")
	for _, tc := range []struct {
		method string
		target string
	}{
		{http.MethodGet, "/api/optimize"},
		{http.MethodGet, "/api/ref"},
		{http.MethodPost, "/api/version"},
	} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.target, nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405, got %d", tc.method, tc.target, rr.Code)
		}
	}
}

func TestHandleVersion(t *testing.T) {
	for _, tc := range []struct {
		version string
		want    string
	}{
		{"1.2.3", "1.2.3"},
		{"  ", "dev"},
	} {
		handler := NewHandler(zap.NewNop(), nil, tc.version)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/version", nil))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["version"] != tc.want {
			t.Fatalf("expected version %q, got %q", tc.want, resp["version"])
		}
	}
}
