// Package optimization provides shared data structures for optimization results.
package optimization

// Summary captures the result of a single model optimization.
type Summary struct {
	ModelID      string   `json:"modelId"`
	Case         string   `json:"case"`
	Formulation  string   `json:"formulation"`
	Solver       string   `json:"solver"`
	Status       string   `json:"status"`
	Objective    float64  `json:"objective"`
	Iterations   int      `json:"iterations"`
	Violation    float64  `json:"violation"`
	TimePeriods  int      `json:"timePeriods"`
	Scenarios    []string `json:"scenarios,omitempty"`
	Duration     string   `json:"duration"`
	Converged    bool     `json:"converged"`
	PlotFile     string   `json:"plotFile,omitempty"`
	Notes        []string `json:"notes,omitempty"`
	ObjectiveFmt string   `json:"objectiveDisplay,omitempty"`
}
