package analysis

// Issue is a single finding reported by a review or security scan.
type Issue struct {
	Type       string `json:"type"`
	Severity   string `json:"severity"`
	Line       int    `json:"line,omitempty"`
	File       string `json:"file,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Review is a structured code review.
type Review struct {
	Status          string   `json:"status"`
	Score           int      `json:"score"`
	Issues          []Issue  `json:"issues"`
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}

// TestFile is one generated test file.
type TestFile struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// TestSuite is the tests generated for one source file.
type TestSuite struct {
	TestsGenerated   int        `json:"tests_generated"`
	TestFiles        []TestFile `json:"test_files"`
	CoverageEstimate float64    `json:"coverage_estimate"`
	TestFramework    string     `json:"test_framework"`
}

// Security risk levels.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// SecurityReport is a structured security scan of a change.
type SecurityReport struct {
	RiskLevel       string   `json:"risk_level"`
	Vulnerabilities []Issue  `json:"vulnerabilities"`
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}

// NeedsAttention reports whether the risk warrants a notification.
func (r SecurityReport) NeedsAttention() bool {
	return r.RiskLevel == RiskHigh || r.RiskLevel == RiskCritical
}

// CostReport is a structured resource cost analysis.
type CostReport struct {
	EstimatedMonthlyUSD float64  `json:"estimated_monthly_usd"`
	Efficiency          string   `json:"efficiency"`
	Recommendations     []string `json:"recommendations"`
	Summary             string   `json:"summary"`
}
