package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/APIExplore/api-explore-backend/internal/types"
)

// Report represents one sequence run
type Report struct {
	Timestamp time.Time          `json:"timestamp"`
	Schema    string             `json:"schema"`
	Sequence  string             `json:"sequence"`
	Metrics   types.Metrics      `json:"metrics"`
	Warnings  []types.Warning    `json:"warnings,omitempty"`
	Summary   string             `json:"summary,omitempty"`
	Calls     []types.CallResult `json:"calls,omitempty"`
}

// Summarizer writes a prose summary of a report
type Summarizer interface {
	Summarize(ctx context.Context, report *Report) (string, error)
}

// ReportingConfig holds the configuration for reporting
type ReportingConfig struct {
	Format    []string
	OutputDir string
	Detailed  bool
}

// Reporter handles the generation of run reports
type Reporter struct {
	config     ReportingConfig
	summarizer Summarizer
	logger     *zap.Logger
}

// NewReporter creates a new instance of Reporter. summarizer may be nil.
func NewReporter(config ReportingConfig, summarizer Summarizer, logger *zap.Logger) *Reporter {
	return &Reporter{
		config:     config,
		summarizer: summarizer,
		logger:     logger,
	}
}

// ComputeMetrics summarizes the calls of a run. Calls with a status below 400
// count as successful.
func ComputeMetrics(calls []types.CallResult) *types.Metrics {
	m := &types.Metrics{NumCalls: len(calls)}
	for _, call := range calls {
		if call.Response != nil && call.Response.Status < 400 {
			m.SuccessfulCalls++
		} else {
			m.UnsuccessfulCalls++
		}
		m.TotDuration += call.DurationMs
		if call.Response != nil {
			m.TotSize += call.Response.Size
		}
	}
	if m.NumCalls > 0 {
		m.AvgDuration = float64(m.TotDuration) / float64(m.NumCalls)
		m.AvgSize = float64(m.TotSize) / float64(m.NumCalls)
	}
	return m
}

// GenerateReport writes the run report in every configured format and
// returns the written paths
func (r *Reporter) GenerateReport(ctx context.Context, schema, sequence string, run *types.RunResponse) ([]string, error) {
	report := Report{
		Timestamp: time.Now(),
		Schema:    schema,
		Sequence:  sequence,
		Warnings:  run.Warnings,
	}
	if run.Metrics != nil {
		report.Metrics = *run.Metrics
	} else {
		report.Metrics = *ComputeMetrics(run.CallSequence)
	}
	if r.config.Detailed {
		report.Calls = run.CallSequence
	}

	if r.summarizer != nil {
		summary, err := r.summarizer.Summarize(ctx, &report)
		if err != nil {
			// the report is still useful without a summary
			r.logger.Warn("failed to summarize run", zap.String("sequence", sequence), zap.Error(err))
		}
		report.Summary = summary
	}

	if err := os.MkdirAll(r.config.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	var paths []string
	for _, format := range r.config.Format {
		var (
			path string
			err  error
		)
		switch format {
		case "json":
			path, err = r.generateJSONReport(report)
		case "html":
			path, err = r.generateHTMLReport(report)
		default:
			r.logger.Warn("unknown report format", zap.String("format", format))
			continue
		}
		if err != nil {
			return paths, fmt.Errorf("failed to generate %s report: %w", format, err)
		}
		r.logger.Info("report generated", zap.String("path", path))
		paths = append(paths, path)
	}
	return paths, nil
}

func (r *Reporter) reportPath(report Report, ext string) string {
	name := fmt.Sprintf("report_%s_%s.%s", fileSafe(report.Sequence), report.Timestamp.Format("20060102_150405"), ext)
	return filepath.Join(r.config.OutputDir, name)
}

// fileSafe keeps letters, digits, '-' and '_' of a sequence name so that it
// always stays a single path element
func fileSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// generateJSONReport generates a JSON format report
func (r *Reporter) generateJSONReport(report Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	path := r.reportPath(report, "json")
	return path, os.WriteFile(path, data, 0644)
}

var htmlReport = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Sequence}} ({{.Schema}})</title></head>
<body>
<h1>{{.Sequence}}</h1>
<p>Schema {{.Schema}}, run at {{.Timestamp.Format "2006-01-02 15:04:05"}}</p>
{{if .Summary}}<p>{{.Summary}}</p>{{end}}
<table>
<tr><th>Calls</th><th>Successful</th><th>Unsuccessful</th><th>Avg duration (ms)</th><th>Avg size (bytes)</th></tr>
<tr><td>{{.Metrics.NumCalls}}</td><td>{{.Metrics.SuccessfulCalls}}</td><td>{{.Metrics.UnsuccessfulCalls}}</td><td>{{printf "%.1f" .Metrics.AvgDuration}}</td><td>{{printf "%.1f" .Metrics.AvgSize}}</td></tr>
</table>
{{if .Warnings}}<h2>Warnings</h2>
<ul>{{range .Warnings}}<li>{{.Warning}}</li>{{end}}</ul>{{end}}
{{if .Calls}}<h2>Calls</h2>
<ol>{{range .Calls}}<li>{{.Method}} {{.URL}}{{if .Response}} &rarr; {{.Response.Status}}{{end}}</li>{{end}}</ol>{{end}}
</body>
</html>
`))

// generateHTMLReport generates an HTML format report
func (r *Reporter) generateHTMLReport(report Report) (string, error) {
	path := r.reportPath(report, "html")
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return path, htmlReport.Execute(file, report)
}
