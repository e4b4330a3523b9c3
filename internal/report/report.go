package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/scout/internal/storage"
)

// Summary aggregates the search audit log over a time span.
type Summary struct {
	TotalSearches  int            `json:"total_searches"`
	Found          int            `json:"found"`
	NotFound       int            `json:"not_found"`
	FoundRate      float64        `json:"found_rate"`
	WinsByProvider map[string]int `json:"wins_by_provider"`
	ErrorsByKind   map[string]int `json:"errors_by_kind"`
	TotalAttempts  int            `json:"total_attempts"`
	TotalWarnings  int            `json:"total_warnings"`
	AvgAttempts    float64        `json:"avg_attempts"`
	AvgDuration    time.Duration  `json:"avg_duration"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
	Span           time.Duration  `json:"span"`
}

// GenerateSummary aggregates records. Order does not matter.
func GenerateSummary(records []*storage.SearchRecord) Summary {
	s := Summary{
		WinsByProvider: make(map[string]int),
		ErrorsByKind:   make(map[string]int),
	}

	if len(records) == 0 {
		return s
	}

	s.StartTime = records[0].CreatedAt
	s.EndTime = records[0].CreatedAt

	var total time.Duration
	for _, r := range records {
		s.TotalSearches++
		s.TotalAttempts += r.Attempts
		s.TotalWarnings += r.Warnings
		total += r.Duration

		if r.Found {
			s.Found++
			if r.Provider != "" {
				s.WinsByProvider[r.Provider]++
			}
		} else {
			s.NotFound++
		}
		if r.Error != "" {
			s.ErrorsByKind[r.Error]++
		}

		if r.CreatedAt.Before(s.StartTime) {
			s.StartTime = r.CreatedAt
		}
		if r.CreatedAt.After(s.EndTime) {
			s.EndTime = r.CreatedAt
		}
	}

	n := float64(s.TotalSearches)
	s.FoundRate = float64(s.Found) / n
	s.AvgAttempts = float64(s.TotalAttempts) / n
	s.AvgDuration = total / time.Duration(s.TotalSearches)
	s.Span = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes the summary as indented JSON.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

const textTmpl = `Scout Search Summary
--------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Span:          {{.Span}}
Searches:      {{.TotalSearches}}
Found:         {{.Found}} ({{percent .FoundRate}})
Not found:     {{.NotFound}}
Attempts:      {{.TotalAttempts}} (avg {{printf "%.2f" .AvgAttempts}})
Warnings:      {{.TotalWarnings}}
Avg duration:  {{.AvgDuration}}

Wins by provider:
{{- range $name, $count := .WinsByProvider}}
  {{$name}}: {{$count}}
{{- else}}
  None
{{- end}}

Errors:
{{- range $kind, $count := .ErrorsByKind}}
  {{$kind}}: {{$count}}
{{- else}}
  None
{{- end}}
`

var textTemplate = template.Must(template.New("textReport").Funcs(template.FuncMap{
	"percent": func(f float64) string { return fmt.Sprintf("%.1f%%", f*100) },
}).Parse(textTmpl))

// WriteText writes a human-readable summary.
func WriteText(w io.Writer, summary Summary) error {
	if err := textTemplate.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render text: %w", err)
	}
	return nil
}
