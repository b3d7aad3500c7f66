package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"text/template"
	"time"

	"github.com/FranksOps/llmsearch/internal/storage"
)

// Summary aggregates crawl audit records.
type Summary struct {
	TotalAttempts    int                     `json:"total_attempts"`
	Searches         int                     `json:"searches"`
	Outcomes         map[storage.Outcome]int `json:"outcomes"`
	ErrorKinds       map[string]int          `json:"error_kinds"`
	StatusCodes      map[int]int             `json:"status_codes"`
	DetectionsByBot  map[string]int          `json:"detections_by_vendor"`
	TotalBytes       int64                   `json:"total_bytes"`
	AvgFetchDuration time.Duration           `json:"avg_fetch_duration"`
	StartTime        time.Time               `json:"start_time"`
	EndTime          time.Time               `json:"end_time"`
}

// GenerateSummary aggregates records. Searches counts distinct request ids.
func GenerateSummary(records []*storage.CrawlRecord) Summary {
	s := Summary{
		Outcomes:        make(map[storage.Outcome]int),
		ErrorKinds:      make(map[string]int),
		StatusCodes:     make(map[int]int),
		DetectionsByBot: make(map[string]int),
	}
	if len(records) == 0 {
		return s
	}

	s.StartTime = records[0].CreatedAt
	s.EndTime = records[0].CreatedAt
	requests := make(map[string]struct{})
	var total time.Duration

	for _, r := range records {
		s.TotalAttempts++
		s.Outcomes[r.Outcome]++
		if r.ErrorKind != "" {
			s.ErrorKinds[r.ErrorKind]++
		}
		if r.StatusCode > 0 {
			s.StatusCodes[r.StatusCode]++
		}
		if r.DetectedBot {
			s.DetectionsByBot[r.DetectionSrc]++
		}
		if r.RequestID != "" {
			requests[r.RequestID] = struct{}{}
		}
		s.TotalBytes += r.Bytes
		total += r.Duration

		if r.CreatedAt.Before(s.StartTime) {
			s.StartTime = r.CreatedAt
		}
		if r.CreatedAt.After(s.EndTime) {
			s.EndTime = r.CreatedAt
		}
	}

	s.Searches = len(requests)
	s.AvgFetchDuration = total / time.Duration(s.TotalAttempts)
	return s
}

// WriteJSON writes the summary as indented JSON.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	return nil
}

const textTmpl = `Crawl Audit Summary
-------------------
Window:        {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Searches:      {{.Searches}}
Page fetches:  {{.TotalAttempts}}
Total bytes:   {{.TotalBytes}}
Avg duration:  {{.AvgFetchDuration}}

Outcomes:
{{- range $outcome, $count := .Outcomes}}
  {{$outcome}}: {{$count}}
{{- else}}
  None
{{- end}}

Error kinds:
{{- range $kind, $count := .ErrorKinds}}
  {{$kind}}: {{$count}}
{{- else}}
  None
{{- end}}

Status codes:
{{- range $code, $count := .StatusCodes}}
  {{$code}}: {{$count}}
{{- else}}
  None
{{- end}}

Bot detections:
{{- range $src, $count := .DetectionsByBot}}
  {{$src}}: {{$count}}
{{- else}}
  None
{{- end}}
`

var summaryTemplate = template.Must(template.New("summary").Parse(textTmpl))

// WriteText writes a human-readable summary.
func WriteText(w io.Writer, summary Summary) error {
	if err := summaryTemplate.Execute(w, summary); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	return nil
}

// WriteTable lists records one per line, newest first as given.
func WriteTable(w io.Writer, records []*storage.CrawlRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tREQUEST\tOUTCOME\tSTATUS\tBYTES\tDURATION\tURL")
	for _, r := range records {
		outcome := string(r.Outcome)
		if r.ErrorKind != "" {
			outcome += "/" + r.ErrorKind
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			shortID(r.RequestID),
			outcome,
			r.StatusCode,
			r.Bytes,
			r.Duration.Round(time.Millisecond),
			r.URL,
		)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}
