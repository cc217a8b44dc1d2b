// Package cli renders command results for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hyperjump/cratedig/internal/library"
	"github.com/hyperjump/cratedig/internal/models"
	"github.com/hyperjump/cratedig/internal/organizer"
	"github.com/hyperjump/cratedig/internal/storage"
	"github.com/hyperjump/cratedig/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable tables (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const pathWidth = 60

// ParseFormat parses a --output value.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteDuplicates writes a clustering result.
func WriteDuplicates(w io.Writer, r *models.ClusteringResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, r)
	}
	fmt.Fprintf(w, "%d files, %d duplicate groups, %d duplicates, %d unique\n",
		r.TotalFiles, r.GroupCount, r.TotalDuplicates, r.UniqueCount)
	if len(r.Unfingerprinted) > 0 {
		fmt.Fprintf(w, "%d files could not be fingerprinted\n", len(r.Unfingerprinted))
	}
	if len(r.Groups) == 0 {
		return nil
	}
	var rows [][]string
	for i, g := range r.Groups {
		for j, m := range g.Members {
			row := []string{"", "", utils.TruncateMiddle(m, pathWidth)}
			if j == 0 {
				row[0] = strconv.Itoa(i + 1)
				row[1] = g.Kind
			}
			if m == g.Representative {
				row[2] += " *"
			}
			rows = append(rows, row)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTable([]string{"Group", "Kind", "File"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft}))
	return nil
}

// WriteScanResult writes the summary of a directory scan.
func WriteScanResult(w io.Writer, r *models.ScanResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, r)
	}
	rows := [][]string{
		{"Directory", r.Directory},
		{"Files", strconv.Itoa(r.TotalFiles)},
		{"Size", humanize.Bytes(uint64(max(r.TotalSize, 0)))},
		{"Fingerprinted", strconv.Itoa(r.Fingerprinted)},
		{"Cached", strconv.Itoa(r.Cached)},
		{"Failed", strconv.Itoa(r.Failed)},
	}
	fmt.Fprintln(w, renderTable([]string{"Scan", ""}, rows, nil))
	if r.Duplicates != nil {
		return WriteDuplicates(w, r.Duplicates, format)
	}
	return nil
}

// WriteSearchResults writes search hits, noting any spelling correction.
func WriteSearchResults(w io.Writer, r *library.SearchResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, r)
	}
	if r.Correction != nil && r.Correction.Changed {
		fmt.Fprintf(w, "No results for %q, showing results for %q\n", r.Correction.Query, r.Correction.Corrected)
	}
	fmt.Fprintf(w, "Found %d tracks in %s\n", r.Total, r.Took.Round(time.Microsecond))
	if len(r.Hits) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(r.Hits))
	for i, h := range r.Hits {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			fmt.Sprintf("%.3f", h.Score),
			h.Track.Format,
			humanize.Bytes(uint64(max(h.Track.Size, 0))),
			utils.TruncateMiddle(h.Track.Path, pathWidth),
		})
	}
	fmt.Fprintln(w, renderTable([]string{"#", "Score", "Format", "Size", "Path"}, rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignLeft}))
	return nil
}

// WriteAnalysis writes a track's measurements and quality report.
func WriteAnalysis(w io.Writer, a *library.Analysis, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, a)
	}
	t := a.Track
	rows := [][]string{
		{"Path", t.Path},
		{"Format", t.Format},
		{"Size", humanize.Bytes(uint64(max(t.Size, 0)))},
	}
	if m := t.Metrics; m != nil {
		rows = append(rows,
			[]string{"Codec", m.Codec},
			[]string{"Sample rate", humanize.Comma(int64(m.SampleRate)) + " Hz"},
			[]string{"Duration", fmt.Sprintf("%.1fs", m.Duration)},
			[]string{"Loudness", optFloat(m.LUFS, "LUFS")},
			[]string{"True peak", optFloat(m.TruePeak, "dBTP")},
			[]string{"Loudness range", optFloat(m.LoudnessRange, "LU")},
			[]string{"Clipping", strconv.FormatBool(m.HasClipping)},
		)
	}
	rows = append(rows,
		[]string{"Quality score", strconv.Itoa(a.Report.Score)},
		[]string{"Classification", a.Report.Classification},
		[]string{"Suggested folder", a.Report.Folder},
		[]string{"Action", a.Report.Action},
	)
	fmt.Fprintln(w, renderTable([]string{"Track", ""}, rows, nil))
	for i, issue := range a.Report.Issues {
		fmt.Fprintf(w, "  ! %s", issue)
		if i < len(a.Report.Recommendations) {
			fmt.Fprintf(w, " (%s)", a.Report.Recommendations[i])
		}
		fmt.Fprintln(w)
	}
	return nil
}

func optFloat(v *float64, unit string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f %s", *v, unit)
}

// WriteStats writes library statistics.
func WriteStats(w io.Writer, s *storage.LibraryStats, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, s)
	}
	rows := [][]string{
		{"Tracks", humanize.Comma(s.Tracks)},
		{"Total size", humanize.Bytes(uint64(max(s.TotalSize, 0)))},
		{"Fingerprinted", humanize.Comma(s.Fingerprinted)},
		{"Distinct fingerprints", humanize.Comma(s.DistinctFingerprints)},
		{"Analyzed", humanize.Comma(s.Analyzed)},
		{"Clipped", humanize.Comma(s.Clipped)},
	}
	if s.AvgLUFS != nil {
		rows = append(rows, []string{"Average loudness", fmt.Sprintf("%.1f LUFS", *s.AvgLUFS)})
	}
	if s.AvgQualityScore != nil {
		rows = append(rows, []string{"Average quality", fmt.Sprintf("%.0f", *s.AvgQualityScore)})
	}
	fmt.Fprintln(w, renderTable([]string{"Library", ""}, rows, []columnAlignment{alignLeft, alignRight}))
	if len(s.ByFormat) > 0 {
		formats := make([]string, 0, len(s.ByFormat))
		for f := range s.ByFormat {
			formats = append(formats, f)
		}
		sort.Strings(formats)
		fr := make([][]string, 0, len(formats))
		for _, f := range formats {
			fr = append(fr, []string{f, humanize.Comma(s.ByFormat[f])})
		}
		fmt.Fprintln(w, renderTable([]string{"Format", "Tracks"}, fr, []columnAlignment{alignLeft, alignRight}))
	}
	return nil
}

// WriteOrganize writes an organize outcome.
func WriteOrganize(w io.Writer, plan *organizer.Plan, out *organizer.Outcome, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, out)
	}
	if out.DryRun {
		fmt.Fprintf(w, "Dry run: %d moves planned into %s (use --apply to move files)\n", len(out.Moves), plan.OutDir)
	} else {
		fmt.Fprintf(w, "Moved %d of %d files into %s\n", out.Moved, len(out.Moves), plan.OutDir)
	}
	counts := plan.Count()
	reasons := make([]string, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(w, "  %-10s %d\n", r, counts[r])
	}
	if len(out.Moves) > 0 {
		rows := make([][]string, 0, len(out.Moves))
		for _, m := range out.Moves {
			rows = append(rows, []string{m.Reason, utils.TruncateMiddle(m.Source, pathWidth), utils.TruncateMiddle(m.Dest, pathWidth)})
		}
		fmt.Fprintln(w, renderTable([]string{"Reason", "From", "To"}, rows, nil))
	}
	for _, e := range out.Errors {
		fmt.Fprintf(w, "  error: %s: %s\n", e.Source, e.Err)
	}
	return nil
}

// WriteTask writes a task snapshot.
func WriteTask(w io.Writer, t models.Task, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, t)
	}
	fmt.Fprintf(w, "%s %s %s %5.1f%% %s (%d/%d)\n", t.ID, t.Kind, t.Status, t.Progress, t.Phase, t.Completed, t.Total)
	if t.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", t.Error)
	}
	return nil
}
