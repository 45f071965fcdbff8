package server

import (
	"time"

	"linewatch/internal/domain"
)

type LineStatusResponse struct {
	Line        string              `json:"line"`
	Name        string              `json:"name"`
	StatusURL   string              `json:"status_url,omitempty"`
	UpdatedAt   *string             `json:"updated_at,omitempty" format:"date-time"`
	ActiveCount int                 `json:"active_count"`
	LastCheck   *domain.CheckResult `json:"last_check,omitempty"`
}

type DisruptionResponse struct {
	ID       string  `json:"id"`
	Header   string  `json:"header"`
	Details  string  `json:"details,omitempty"`
	Severity int     `json:"severity,omitempty"`
	Cause    int     `json:"cause,omitempty"`
	Effect   int     `json:"effect,omitempty"`
	Starts   *string `json:"starts,omitempty" format:"date-time"`
	Ends     *string `json:"ends,omitempty" format:"date-time"`
}

func mapDisruptions(records []domain.DisruptionRecord) []DisruptionResponse {
	res := make([]DisruptionResponse, 0, len(records))
	for _, r := range records {
		d := DisruptionResponse{
			ID:       r.ID,
			Header:   r.Header,
			Details:  r.Details,
			Severity: r.Severity,
			Cause:    r.Cause,
			Effect:   r.Effect,
		}
		if len(r.ActivePeriods) > 0 {
			d.Starts = formatBound(r.ActivePeriods[0].Start)
			d.Ends = formatBound(r.ActivePeriods[len(r.ActivePeriods)-1].End)
		}
		res = append(res, d)
	}
	return res
}

func formatBound(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
