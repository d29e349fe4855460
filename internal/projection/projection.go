// Package projection computes read-only dashboard aggregates and filtered
// views over the latest committed registry snapshot.
package projection

import (
	"cmp"
	"context"
	"sort"
	"strings"
	"time"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/registry"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Source supplies committed registry state.
type Source interface {
	Snapshot(ctx context.Context) registry.Snapshot
}

// AnchorSource supplies anchoring records. It may be nil.
type AnchorSource interface {
	List() []domain.AnchorRecord
}

type Projection struct {
	src     Source
	anchors AnchorSource
}

func New(src Source, anchors AnchorSource) *Projection {
	return &Projection{src: src, anchors: anchors}
}

// StatusVolume is the number of credits in one status and their combined amount.
type StatusVolume struct {
	Count  int   `json:"count"`
	Volume int64 `json:"volume"`
}

// DashboardStats aggregates the registry for the dashboard.
type DashboardStats struct {
	TotalProjects     int                                  `json:"total_projects"`
	ProjectsByStatus  map[domain.ProjectStatus]int         `json:"projects_by_status"`
	TotalCredits      int                                  `json:"total_credits"`
	TotalVolume       int64                                `json:"total_volume"`
	CreditsByStatus   map[domain.CreditStatus]StatusVolume `json:"credits_by_status"`
	TotalValue        float64                              `json:"total_value"`
	CarbonSequestered int64                                `json:"carbon_sequestered"`
	PendingReviews    int                                  `json:"pending_reviews"`
	ApprovedReviews   int                                  `json:"approved_reviews"`
	RejectedReviews   int                                  `json:"rejected_reviews"`
	AnchorsByStatus   map[domain.AnchorStatus]int          `json:"anchors_by_status"`
	AsOf              time.Time                            `json:"as_of"`
}

// Dashboard computes aggregates over one snapshot. Total value counts
// price times amount of every non-pending credit.
func (p *Projection) Dashboard(ctx context.Context) DashboardStats {
	snap := p.src.Snapshot(ctx)

	stats := DashboardStats{
		TotalProjects: len(snap.Projects),
		ProjectsByStatus: map[domain.ProjectStatus]int{
			domain.ProjectStatusPending:   0,
			domain.ProjectStatusActive:    0,
			domain.ProjectStatusCompleted: 0,
			domain.ProjectStatusSuspended: 0,
		},
		TotalCredits: len(snap.Credits),
		CreditsByStatus: map[domain.CreditStatus]StatusVolume{
			domain.CreditStatusPending:  {},
			domain.CreditStatusVerified: {},
			domain.CreditStatusSold:     {},
			domain.CreditStatusRetired:  {},
		},
		AnchorsByStatus: map[domain.AnchorStatus]int{
			domain.AnchorStatusQueued:    0,
			domain.AnchorStatusSubmitted: 0,
			domain.AnchorStatusConfirmed: 0,
			domain.AnchorStatusFailed:    0,
		},
		AsOf: snap.TakenAt,
	}

	for _, pr := range snap.Projects {
		stats.ProjectsByStatus[pr.Status]++
	}

	for _, c := range snap.Credits {
		sv := stats.CreditsByStatus[c.Status]
		sv.Count++
		sv.Volume += c.Amount
		stats.CreditsByStatus[c.Status] = sv
		stats.TotalVolume += c.Amount

		if c.Status != domain.CreditStatusPending {
			stats.TotalValue += c.Value()
		}
		if c.Status.CountsTowardCapacity() {
			stats.CarbonSequestered += c.Amount
		}
	}

	for _, r := range snap.Reports {
		switch r.Status {
		case domain.ReportStatusPending:
			stats.PendingReviews++
		case domain.ReportStatusApproved:
			stats.ApprovedReviews++
		case domain.ReportStatusRejected:
			stats.RejectedReviews++
		}
	}

	if p.anchors != nil {
		for _, rec := range p.anchors.List() {
			stats.AnchorsByStatus[rec.Status]++
		}
	}
	return stats
}

// Page is one page of a filtered view.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func paginate[T any](items []T, page, pageSize int) Page[T] {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	out := Page[T]{Total: len(items), Page: page, PageSize: pageSize, Items: []T{}}
	if page-1 >= (len(items)+pageSize-1)/pageSize {
		return out
	}
	start := (page - 1) * pageSize
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	out.Items = items[start:end]
	return out
}

func matches(query string, fields ...string) bool {
	if query == "" {
		return true
	}
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// less orders two keys, reversing when desc is set.
func less[T cmp.Ordered](a, b T, desc bool) bool {
	if desc {
		return a > b
	}
	return a < b
}

func sortStable[T any](items []T, lessFn func(a, b T) bool) {
	sort.SliceStable(items, func(i, j int) bool { return lessFn(items[i], items[j]) })
}
