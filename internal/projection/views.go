package projection

import (
	"context"

	"bluecarbon-registry/internal/core/domain"
)

// CreditView is a credit with the anchoring state of its issuance.
type CreditView struct {
	domain.Credit
	ProjectName  string              `json:"project_name,omitempty"`
	AnchorStatus domain.AnchorStatus `json:"anchor_status,omitempty"`
	AnchorTxRef  string              `json:"anchor_tx_ref,omitempty"`
}

// CreditFilter selects and orders credits. Search matches the serial
// number or an anchoring transaction reference, case-insensitively.
type CreditFilter struct {
	Status       domain.CreditStatus
	ProjectID    string
	AnchorStatus domain.AnchorStatus
	Search       string
	SortBy       string // issued_at (default), amount, price, serial, vintage
	Desc         bool
	Page         int
	PageSize     int
}

func (p *Projection) Credits(ctx context.Context, f CreditFilter) Page[CreditView] {
	snap := p.src.Snapshot(ctx)
	anchors := p.anchorIndex()

	names := make(map[string]string, len(snap.Projects))
	for _, pr := range snap.Projects {
		names[pr.ID] = pr.Name
	}

	query := normalizeQuery(f.Search)
	views := make([]CreditView, 0, len(snap.Credits))
	for _, c := range snap.Credits {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.ProjectID != "" && c.ProjectID != f.ProjectID {
			continue
		}

		v := CreditView{Credit: c, ProjectName: names[c.ProjectID], AnchorTxRef: c.AnchorTxRef}
		if rec, ok := anchors[domain.BuildIssuanceTransitionID(c.ID)]; ok {
			v.AnchorStatus = rec.Status
			if v.AnchorTxRef == "" {
				v.AnchorTxRef = rec.TxRef
			}
		}
		if f.AnchorStatus != "" && v.AnchorStatus != f.AnchorStatus {
			continue
		}
		if !matches(query, c.SerialNumber, v.AnchorTxRef) {
			continue
		}
		views = append(views, v)
	}

	sortStable(views, func(a, b CreditView) bool {
		switch f.SortBy {
		case "amount":
			return less(a.Amount, b.Amount, f.Desc)
		case "price":
			return less(a.PricePerTon, b.PricePerTon, f.Desc)
		case "serial":
			return less(a.SerialNumber, b.SerialNumber, f.Desc)
		case "vintage":
			return less(a.Vintage, b.Vintage, f.Desc)
		}
		if a.IssuedAt.Equal(b.IssuedAt) {
			return less(a.SerialNumber, b.SerialNumber, f.Desc)
		}
		if f.Desc {
			return a.IssuedAt.After(b.IssuedAt)
		}
		return a.IssuedAt.Before(b.IssuedAt)
	})
	return paginate(views, f.Page, f.PageSize)
}

// ProjectFilter selects and orders projects. Search matches id, name or location.
type ProjectFilter struct {
	Status    domain.ProjectStatus
	Ecosystem domain.EcosystemType
	OwnerID   string
	Search    string
	SortBy    string // created_at (default), name, area, estimated_credits
	Desc      bool
	Page      int
	PageSize  int
}

func (p *Projection) Projects(ctx context.Context, f ProjectFilter) Page[domain.Project] {
	snap := p.src.Snapshot(ctx)

	query := normalizeQuery(f.Search)
	out := make([]domain.Project, 0, len(snap.Projects))
	for _, pr := range snap.Projects {
		if f.Status != "" && pr.Status != f.Status {
			continue
		}
		if f.Ecosystem != "" && pr.Ecosystem != f.Ecosystem {
			continue
		}
		if f.OwnerID != "" && pr.OwnerID != f.OwnerID {
			continue
		}
		if !matches(query, pr.ID, pr.Name, pr.Location) {
			continue
		}
		out = append(out, pr)
	}

	sortStable(out, func(a, b domain.Project) bool {
		switch f.SortBy {
		case "name":
			return less(a.Name, b.Name, f.Desc)
		case "area":
			return less(a.AreaHectares, b.AreaHectares, f.Desc)
		case "estimated_credits":
			return less(a.EstimatedCredits, b.EstimatedCredits, f.Desc)
		}
		if f.Desc {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return paginate(out, f.Page, f.PageSize)
}

// ReportFilter selects verification reports, newest first.
type ReportFilter struct {
	Status     domain.ReportStatus
	ProjectID  string
	CreditID   string
	VerifierID string
	Page       int
	PageSize   int
}

func (p *Projection) Reports(ctx context.Context, f ReportFilter) Page[domain.VerificationReport] {
	snap := p.src.Snapshot(ctx)

	out := make([]domain.VerificationReport, 0, len(snap.Reports))
	for _, r := range snap.Reports {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.ProjectID != "" && r.ProjectID != f.ProjectID {
			continue
		}
		if f.CreditID != "" && r.CreditID != f.CreditID {
			continue
		}
		if f.VerifierID != "" && r.VerifierID != f.VerifierID {
			continue
		}
		out = append(out, r)
	}

	sortStable(out, func(a, b domain.VerificationReport) bool {
		if a.VerificationDate.Equal(b.VerificationDate) {
			return a.ID > b.ID
		}
		return a.VerificationDate.After(b.VerificationDate)
	})
	return paginate(out, f.Page, f.PageSize)
}

func (p *Projection) anchorIndex() map[string]domain.AnchorRecord {
	if p.anchors == nil {
		return nil
	}
	recs := p.anchors.List()
	idx := make(map[string]domain.AnchorRecord, len(recs))
	for _, rec := range recs {
		idx[rec.TransitionID] = rec
	}
	return idx
}
