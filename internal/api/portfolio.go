package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"taxsync-pro/internal/markethours"
	"taxsync-pro/internal/model"
	"taxsync-pro/internal/portfolio"
	"taxsync-pro/internal/syncer"
	"taxsync-pro/internal/taxcalc"

	"github.com/shopspring/decimal"
)

const (
	defaultOpportunityLimit = 10
	maxOpportunityLimit     = 100
)

func (s *server) syncPortfolio(w http.ResponseWriter, r *http.Request) {
	var req syncer.Request
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Broker != "" {
		if _, err := s.Catalog.Lookup(req.Broker); err != nil {
			writeError(w, r, err)
			return
		}
	}
	res, err := s.Sync.Sync(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// snapshot reads the stored result, failing with errNoData when the user has
// neither holdings nor integrations.
func (s *server) snapshot(ctx context.Context, uid string) (*syncer.Result, error) {
	res, err := s.Sync.Snapshot(ctx, uid)
	if err != nil {
		return nil, err
	}
	if len(res.Holdings) == 0 && len(res.Brokers) == 0 {
		return nil, errNoData
	}
	return res, nil
}

// getPortfolio returns the stored snapshot, optionally narrowed to the
// holdings with a lot at one broker.
func (s *server) getPortfolio(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.snapshot(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if b := r.URL.Query().Get("broker"); b != "" {
		filtered := []model.ClassifiedHolding{}
		for _, h := range res.Holdings {
			if heldAt(h.Holding, b) {
				filtered = append(filtered, h)
			}
		}
		res.Holdings = filtered
		res.Summary = portfolio.Summarize(filtered, res.Opportunities)
	}

	now := s.Now()
	writeJSON(w, http.StatusOK, portfolioResponse{
		Result: res,
		Market: marketInfo{Status: markethours.Status(now), NextClose: markethours.NextClose(now)},
	})
}

// marketInfo tells clients whether stored prices may still move.
type marketInfo struct {
	Status    string    `json:"status"`
	NextClose time.Time `json:"nextClose"`
}

type portfolioResponse struct {
	*syncer.Result
	Market marketInfo `json:"market"`
}

func heldAt(h model.Holding, b string) bool {
	if h.Broker == b {
		return true
	}
	for _, l := range h.Lots {
		if l.Broker == b {
			return true
		}
	}
	return false
}

type opportunitiesResponse struct {
	Opportunities         []model.Opportunity `json:"opportunities"`
	Total                 int                 `json:"total"`
	TotalPotentialSavings decimal.Decimal     `json:"totalPotentialSavings"`
}

// taxOpportunities recomputes opportunities from the stored portfolio as of
// now, so deadlines and priorities stay current between syncs. Wash-sale
// flags found at sync time are kept.
func (s *server) taxOpportunities(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit := defaultOpportunityLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, &model.ValidationError{Field: "limit", Reason: "must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > maxOpportunityLimit {
		limit = maxOpportunityLimit
	}

	holdings, err := s.Snapshots.ReadPortfolio(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(holdings) == 0 {
		writeError(w, r, errNoData)
		return
	}
	stored, err := s.Snapshots.ReadOpportunities(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	washRisk := make(map[string]bool)
	for _, o := range stored {
		if o.WashSaleRisk {
			washRisk[o.LossStock.Symbol] = true
		}
	}

	// Categories drift as holding periods cross the LTCG threshold.
	now := s.Now()
	opps := s.Matcher.FindOpportunities(reclassify(holdings, now), now)
	resp := opportunitiesResponse{
		Opportunities:         []model.Opportunity{},
		Total:                 len(opps),
		TotalPotentialSavings: decimal.Zero,
	}
	for i, o := range opps {
		o.WashSaleRisk = o.WashSaleRisk || washRisk[o.LossStock.Symbol]
		resp.TotalPotentialSavings = resp.TotalPotentialSavings.Add(o.PotentialSavings)
		if i < limit {
			resp.Opportunities = append(resp.Opportunities, o)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func reclassify(stored []model.ClassifiedHolding, at time.Time) []model.ClassifiedHolding {
	hs := make([]model.Holding, len(stored))
	for i, h := range stored {
		hs[i] = h.Holding
	}
	return taxcalc.ClassifyAll(hs, at)
}
