package api

import (
	"context"
	"log"
	"net/http"

	"taxsync-pro/internal/model"
	"taxsync-pro/internal/taxcalc"

	"github.com/shopspring/decimal"
)

type calculateRequest struct {
	PurchasePrice  decimal.Decimal      `json:"purchasePrice"`
	SalePrice      decimal.Decimal      `json:"salePrice"`
	PurchaseDate   string               `json:"purchaseDate"`
	SaleDate       string               `json:"saleDate"`
	Quantity       decimal.Decimal      `json:"quantity"`
	InvestmentType model.InvestmentType `json:"investmentType"`
	Indexation     *bool                `json:"indexationBenefit,omitempty"`
}

func (s *server) calculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	bought, err := parseDate("purchaseDate", req.PurchaseDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sold, err := parseDate("saleDate", req.SaleDate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sold.Before(bought) {
		writeError(w, r, &model.ValidationError{Field: "saleDate", Reason: "before purchaseDate"})
		return
	}

	res, err := taxcalc.Calculate(taxcalc.CalculationInput{
		PurchasePrice:  req.PurchasePrice,
		SalePrice:      req.SalePrice,
		PurchaseDate:   bought,
		SaleDate:       sold,
		Quantity:       req.Quantity,
		InvestmentType: req.InvestmentType,
		Indexation:     req.Indexation,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type washSaleRequest struct {
	Symbol    string `json:"symbol"`
	SaleDate  string `json:"saleDate"`
	Purchases []struct {
		Symbol       string `json:"symbol"`
		PurchaseDate string `json:"purchaseDate"`
	} `json:"purchases"`
}

func (s *server) washSale(w http.ResponseWriter, r *http.Request) {
	var req washSaleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Symbol == "" {
		writeError(w, r, &model.ValidationError{Field: "symbol", Reason: "required"})
		return
	}
	sold, err := parseDate("saleDate", req.SaleDate)
	if err != nil {
		writeError(w, r, err)
		return
	}

	purchases := make([]model.Purchase, 0, len(req.Purchases))
	for _, p := range req.Purchases {
		at, err := parseDate("purchases.purchaseDate", p.PurchaseDate)
		if err != nil {
			writeError(w, r, err)
			return
		}
		sym := p.Symbol
		if sym == "" {
			sym = req.Symbol
		}
		purchases = append(purchases, model.Purchase{Symbol: sym, PurchaseDate: at})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":     req.Symbol,
		"isWashSale": taxcalc.IsWashSale(model.Sale{Symbol: req.Symbol, SaleDate: sold}, purchases),
		"windowDays": int(taxcalc.WashSaleWindow.Hours() / 24),
	})
}

// efficiency serves the cached score when present; on a miss it scores the
// stored portfolio and caches the result.
func (s *server) efficiency(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	score, cached, err := s.score(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":          uid,
		"efficiencyScore": score,
		"cached":          cached,
	})
}

func (s *server) score(ctx context.Context, uid string) (model.EfficiencyScore, bool, error) {
	if s.Scores != nil {
		hit, err := s.Scores.GetScore(ctx, uid)
		if err != nil {
			log.Printf("[api] score cache read for %s: %v", uid, err)
		} else if hit != nil {
			return *hit, true, nil
		}
	}

	holdings, err := s.Snapshots.ReadPortfolio(ctx, uid)
	if err != nil {
		return model.EfficiencyScore{}, false, err
	}
	if len(holdings) == 0 {
		return model.EfficiencyScore{}, false, errNoData
	}
	score := taxcalc.Score(holdings)
	if s.Scores != nil {
		if err := s.Scores.SetScore(ctx, uid, score, s.ScoreTTL); err != nil {
			log.Printf("[api] score cache write for %s: %v", uid, err)
		}
	}
	return score, false, nil
}

func (s *server) exemption(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
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
	writeJSON(w, http.StatusOK, taxcalc.PooledLTCGExemption(holdings, s.Now()))
}
