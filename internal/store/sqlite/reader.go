package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"taxsync-pro/internal/model"

	"github.com/shopspring/decimal"
)

func fromUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

// GetIntegration returns nil, nil if the user has not connected broker.
func (s *Store) GetIntegration(ctx context.Context, userID, broker string) (*model.Integration, error) {
	row := s.db.QueryRowContext(ctx, integrationSelect+` WHERE user_id = ? AND broker_name = ?`, userID, broker)
	in, err := scanIntegration(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get integration: %w", err)
	}
	return &in, nil
}

// ListIntegrations returns every broker row for userID ordered by broker.
func (s *Store) ListIntegrations(ctx context.Context, userID string) ([]model.Integration, error) {
	rows, err := s.db.QueryContext(ctx, integrationSelect+` WHERE user_id = ? ORDER BY broker_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query integrations: %w", err)
	}
	defer rows.Close()

	var out []model.Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan integration: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// ConnectedUsers lists users with at least one connected broker.
func (s *Store) ConnectedUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM broker_integrations WHERE is_connected = 1 ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query connected users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const integrationSelect = `
	SELECT user_id, broker_name, api_key, access_token, api_secret, client_code, pin, totp_secret,
	       is_connected, last_sync, sync_status, sync_error
	FROM broker_integrations`

type scanner interface {
	Scan(dest ...any) error
}

func scanIntegration(sc scanner) (model.Integration, error) {
	var (
		in        model.Integration
		connected int
		lastSync  sql.NullInt64
		status    string
	)
	err := sc.Scan(&in.UserID, &in.Broker,
		&in.Credentials.APIKey, &in.Credentials.AccessToken, &in.Credentials.APISecret,
		&in.Credentials.ClientCode, &in.Credentials.PIN, &in.Credentials.TOTPSecret,
		&connected, &lastSync, &status, &in.SyncError)
	if err != nil {
		return in, err
	}
	in.IsConnected = connected == 1
	in.LastSync = fromUnix(lastSync)
	in.SyncStatus = model.SyncStatus(status)
	return in, nil
}

// ReadPortfolio returns the stored holdings for userID, ordered by symbol.
func (s *Store) ReadPortfolio(ctx context.Context, userID string) ([]model.ClassifiedHolding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT broker_name, symbol, exchange, isin, quantity, avg_price, current_price,
		       investment_type, tax_category, holding_period, purchase_date, purchase_date_estimated,
		       capital_gain, taxable_gain, indexation_benefit, tax_rate, potential_tax_liability, net_gain,
		       exemption_applied, lots, fetched_at, evaluated_at
		FROM portfolio_data
		WHERE user_id = ?
		ORDER BY symbol ASC, exchange ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query portfolio_data: %w", err)
	}
	defer rows.Close()

	var out []model.ClassifiedHolding
	for rows.Next() {
		var (
			h                       model.ClassifiedHolding
			invType, category       string
			purchase, fetched       sql.NullInt64
			evaluated               int64
			estimated, exemptionInt int
			lots                    sql.NullString
		)
		if err := rows.Scan(&h.Broker, &h.Symbol, &h.Exchange, &h.ISIN,
			&h.Quantity, &h.AvgPrice, &h.CurrentPrice,
			&invType, &category, &h.HoldingPeriod, &purchase, &estimated,
			&h.CapitalGain, &h.TaxableGain, &h.IndexationBenefit, &h.TaxRate, &h.TaxLiability, &h.NetGain,
			&exemptionInt, &lots, &fetched, &evaluated); err != nil {
			return nil, fmt.Errorf("sqlite scan portfolio_data: %w", err)
		}
		h.InvestmentType = model.InvestmentType(invType)
		h.TaxCategory = model.TaxCategory(category)
		h.PurchaseDate = fromUnix(purchase)
		h.PurchaseDateEstimated = estimated == 1
		h.ExemptionApplied = exemptionInt == 1
		h.FetchedAt = fromUnix(fetched)
		h.EvaluationDate = time.Unix(evaluated, 0).UTC()
		if lots.Valid {
			if err := json.Unmarshal([]byte(lots.String), &h.Lots); err != nil {
				return nil, fmt.Errorf("decode lots for %s: %w", h.Symbol, err)
			}
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ReadOpportunities returns the stored opportunities in their ranked order.
func (s *Store) ReadOpportunities(ctx context.Context, userID string) ([]model.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT opportunity_id, type, tax_category, priority, potential_savings, tax_savings, offset_amount,
		       description, loss_stock_symbol, loss_broker, loss_quantity, loss_amount,
		       gain_stock_symbol, gain_broker, gain_quantity, gain_amount, deadline, wash_sale_risk
		FROM tax_opportunities
		WHERE user_id = ?
		ORDER BY seq ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query tax_opportunities: %w", err)
	}
	defer rows.Close()

	var out []model.Opportunity
	for rows.Next() {
		var (
			o                       model.Opportunity
			typ, category, priority string
			gainSym, gainBroker     sql.NullString
			gainQty, gainAmt        decimal.NullDecimal
			deadline                sql.NullInt64
			washSale                int
		)
		if err := rows.Scan(&o.ID, &typ, &category, &priority,
			&o.PotentialSavings, &o.TaxSavings, &o.OffsetAmount, &o.Recommendation,
			&o.LossStock.Symbol, &o.LossStock.Broker, &o.LossStock.Quantity, &o.LossStock.CurrentLoss,
			&gainSym, &gainBroker, &gainQty, &gainAmt, &deadline, &washSale); err != nil {
			return nil, fmt.Errorf("sqlite scan tax_opportunities: %w", err)
		}
		o.Type = model.OpportunityType(typ)
		o.TaxCategory = model.TaxCategory(category)
		o.Priority = model.Priority(priority)
		o.WashSaleRisk = washSale == 1
		if gainSym.Valid {
			o.OffsetStock = &model.OffsetStock{
				Symbol:      gainSym.String,
				Broker:      gainBroker.String,
				Quantity:    gainQty.Decimal,
				CurrentGain: gainAmt.Decimal,
			}
		}
		if deadline.Valid {
			d := fromUnix(deadline)
			o.Deadline = &d
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
