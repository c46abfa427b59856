// Package sqlite persists broker integrations and the latest classified
// portfolio and opportunity snapshot per user.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"taxsync-pro/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/taxsync.db"
}

// Store is a single-connection SQLite store. Writes go through one connection
// so replace-snapshot transactions never contend with each other.
type Store struct {
	db *sql.DB
}

var (
	_ model.IntegrationStore = (*Store)(nil)
	_ model.SnapshotStore    = (*Store)(nil)
)

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS broker_integrations (
			user_id      TEXT    NOT NULL,
			broker_name  TEXT    NOT NULL,
			api_key      TEXT    NOT NULL DEFAULT '',
			access_token TEXT    NOT NULL DEFAULT '',
			api_secret   TEXT    NOT NULL DEFAULT '',
			client_code  TEXT    NOT NULL DEFAULT '',
			pin          TEXT    NOT NULL DEFAULT '',
			totp_secret  TEXT    NOT NULL DEFAULT '',
			is_connected INTEGER NOT NULL DEFAULT 0,
			last_sync    INTEGER,
			sync_status  TEXT    NOT NULL DEFAULT 'pending',
			sync_error   TEXT    NOT NULL DEFAULT '',
			PRIMARY KEY (user_id, broker_name)
		);

		CREATE TABLE IF NOT EXISTS portfolio_data (
			user_id                 TEXT    NOT NULL,
			broker_name             TEXT    NOT NULL,
			symbol                  TEXT    NOT NULL,
			exchange                TEXT    NOT NULL,
			isin                    TEXT    NOT NULL DEFAULT '',
			quantity                TEXT    NOT NULL,
			avg_price               TEXT    NOT NULL,
			current_price           TEXT    NOT NULL,
			pnl                     TEXT    NOT NULL,
			investment_type         TEXT    NOT NULL,
			tax_category            TEXT    NOT NULL,
			holding_period          INTEGER NOT NULL,
			purchase_date           INTEGER,
			purchase_date_estimated INTEGER NOT NULL DEFAULT 0,
			capital_gain            TEXT    NOT NULL,
			taxable_gain            TEXT    NOT NULL,
			indexation_benefit      TEXT    NOT NULL,
			tax_rate                TEXT    NOT NULL,
			potential_tax_liability TEXT    NOT NULL,
			net_gain                TEXT    NOT NULL,
			exemption_applied       INTEGER NOT NULL DEFAULT 0,
			lots                    TEXT,
			fetched_at              INTEGER,
			evaluated_at            INTEGER NOT NULL,
			last_updated            INTEGER NOT NULL,
			PRIMARY KEY (user_id, exchange, symbol)
		);

		CREATE TABLE IF NOT EXISTS tax_opportunities (
			user_id           TEXT    NOT NULL,
			opportunity_id    TEXT    NOT NULL,
			seq               INTEGER NOT NULL,
			type              TEXT    NOT NULL,
			tax_category      TEXT    NOT NULL,
			priority          TEXT    NOT NULL,
			potential_savings TEXT    NOT NULL,
			tax_savings       TEXT    NOT NULL,
			offset_amount     TEXT    NOT NULL,
			description       TEXT    NOT NULL,
			loss_stock_symbol TEXT    NOT NULL,
			loss_broker       TEXT    NOT NULL DEFAULT '',
			loss_quantity     TEXT    NOT NULL,
			loss_amount       TEXT    NOT NULL,
			gain_stock_symbol TEXT,
			gain_broker       TEXT,
			gain_quantity     TEXT,
			gain_amount       TEXT,
			deadline          INTEGER,
			wash_sale_risk    INTEGER NOT NULL DEFAULT 0,
			created_at        INTEGER NOT NULL,
			PRIMARY KEY (user_id, opportunity_id)
		);
	`)
	return err
}

func nullUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// UpsertIntegration creates or replaces the (user, broker) row.
func (s *Store) UpsertIntegration(ctx context.Context, in model.Integration) error {
	status := in.SyncStatus
	if status == "" {
		status = model.SyncPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO broker_integrations
			(user_id, broker_name, api_key, access_token, api_secret, client_code, pin, totp_secret,
			 is_connected, last_sync, sync_status, sync_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, broker_name) DO UPDATE SET
			api_key = excluded.api_key,
			access_token = excluded.access_token,
			api_secret = excluded.api_secret,
			client_code = excluded.client_code,
			pin = excluded.pin,
			totp_secret = excluded.totp_secret,
			is_connected = excluded.is_connected,
			sync_status = excluded.sync_status,
			sync_error = excluded.sync_error
	`,
		in.UserID, in.Broker,
		in.Credentials.APIKey, in.Credentials.AccessToken, in.Credentials.APISecret,
		in.Credentials.ClientCode, in.Credentials.PIN, in.Credentials.TOTPSecret,
		boolInt(in.IsConnected), nullUnix(in.LastSync), string(status), in.SyncError,
	)
	if err != nil {
		return fmt.Errorf("sqlite upsert integration: %w", err)
	}
	return nil
}

// RecordSync stamps the outcome of a sync run on one integration.
func (s *Store) RecordSync(ctx context.Context, userID, broker string, status model.SyncStatus, syncErr string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE broker_integrations SET last_sync = ?, sync_status = ?, sync_error = ?
		WHERE user_id = ? AND broker_name = ?
	`, at.Unix(), string(status), syncErr, userID, broker)
	if err != nil {
		return fmt.Errorf("sqlite record sync: %w", err)
	}
	return nil
}

// ReplaceSnapshot swaps the user's stored holdings and opportunities in one
// transaction. On error the previous snapshot is left untouched.
func (s *Store) ReplaceSnapshot(ctx context.Context, userID string, holdings []model.ClassifiedHolding, opps []model.Opportunity, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := writeHoldings(ctx, tx, userID, holdings, at); err != nil {
		tx.Rollback()
		return err
	}
	if err := writeOpportunities(ctx, tx, userID, opps, at); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit snapshot: %w", err)
	}
	return nil
}

func writeHoldings(ctx context.Context, tx *sql.Tx, userID string, holdings []model.ClassifiedHolding, at time.Time) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM portfolio_data WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite clear portfolio: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO portfolio_data
			(user_id, broker_name, symbol, exchange, isin, quantity, avg_price, current_price, pnl,
			 investment_type, tax_category, holding_period, purchase_date, purchase_date_estimated,
			 capital_gain, taxable_gain, indexation_benefit, tax_rate, potential_tax_liability, net_gain,
			 exemption_applied, lots, fetched_at, evaluated_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, h := range holdings {
		var lots sql.NullString
		if len(h.Lots) > 0 {
			b, err := json.Marshal(h.Lots)
			if err != nil {
				return fmt.Errorf("marshal lots: %w", err)
			}
			lots = sql.NullString{String: string(b), Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			userID, h.Broker, h.Symbol, h.Exchange, h.ISIN,
			h.Quantity, h.AvgPrice, h.CurrentPrice, h.PnL(),
			string(h.InvestmentType), string(h.TaxCategory), h.HoldingPeriod,
			nullUnix(h.PurchaseDate), boolInt(h.PurchaseDateEstimated),
			h.CapitalGain, h.TaxableGain, h.IndexationBenefit, h.TaxRate, h.TaxLiability, h.NetGain,
			boolInt(h.ExemptionApplied), lots, nullUnix(h.FetchedAt), h.EvaluationDate.Unix(), at.Unix(),
		)
		if err != nil {
			return fmt.Errorf("sqlite insert holding %s: %w", h.Symbol, err)
		}
	}

	return nil
}

func writeOpportunities(ctx context.Context, tx *sql.Tx, userID string, opps []model.Opportunity, at time.Time) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM tax_opportunities WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite clear opportunities: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tax_opportunities
			(user_id, opportunity_id, seq, type, tax_category, priority, potential_savings, tax_savings,
			 offset_amount, description, loss_stock_symbol, loss_broker, loss_quantity, loss_amount,
			 gain_stock_symbol, gain_broker, gain_quantity, gain_amount, deadline, wash_sale_risk, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, o := range opps {
		var gainSym, gainBroker, gainQty, gainAmt sql.NullString
		if o.OffsetStock != nil {
			gainSym = sql.NullString{String: o.OffsetStock.Symbol, Valid: true}
			gainBroker = sql.NullString{String: o.OffsetStock.Broker, Valid: true}
			gainQty = sql.NullString{String: o.OffsetStock.Quantity.String(), Valid: true}
			gainAmt = sql.NullString{String: o.OffsetStock.CurrentGain.String(), Valid: true}
		}
		var deadline sql.NullInt64
		if o.Deadline != nil {
			deadline = nullUnix(*o.Deadline)
		}
		_, err := stmt.ExecContext(ctx,
			userID, o.ID, i, string(o.Type), string(o.TaxCategory), string(o.Priority),
			o.PotentialSavings, o.TaxSavings, o.OffsetAmount, o.Recommendation,
			o.LossStock.Symbol, o.LossStock.Broker, o.LossStock.Quantity, o.LossStock.CurrentLoss,
			gainSym, gainBroker, gainQty, gainAmt, deadline, boolInt(o.WashSaleRisk), at.Unix(),
		)
		if err != nil {
			return fmt.Errorf("sqlite insert opportunity %s: %w", o.ID, err)
		}
	}

	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
