// ./internal/state/audit_store.go
package state

import (
	"fmt"

	"github.com/basketfi/etf-engine/internal/types"
	"github.com/basketfi/etf-engine/internal/utils"
	"github.com/rs/zerolog/log"
)

// SavePriceAudit records the outcome of a single price submission, accepted
// or rejected. This is the durable record behind every emergency bypass.
func SavePriceAudit(entry types.PriceAuditEntry) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO price_audit (
			asset, source, submitted_price, previous_price, deviation_bps,
			accepted, emergency_bypass, rejection_reason, audit_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING audit_id;
	`

	var auditID int64
	err := DB.QueryRow(
		query,
		string(entry.Asset), string(entry.Source),
		entry.SubmittedPrice.String(), entry.PreviousPrice.String(), entry.DeviationBps.String(),
		entry.Accepted, entry.EmergencyBypass, entry.RejectionReason, entry.Timestamp,
	).Scan(&auditID)

	if err != nil {
		return 0, fmt.Errorf("failed to save price audit entry: %w", err)
	}

	if entry.EmergencyBypass || !entry.Accepted {
		log.Warn().
			Int64("audit_id", auditID).
			Str("asset", string(entry.Asset)).
			Bool("accepted", entry.Accepted).
			Bool("emergency_bypass", entry.EmergencyBypass).
			Str("reason", entry.RejectionReason).
			Msg("Price audit entry saved")
	}
	return auditID, nil
}

// ListRecentPriceAudits returns the most recent audit entries for an asset,
// newest first. An empty asset returns entries across all assets.
func ListRecentPriceAudits(asset string, limit int) ([]types.PriceAuditEntry, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT asset, source, submitted_price, previous_price, deviation_bps,
		       accepted, emergency_bypass, COALESCE(rejection_reason, ''), audit_timestamp
		FROM price_audit
		WHERE ($1 = '' OR asset = $1)
		ORDER BY audit_timestamp DESC
		LIMIT $2;
	`
	rows, err := DB.Query(query, asset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price audits: %w", err)
	}
	defer rows.Close()

	var entries []types.PriceAuditEntry
	for rows.Next() {
		var e types.PriceAuditEntry
		var assetStr, sourceStr string
		var submitted, previous, deviation string
		if err := rows.Scan(&assetStr, &sourceStr, &submitted, &previous, &deviation,
			&e.Accepted, &e.EmergencyBypass, &e.RejectionReason, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan price audit row: %w", err)
		}
		e.Asset = types.AssetID(assetStr)
		e.Source = types.PriceSource(sourceStr)
		if e.SubmittedPrice, err = utils.ParseDec(submitted); err != nil {
			return nil, fmt.Errorf("corrupt submitted_price in audit row: %w", err)
		}
		if e.PreviousPrice, err = utils.ParseDec(previous); err != nil {
			return nil, fmt.Errorf("corrupt previous_price in audit row: %w", err)
		}
		if e.DeviationBps, err = utils.ParseDec(deviation); err != nil {
			return nil, fmt.Errorf("corrupt deviation_bps in audit row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
