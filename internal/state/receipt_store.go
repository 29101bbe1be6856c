// ./internal/state/receipt_store.go
package state

import (
	"fmt"

	"github.com/basketfi/etf-engine/internal/types"
	"github.com/basketfi/etf-engine/internal/utils"
	"github.com/rs/zerolog/log"
)

// SaveRebalanceReceipt saves a rebalance attempt receipt to the database.
// A single attempt writes twice: once submitted, once confirmed or failed.
func SaveRebalanceReceipt(receipt types.RebalanceReceipt) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO rebalance_receipts (
			attempt_id, attempt, direction, target_tier,
			amount_in, min_amount_out, actual_amount_out,
			state, message, receipt_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING receipt_id;
	`

	var receiptID int64
	err := DB.QueryRow(
		query,
		receipt.AttemptID, receipt.Attempt, string(receipt.Direction), receipt.TargetTier,
		receipt.AmountIn.String(), receipt.MinAmountOut.String(), receipt.ActualAmountOut.String(),
		string(receipt.State), receipt.Message, receipt.Timestamp,
	).Scan(&receiptID)

	if err != nil {
		return 0, fmt.Errorf("failed to save rebalance receipt: %w", err)
	}

	log.Info().
		Int64("receipt_id", receiptID).
		Str("attempt_id", receipt.AttemptID).
		Str("state", string(receipt.State)).
		Msg("Rebalance receipt saved to database")

	return receiptID, nil
}

// ListRecentRebalanceReceipts returns the most recent receipts, newest first.
func ListRecentRebalanceReceipts(limit int) ([]types.RebalanceReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT receipt_id, attempt_id, attempt, direction, target_tier,
		       amount_in, min_amount_out, actual_amount_out,
		       state, COALESCE(message, ''), receipt_timestamp
		FROM rebalance_receipts
		ORDER BY receipt_timestamp DESC
		LIMIT $1;
	`
	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalance receipts: %w", err)
	}
	defer rows.Close()

	var receipts []types.RebalanceReceipt
	for rows.Next() {
		var r types.RebalanceReceipt
		var direction, state string
		var amountIn, minOut, actualOut string
		if err := rows.Scan(&r.ReceiptID, &r.AttemptID, &r.Attempt, &direction, &r.TargetTier,
			&amountIn, &minOut, &actualOut, &state, &r.Message, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan rebalance receipt row: %w", err)
		}
		r.Direction = types.SwapDirection(direction)
		r.State = types.RebalanceState(state)
		if r.AmountIn, err = utils.ParseDec(amountIn); err != nil {
			return nil, fmt.Errorf("corrupt amount_in in receipt %d: %w", r.ReceiptID, err)
		}
		if r.MinAmountOut, err = utils.ParseDec(minOut); err != nil {
			return nil, fmt.Errorf("corrupt min_amount_out in receipt %d: %w", r.ReceiptID, err)
		}
		if r.ActualAmountOut, err = utils.ParseDec(actualOut); err != nil {
			return nil, fmt.Errorf("corrupt actual_amount_out in receipt %d: %w", r.ReceiptID, err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}
