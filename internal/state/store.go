/*

This file contains the Store adapter that exposes the package-level
persistence functions through the sink interfaces consumed by the engine and
the price oracle.

*/

package state

import (
	"github.com/basketfi/etf-engine/internal/types"
)

// Store adapts the package-level persistence functions to the sink
// interfaces the engine and oracle accept. It carries no state of its own;
// the connection pool is the package-global DB.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) SavePoolSnapshot(snapshot types.PoolSnapshot) error {
	_, err := SavePoolSnapshot(snapshot)
	return err
}

func (s *Store) SaveRebalanceReceipt(receipt types.RebalanceReceipt) error {
	_, err := SaveRebalanceReceipt(receipt)
	return err
}

func (s *Store) RecordPriceAudit(entry types.PriceAuditEntry) error {
	_, err := SavePriceAudit(entry)
	return err
}
