/*
The off-chain price API identifies coins by its own ids, not by ticker.

This file contains the mapping of asset symbols to their corresponding price
API id. If an asset doesn't have an entry here the client will by default use
the symbol as the id. Because odds are it will work.

But for best practices try to keep this up to date.
It exists JUST IN CASE an asset's symbol is different from the API id.

*/

package config

import (
	"github.com/basketfi/etf-engine/internal/types"
)

var (
	AssetToAPIId = map[types.AssetID]string{
		"CORE":    "coredaoorg",
		"COREBTC": "coredao-btc",
		"CoreBTC": "coredao-btc",
		"WBTC":    "wrapped-bitcoin",
		"BTCB":    "bitcoin-bep2",
		"SOLVBTC": "solv-btc",
		"STCORE":  "stcore",

		"WRAPPED BITCOIN": "wrapped-bitcoin", // This is for TESTNET compatibility
	}
)
