package domain

import (
	"encoding/json"
	"fmt"
)

// CurrentSchemaVersion is the layout written by this code for new payments
const CurrentSchemaVersion = 2

// legacyFeeBreakdownV1 is the layout of records written before VAT support,
// when the total was stored as "amount" next to the service lines.
type legacyFeeBreakdownV1 struct {
	Amount   int64         `json:"amount"`
	Services []ServiceLine `json:"services"`
}

// migrations[v] upgrades a stored breakdown from version v to v+1
var migrations = map[int]func(json.RawMessage) (json.RawMessage, error){
	1: migrateFeeBreakdownV1ToV2,
}

// DecodeFeeBreakdown upgrades a stored breakdown to CurrentSchemaVersion and decodes it
func DecodeFeeBreakdown(version int, raw json.RawMessage) (FeeBreakdown, error) {
	if version <= 0 {
		version = 1
	}
	if version > CurrentSchemaVersion {
		return FeeBreakdown{}, fmt.Errorf("unsupported fee breakdown schema version %d", version)
	}

	for v := version; v < CurrentSchemaVersion; v++ {
		migrate, ok := migrations[v]
		if !ok {
			return FeeBreakdown{}, fmt.Errorf("no migration from fee breakdown schema version %d", v)
		}

		upgraded, err := migrate(raw)
		if err != nil {
			return FeeBreakdown{}, fmt.Errorf("failed to migrate fee breakdown from v%d: %w", v, err)
		}
		raw = upgraded
	}

	var b FeeBreakdown
	if err := json.Unmarshal(raw, &b); err != nil {
		return FeeBreakdown{}, fmt.Errorf("failed to decode fee breakdown: %w", err)
	}
	return b, nil
}

func migrateFeeBreakdownV1ToV2(raw json.RawMessage) (json.RawMessage, error) {
	var legacy legacyFeeBreakdownV1
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, err
	}

	// v1 prices were VAT inclusive with no tax line
	return json.Marshal(FeeBreakdown{
		Subtotal:        legacy.Amount,
		TaxRate:         0,
		TaxAmount:       0,
		TotalBeforeTax:  legacy.Amount,
		TotalServiceFee: legacy.Amount,
		VATEnabled:      false,
		Services:        legacy.Services,
	})
}
