package firestore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Money is stored as decimal strings so totals survive the round trip exactly.

func encodeDecimal(value decimal.Decimal) string {
	return value.String()
}

func decodeDecimal(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode %s %q: %w", field, raw, err)
	}
	return value, nil
}

func encodeOptionalDecimal(value *decimal.Decimal) *string {
	if value == nil {
		return nil
	}
	encoded := value.String()
	return &encoded
}

func decodeOptionalDecimal(field string, raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	value, err := decodeDecimal(field, *raw)
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := t.UTC()
	return &value
}
