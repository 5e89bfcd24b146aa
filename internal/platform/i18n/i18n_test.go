package i18n

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestTranslator(t *testing.T) *Translator {
	t.Helper()
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	tr, err := NewTranslator("en", tokyo)
	require.NoError(t, err)
	return tr
}

func TestNegotiate(t *testing.T) {
	tr := newTestTranslator(t)

	require.Equal(t, "ja", tr.Negotiate("ja-JP,ja;q=0.9,en;q=0.8"))
	require.Equal(t, "en", tr.Negotiate("en-US"))
	require.Equal(t, "en", tr.Negotiate("fr-FR"))
	require.Equal(t, "en", tr.Negotiate(""))
}

func TestMessageFormatsDatesPerLocale(t *testing.T) {
	tr := newTestTranslator(t)
	// 15:00 UTC on June 1 is June 2 in Tokyo.
	date := time.Date(2024, time.June, 1, 15, 0, 0, 0, time.UTC)
	params := map[string]any{"deliveryDate": date}

	require.Equal(t, "An order for this customer already exists for Jun 2, 2024.", tr.Message("en", "error.duplicate_order", params))
	require.Equal(t, "2024年6月2日 の注文はすでに登録されています。", tr.Message("ja", "error.duplicate_order", params))
}

func TestMessageFallbacks(t *testing.T) {
	tr := newTestTranslator(t)

	require.Equal(t, "Order not found.", tr.Message("de", "error.order_not_found", nil))
	require.Equal(t, "注文が見つかりません。", tr.Message("ja-JP", "error.order_not_found", nil))
	require.Equal(t, "error.unknown", tr.Message("en", "error.unknown", nil))
	require.Equal(t, "This action can only be undone within 24 hours.", tr.Message("en", "error.undo_window_expired", map[string]any{"hours": 24}))
}

func TestNewTranslatorDefaultLocale(t *testing.T) {
	tr, err := NewTranslator("ja", nil)
	require.NoError(t, err)
	require.Equal(t, "ja", tr.Negotiate(""))
	require.Equal(t, "顧客が見つかりません。", tr.Message("", "error.customer_not_found", nil))

	_, err = NewTranslator("not a locale!", nil)
	require.Error(t, err)
}
