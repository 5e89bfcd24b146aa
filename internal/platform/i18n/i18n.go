// Package i18n renders user-facing messages in the supported locales.
package i18n

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Supported lists the locales messages are available in. The first entry is
// the fallback when negotiation finds no match.
var Supported = []language.Tag{language.English, language.Japanese}

var dateLayouts = map[language.Tag]string{
	language.English:  "Jan 2, 2006",
	language.Japanese: "2006年1月2日",
}

type entry struct {
	params []string
	text   map[language.Tag]string
}

var messages = map[string]entry{
	"error.invalid_input": {
		params: []string{"field"},
		text: map[language.Tag]string{
			language.English:  "Invalid value for %s.",
			language.Japanese: "%s の値が正しくありません。",
		},
	},
	"error.customer_not_found": {text: map[language.Tag]string{
		language.English:  "Customer not found.",
		language.Japanese: "顧客が見つかりません。",
	}},
	"error.order_not_found": {text: map[language.Tag]string{
		language.English:  "Order not found.",
		language.Japanese: "注文が見つかりません。",
	}},
	"error.order_detail_not_found": {text: map[language.Tag]string{
		language.English:  "Order line item not found.",
		language.Japanese: "注文明細が見つかりません。",
	}},
	"error.duplicate_order": {
		params: []string{"deliveryDate"},
		text: map[language.Tag]string{
			language.English:  "An order for this customer already exists for %s.",
			language.Japanese: "%s の注文はすでに登録されています。",
		},
	},
	"error.document_number_exhausted": {text: map[language.Tag]string{
		language.English:  "A document number could not be allocated. Please try again.",
		language.Japanese: "伝票番号を採番できませんでした。もう一度お試しください。",
	}},
	"error.counter_exhausted": {text: map[language.Tag]string{
		language.English:  "The sequence for this day has been used up.",
		language.Japanese: "この日の連番が上限に達しました。",
	}},
	"error.no_eligible_orders": {text: map[language.Tag]string{
		language.English:  "None of the selected orders can be changed by this action.",
		language.Japanese: "対象となる注文がありません。",
	}},
	"error.mixed_customers": {text: map[language.Tag]string{
		language.English:  "All selected orders must belong to the same customer.",
		language.Japanese: "同じ顧客の注文のみ選択できます。",
	}},
	"error.payment_log_not_found": {text: map[language.Tag]string{
		language.English:  "Payment history entry not found.",
		language.Japanese: "支払い履歴が見つかりません。",
	}},
	"error.already_undone": {text: map[language.Tag]string{
		language.English:  "This action has already been undone.",
		language.Japanese: "この操作はすでに取り消されています。",
	}},
	"error.undo_window_expired": {
		params: []string{"hours"},
		text: map[language.Tag]string{
			language.English:  "This action can only be undone within %d hours.",
			language.Japanese: "この操作は%d時間以内のみ取り消せます。",
		},
	},
	"error.state_changed": {text: map[language.Tag]string{
		language.English:  "The orders have changed since this action, so it cannot be undone.",
		language.Japanese: "操作後に注文の状態が変更されたため、取り消せません。",
	}},
	"error.storage": {text: map[language.Tag]string{
		language.English:  "The service is temporarily unavailable. Please try again.",
		language.Japanese: "現在サービスを利用できません。しばらくしてからお試しください。",
	}},
	"error.internal": {text: map[language.Tag]string{
		language.English:  "An unexpected error occurred.",
		language.Japanese: "予期しないエラーが発生しました。",
	}},
	"error.actor_required": {
		params: []string{"header"},
		text: map[language.Tag]string{
			language.English:  "The %s header naming the operator is required.",
			language.Japanese: "操作者を示す %s ヘッダーが必要です。",
		},
	},
	"error.rate_limited": {
		params: []string{"seconds"},
		text: map[language.Tag]string{
			language.English:  "Too many ledger operations. Retry in %d seconds.",
			language.Japanese: "台帳の操作が多すぎます。%d秒後に再度お試しください。",
		},
	},
	"error.not_found": {text: map[language.Tag]string{
		language.English:  "The requested resource was not found.",
		language.Japanese: "指定されたリソースが見つかりません。",
	}},
}

// Translator localizes message keys. It is safe for concurrent use.
type Translator struct {
	catalog  catalog.Catalog
	matcher  language.Matcher
	fallback language.Tag
	location *time.Location
}

// NewTranslator builds the message catalog. defaultLocale is used when a
// request names no supported locale; dates are shown in location.
func NewTranslator(defaultLocale string, location *time.Location) (*Translator, error) {
	builder := catalog.NewBuilder(catalog.Fallback(Supported[0]))
	for key, msg := range messages {
		for tag, text := range msg.text {
			if err := builder.SetString(tag, key, text); err != nil {
				return nil, fmt.Errorf("i18n: register %s/%s: %w", tag, key, err)
			}
		}
	}
	if location == nil {
		location = time.UTC
	}
	t := &Translator{
		catalog:  builder,
		matcher:  language.NewMatcher(Supported),
		fallback: Supported[0],
		location: location,
	}
	if strings.TrimSpace(defaultLocale) != "" {
		tag, err := language.Parse(defaultLocale)
		if err != nil {
			return nil, fmt.Errorf("i18n: default locale %q: %w", defaultLocale, err)
		}
		t.fallback = t.match(tag)
	}
	return t, nil
}

// Negotiate picks the supported locale for an Accept-Language header value.
func (t *Translator) Negotiate(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return t.fallback.String()
	}
	return t.match(tags...).String()
}

// Message renders key in locale. Unknown keys are returned as-is.
func (t *Translator) Message(locale, key string, params map[string]any) string {
	tag := t.resolve(locale)
	msg, ok := messages[key]
	if !ok {
		return key
	}
	args := make([]any, 0, len(msg.params))
	for _, name := range msg.params {
		args = append(args, t.formatParam(tag, params[name]))
	}
	return message.NewPrinter(tag, message.Catalog(t.catalog)).Sprintf(key, args...)
}

// FormatDate renders the calendar date of ts in the business time zone.
func (t *Translator) FormatDate(locale string, ts time.Time) string {
	tag := t.resolve(locale)
	layout, ok := dateLayouts[tag]
	if !ok {
		layout = dateLayouts[language.English]
	}
	return ts.In(t.location).Format(layout)
}

// Location returns the time zone dates are rendered in.
func (t *Translator) Location() *time.Location {
	return t.location
}

func (t *Translator) formatParam(tag language.Tag, value any) any {
	switch v := value.(type) {
	case nil:
		return ""
	case time.Time:
		return t.FormatDate(tag.String(), v)
	case *time.Time:
		if v == nil {
			return ""
		}
		return t.FormatDate(tag.String(), *v)
	default:
		return v
	}
}

func (t *Translator) resolve(locale string) language.Tag {
	if strings.TrimSpace(locale) == "" {
		return t.fallback
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return t.fallback
	}
	return t.match(tag)
}

func (t *Translator) match(tags ...language.Tag) language.Tag {
	_, index, confidence := t.matcher.Match(tags...)
	if confidence == language.No {
		return t.fallback
	}
	return Supported[index]
}
