package checkout

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"storefront/internal/domain"
)

const (
	DefaultCurrency = "сом"
	DefaultPhone    = "996999050207"

	uncategorized = "Без категории"
)

// Formatter renders prices and order messages in Russian locale conventions.
type Formatter struct {
	currency string
	printer  *message.Printer
	point    string
}

// NewFormatter returns a Formatter using currency as the amount suffix; an
// empty currency falls back to DefaultCurrency.
func NewFormatter(currency string) *Formatter {
	if strings.TrimSpace(currency) == "" {
		currency = DefaultCurrency
	}
	p := message.NewPrinter(language.Russian)
	// Locale decimal separator, "," for Russian.
	point := strings.Trim(p.Sprint(number.Decimal(0.5, number.MinFractionDigits(1))), "05")
	return &Formatter{currency: currency, printer: p, point: point}
}

// FormatPrice groups thousands and prints up to two fraction digits, dropping
// them for whole amounts: 1500 -> "1 500 сом", 12.5 -> "12,5 сом".
// Only the integer part goes through the locale printer; the fraction is
// taken from the decimal digits so no float rounding is involved.
func (f *Formatter) FormatPrice(amount decimal.Decimal) string {
	abs := amount.Round(2).Abs()
	_, frac, _ := strings.Cut(abs.StringFixed(2), ".")
	frac = strings.TrimRight(frac, "0")

	var b strings.Builder
	if amount.Round(2).IsNegative() {
		b.WriteString("-")
	}
	b.WriteString(f.printer.Sprint(number.Decimal(abs.IntPart())))
	if frac != "" {
		b.WriteString(f.point)
		b.WriteString(frac)
	}
	b.WriteString(" ")
	b.WriteString(f.currency)
	return b.String()
}

// Message builds the order text sent to the shop's messenger.
func (f *Formatter) Message(lines []domain.CartLine, total decimal.Decimal) string {
	var b strings.Builder
	b.WriteString("📝 Новый заказ с сайта:\n")
	for i, l := range lines {
		category := l.Category
		if strings.TrimSpace(category) == "" {
			category = uncategorized
		}
		fmt.Fprintf(&b, "🛒 %d. %s | 📦 %s | 🔢 %d шт | 💰 %s\n", i+1, l.Title, category, l.Quantity, f.FormatPrice(l.Subtotal()))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "💳 Итого к оплате: %s\n", f.FormatPrice(total))
	b.WriteString("✅ Прошу подтвердить наличие и детали заказа.")
	return b.String()
}

// Link is the click-to-chat URL that opens msg addressed to phone.
func Link(phone, msg string) string {
	digits := strings.TrimLeft(strings.TrimSpace(phone), "+")
	text := strings.ReplaceAll(url.QueryEscape(msg), "+", "%20")
	return "https://wa.me/" + digits + "?text=" + text
}
