package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"

	"github.com/bonafide55/shop-api/internal/order"
)

const divider = "━━━━━━━━━━━━━━━━━━━━"

// Formatter renders order notifications in Telegram HTML parse mode.
// Customer supplied text is stripped of markup and escaped.
type Formatter struct {
	FreeShippingThreshold decimal.NullDecimal
	SiteURL               string
	AdminPath             string

	policy *bluemonday.Policy
}

// NewFormatter constructs a Formatter. adminPath defaults to "admin/".
func NewFormatter(threshold decimal.NullDecimal, siteURL, adminPath string) *Formatter {
	if adminPath == "" {
		adminPath = "admin/"
	}
	return &Formatter{
		FreeShippingThreshold: threshold,
		SiteURL:               strings.TrimRight(siteURL, "/"),
		AdminPath:             strings.TrimLeft(adminPath, "/"),
		policy:                bluemonday.StrictPolicy(),
	}
}

func (f *Formatter) clean(s string) string {
	if f.policy == nil {
		f.policy = bluemonday.StrictPolicy()
	}
	return strings.TrimSpace(f.policy.Sanitize(s))
}

// Format renders the manager notification for o.
func (f *Formatter) Format(o order.Order) string {
	c := o.Customer
	var b strings.Builder

	fmt.Fprintf(&b, "🛒 <b>НОВЫЙ ЗАКАЗ #%d</b>\n\n", o.ID)
	fmt.Fprintf(&b, "👤 <b>Клиент:</b> %s\n", f.clean(c.FullName()))
	fmt.Fprintf(&b, "📱 <b>Телефон:</b> %s", f.clean(c.Phone))
	if o.TelegramID != nil {
		fmt.Fprintf(&b, "\n🆔 Telegram ID: <code>%d</code>", *o.TelegramID)
	}
	fmt.Fprintf(&b, "\n\n📦 <b>Доставка:</b> %s%s\n", f.clean(c.DeliveryMethod), f.shippingSuffix(o.FinalTotal))
	b.WriteString(f.address(c))
	b.WriteString("\n\n" + divider + "\n📋 <b>ТОВАРЫ:</b>\n\n")
	for i, it := range o.Items {
		fmt.Fprintf(&b, "%d. %s × %d шт. — %s ₽\n", i+1, f.clean(it.ProductName), it.Quantity, Rubles(it.PriceAtPurchase))
	}
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "💰 <b>Сумма:</b> %s ₽\n", Rubles(o.Subtotal))
	if o.DiscountAmount.IsPositive() {
		fmt.Fprintf(&b, "🎁 <b>Скидка:</b> -%s ₽", Rubles(o.DiscountAmount))
		if o.AppliedRule != nil && *o.AppliedRule != "" {
			fmt.Fprintf(&b, " (%s)", f.clean(*o.AppliedRule))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "💵 <b>К оплате:</b> %s ₽", Rubles(o.FinalTotal))
	if f.SiteURL != "" {
		fmt.Fprintf(&b, "\n\n🔗 <a href=\"%s/%sshop/order/%d/change/\">Открыть в админке</a>", f.SiteURL, f.AdminPath, o.ID)
	}
	return b.String()
}

func (f *Formatter) shippingSuffix(total decimal.Decimal) string {
	if !f.FreeShippingThreshold.Valid || !f.FreeShippingThreshold.Decimal.IsPositive() {
		return ""
	}
	if total.GreaterThanOrEqual(f.FreeShippingThreshold.Decimal) {
		return " (Бесплатно)"
	}
	return " (Платная)"
}

func (f *Formatter) address(c order.Customer) string {
	if c.DeliveryMethod == order.DeliveryCDEK {
		return "📍 ПВЗ СДЭК: " + f.clean(c.CDEKOfficeAddress)
	}
	parts := []string{f.clean(c.City)}
	if c.Street != "" {
		parts = append(parts, "ул. "+f.clean(c.Street))
	}
	if c.House != "" {
		parts = append(parts, "д. "+f.clean(c.House))
	}
	if c.Apartment != "" {
		parts = append(parts, "кв. "+f.clean(c.Apartment))
	}
	if c.Postcode != "" {
		parts = append(parts, "(индекс: "+f.clean(c.Postcode)+")")
	}
	return "📍 " + strings.Join(parts, ", ")
}

// Rubles rounds d half-even to whole units and groups thousands with commas.
func Rubles(d decimal.Decimal) string {
	n := d.RoundBank(0).IntPart()
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String()
}
