package cart

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

var amountPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// ParsePrice extracts the first amount from price markup such as
// `<span class="amount"><bdi><span>&#36;</span>1,299.00</bdi></span>`.
// Markup without a number parses as zero.
func ParsePrice(markup string) decimal.Decimal {
	text := textContent(markup)
	token := amountPattern.FindString(text)
	if token == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(token, ",", ""))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FormatMoney renders an amount the way the cart and mini-cart show subtotals.
func FormatMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// textContent concatenates the text nodes of an HTML fragment with entities decoded.
func textContent(markup string) string {
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; either way the text so far is all there is
			return sb.String()
		case html.TextToken:
			sb.Write(z.Text())
		}
	}
}
