package folio

import "strings"

// Payment modes accepted for advances and settlements.
const (
	ModeCash         = "Cash"
	ModeCreditCard   = "Credit Card"
	ModeDebitCard    = "Debit Card"
	ModeUPI          = "UPI"
	ModeBankTransfer = "Bank Transfer"
	ModeCheque       = "Cheque"
)

// PaymentModes is the fixed vocabulary in display order.
var PaymentModes = []string{ModeCash, ModeCreditCard, ModeDebitCard, ModeUPI, ModeBankTransfer, ModeCheque}

var paymentModeAliases = map[string]string{
	"cash":          ModeCash,
	"credit card":   ModeCreditCard,
	"creditcard":    ModeCreditCard,
	"card":          ModeCreditCard,
	"debit card":    ModeDebitCard,
	"debitcard":     ModeDebitCard,
	"upi":           ModeUPI,
	"bank transfer": ModeBankTransfer,
	"banktransfer":  ModeBankTransfer,
	"transfer":      ModeBankTransfer,
	"cheque":        ModeCheque,
	"check":         ModeCheque,
}

// NormalizePaymentMode maps user input onto the fixed vocabulary,
// case-insensitively. Unknown input returns ok=false.
func NormalizePaymentMode(mode string) (string, bool) {
	normalized, ok := paymentModeAliases[normalizeKey(mode)]
	return normalized, ok
}

// normalizeKey lowercases, trims and collapses inner whitespace.
func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
