package symbols

import (
	"strings"

	"orderflow/models"
)

// ForSource converts the configured instrument into the symbol each
// exchange expects. Separators are stripped and BTC/XBT aliases folded.
func ForSource(source models.SourceID, instrument string) string {
	sym := Normalize(instrument)
	switch source {
	case models.SourceBinance, models.SourceBitstamp:
		return strings.ToLower(sym)
	case models.SourceBybit:
		return strings.ToUpper(sym)
	default:
		return sym
	}
}

// Normalize strips separators and maps XBT to BTC, keeping the case of the
// remaining characters lower.
func Normalize(instrument string) string {
	sym := strings.ToLower(strings.TrimSpace(instrument))
	for _, sep := range []string{"-", "/", "_", " "} {
		sym = strings.ReplaceAll(sym, sep, "")
	}
	sym = strings.ReplaceAll(sym, "xbt", "btc")
	return sym
}
