package datasource

import (
	"fmt"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/datalens-hq/insight-engine/pkg/apperrors"
)

// QuoteIdentifier wraps an identifier in double quotes, doubling any embedded
// double quote. This is the single escaping routine for identifiers; call
// sites must not do their own quote handling.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral wraps a string value in single quotes, doubling any embedded
// single quote.
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// CheckLiteral runs libinjection against a string value before it is
// interpolated into query text. Returns ErrInjectionDetected with the
// libinjection fingerprint when the value looks like an injection payload.
func CheckLiteral(name, value string) error {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if isSQLi {
		return fmt.Errorf("%w: parameter %q fingerprint %q", apperrors.ErrInjectionDetected, name, string(fingerprint))
	}
	return nil
}
