package datasource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalens-hq/insight-engine/pkg/apperrors"
)

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"orders"`, QuoteIdentifier("orders"))
	assert.Equal(t, `"order ""amount"""`, QuoteIdentifier(`order "amount"`))
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, `'paid'`, QuoteLiteral("paid"))
	assert.Equal(t, `'O''Brien'`, QuoteLiteral("O'Brien"))
}

func TestCheckLiteral(t *testing.T) {
	require.NoError(t, CheckLiteral("table", "orders"))
	require.NoError(t, CheckLiteral("table", "q4_sales_2025"))

	err := CheckLiteral("table", "orders; DROP TABLE users--")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInjectionDetected))
	assert.Contains(t, err.Error(), "table")

	err = CheckLiteral("column", "1' OR '1'='1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInjectionDetected))
}
