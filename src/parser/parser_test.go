package parser

import (
	"math"
	"testing"

	"smile-observer/src/logger"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

func newTestParser() *SnapshotParser {
	return NewSnapshotParser(logger.NewLogger("test", logger.ERROR))
}

// -----------------------------------------------------------------------------

func TestParseFullPayload(t *testing.T) {
	csv := "snap_shot_dates,symbol,option_types,strikes,theo_ivs,mid_iv,bid_iv,ask_iv,bid_prices,ask_prices,log_moneyness\n" +
		"2024-01-15,AAPL240119C00180000,c,180.0,0.245,0.2455,0.24,0.251,3.10,3.25,-0.0213\n" +
		"2024-01-15,AAPL240119P00175000,p,175.0,0.258,0.2579,0.253,0.2628,1.05,1.12,-0.0495\n"

	snapshot, stats, err := newTestParser().Parse("AAPL", []byte(csv))
	require.NoError(t, err)
	require.Equal(t, "AAPL", snapshot.Symbol)
	require.Equal(t, "2024-01-15", snapshot.Date)
	require.Len(t, snapshot.Points, 2)
	require.Equal(t, 2, stats.RowsParsed)
	require.Equal(t, 0, stats.RowsSkipped)

	p := snapshot.Points[0]
	require.Equal(t, "AAPL240119C00180000", p.OptionSymbol)
	require.Equal(t, "c", p.OptionType)
	require.InDelta(t, 180.0, p.Strike, 1e-9)
	require.InDelta(t, 0.245, p.TheoIv, 1e-9)
	require.InDelta(t, 0.2455, p.MidIv, 1e-9)
	require.InDelta(t, -0.0213, p.LogMoneyness, 1e-9)
}

// -----------------------------------------------------------------------------

func TestParseColumnOrderIndependent(t *testing.T) {
	// Same fields, shuffled column order.
	csv := "ask_prices,symbol,bid_iv,snap_shot_dates,strikes,ask_iv,theo_ivs,bid_prices\n" +
		"3.25,AAPL240119C00180000,0.24,2024-01-15,180.0,0.251,0.245,3.10\n"

	snapshot, _, err := newTestParser().Parse("AAPL", []byte(csv))
	require.NoError(t, err)
	require.Len(t, snapshot.Points, 1)

	p := snapshot.Points[0]
	require.InDelta(t, 180.0, p.Strike, 1e-9)
	require.InDelta(t, 0.245, p.TheoIv, 1e-9)
	require.InDelta(t, 3.10, p.BidPrice, 1e-9)
	require.InDelta(t, 3.25, p.AskPrice, 1e-9)
}

// -----------------------------------------------------------------------------

func TestParseOptionalColumnsAbsent(t *testing.T) {
	csv := "snap_shot_dates,symbol,strikes,theo_ivs,bid_iv,ask_iv,bid_prices,ask_prices\n" +
		"2024-01-15,AAPL240119C00180000,180.0,0.245,0.24,0.251,3.10,3.25\n"

	snapshot, _, err := newTestParser().Parse("AAPL", []byte(csv))
	require.NoError(t, err)
	require.Len(t, snapshot.Points, 1)

	p := snapshot.Points[0]
	require.Equal(t, "N/A", p.OptionType)
	require.True(t, math.IsNaN(p.MidIv))
	require.True(t, math.IsNaN(p.LogMoneyness))
}

// -----------------------------------------------------------------------------

func TestParseSkipsBadRowsKeepsGood(t *testing.T) {
	csv := "snap_shot_dates,symbol,strikes,theo_ivs,bid_iv,ask_iv,bid_prices,ask_prices\n" +
		"2024-01-15,GOOD1,180.0,0.245,0.24,0.251,3.10,3.25\n" +
		"2024-01-15,BAD_COUNT,180.0,0.245\n" +
		"2024-01-15,,175.0,0.25,0.24,0.26,1.0,1.1\n" +
		"2024-01-15,BAD_NUM,not_a_number,0.25,0.24,0.26,1.0,1.1\n" +
		"2024-01-15,GOOD2,185.0,0.231,0.227,0.2355,1.42,1.51\n"

	snapshot, stats, err := newTestParser().Parse("AAPL", []byte(csv))
	require.NoError(t, err)
	require.Len(t, snapshot.Points, 2)
	require.Equal(t, 2, stats.RowsParsed)
	require.Equal(t, 3, stats.RowsSkipped)
	require.Equal(t, "GOOD1", snapshot.Points[0].OptionSymbol)
	require.Equal(t, "GOOD2", snapshot.Points[1].OptionSymbol)
}

// -----------------------------------------------------------------------------

func TestParseRejectsNonFiniteValues(t *testing.T) {
	csv := "snap_shot_dates,symbol,strikes,theo_ivs,bid_iv,ask_iv,bid_prices,ask_prices\n" +
		"2024-01-15,INF_ROW,180.0,+Inf,0.24,0.251,3.10,3.25\n" +
		"2024-01-15,NAN_ROW,180.0,NaN,0.24,0.251,3.10,3.25\n" +
		"2024-01-15,GOOD,180.0,0.245,0.24,0.251,3.10,3.25\n"

	snapshot, stats, err := newTestParser().Parse("AAPL", []byte(csv))
	require.NoError(t, err)
	require.Len(t, snapshot.Points, 1)
	require.Equal(t, "GOOD", snapshot.Points[0].OptionSymbol)
	require.Equal(t, 2, stats.RowsSkipped)
}

// -----------------------------------------------------------------------------

func TestParseMissingRequiredColumns(t *testing.T) {
	csv := "snap_shot_dates,symbol,strikes\n" +
		"2024-01-15,AAPL240119C00180000,180.0\n"

	_, _, err := newTestParser().Parse("AAPL", []byte(csv))
	require.Error(t, err)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Contains(t, schemaErr.Missing, "theo_ivs")
	require.Contains(t, schemaErr.Missing, "bid_prices")
}

// -----------------------------------------------------------------------------

func TestParseEmptyPayload(t *testing.T) {
	var schemaErr *SchemaError

	_, _, err := newTestParser().Parse("AAPL", []byte(""))
	require.ErrorAs(t, err, &schemaErr)

	_, _, err = newTestParser().Parse("AAPL", []byte("\n\n\n"))
	require.ErrorAs(t, err, &schemaErr)
}

// -----------------------------------------------------------------------------

func TestParseHeaderOnly(t *testing.T) {
	csv := "snap_shot_dates,symbol,strikes,theo_ivs,bid_iv,ask_iv,bid_prices,ask_prices\n"

	_, _, err := newTestParser().Parse("AAPL", []byte(csv))
	require.Error(t, err)

	var emptyErr *EmptyResultError
	require.ErrorAs(t, err, &emptyErr)
}

// -----------------------------------------------------------------------------

func TestParseAllRowsInvalid(t *testing.T) {
	csv := "snap_shot_dates,symbol,strikes,theo_ivs,bid_iv,ask_iv,bid_prices,ask_prices\n" +
		"2024-01-15,BAD1,x,0.245,0.24,0.251,3.10,3.25\n" +
		"2024-01-15,BAD2,y,0.245,0.24,0.251,3.10,3.25\n"

	_, stats, err := newTestParser().Parse("AAPL", []byte(csv))
	require.Error(t, err)

	var emptyErr *EmptyResultError
	require.ErrorAs(t, err, &emptyErr)
	require.Equal(t, 2, emptyErr.RowsSkipped)
	require.Equal(t, 2, stats.RowsSkipped)
}

// -----------------------------------------------------------------------------

func TestParseBadFirstDate(t *testing.T) {
	csv := "snap_shot_dates,symbol,strikes,theo_ivs,bid_iv,ask_iv,bid_prices,ask_prices\n" +
		"15/01/2024,AAPL240119C00180000,180.0,0.245,0.24,0.251,3.10,3.25\n"

	_, _, err := newTestParser().Parse("AAPL", []byte(csv))
	require.Error(t, err)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

// -----------------------------------------------------------------------------

func TestParseCRLFAndWhitespace(t *testing.T) {
	csv := "snap_shot_dates, symbol, strikes, theo_ivs, bid_iv, ask_iv, bid_prices, ask_prices\r\n" +
		"2024-01-15, AAPL240119C00180000, 180.0, 0.245, 0.24, 0.251, 3.10, 3.25\r\n"

	snapshot, _, err := newTestParser().Parse("AAPL", []byte(csv))
	require.NoError(t, err)
	require.Len(t, snapshot.Points, 1)
	require.Equal(t, "AAPL240119C00180000", snapshot.Points[0].OptionSymbol)
}
