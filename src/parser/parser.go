package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"smile-observer/src/logger"
	"smile-observer/src/models"
)

// -----------------------------------------------------------------------------
// SnapshotParser turns a decompressed CSV payload into a volatility-smile
// snapshot. Columns are located by header name, never by position.
// -----------------------------------------------------------------------------

// DateFormat is the fixed layout of the snap_shot_dates column.
const DateFormat = "2006-01-02"

// Required column names. A payload missing any of these fails with a
// SchemaError before a single row is parsed.
const (
	colSnapshotDate = "snap_shot_dates"
	colSymbol       = "symbol"
	colStrike       = "strikes"
	colTheoIv       = "theo_ivs"
	colBidIv        = "bid_iv"
	colAskIv        = "ask_iv"
	colBidPrice     = "bid_prices"
	colAskPrice     = "ask_prices"

	// Optional columns: substituted with NaN / "N/A" when absent.
	colOptionType   = "option_types"
	colMidIv        = "mid_iv"
	colLogMoneyness = "log_moneyness"
)

var requiredColumns = []string{
	colSnapshotDate, colSymbol, colStrike, colTheoIv,
	colBidIv, colAskIv, colBidPrice, colAskPrice,
}

// -----------------------------------------------------------------------------
// Error types
// -----------------------------------------------------------------------------

// SchemaError reports a payload whose header (or header-level date) cannot be
// used; no partial snapshot is ever produced from such a payload.
type SchemaError struct {
	Message string
	Missing []string
}

func (e *SchemaError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: missing column(s) %s", e.Message, strings.Join(e.Missing, ", "))
	}
	return e.Message
}

// -----------------------------------------------------------------------------

// EmptyResultError reports a payload that yielded zero valid points.
type EmptyResultError struct {
	RowsSkipped int
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("payload produced no valid points (%d rows skipped)", e.RowsSkipped)
}

// -----------------------------------------------------------------------------
// Stats
// -----------------------------------------------------------------------------

// Stats counts the outcome of a single parse for diagnostics.
type Stats struct {
	RowsParsed  int
	RowsSkipped int
}

// -----------------------------------------------------------------------------
// SnapshotParser
// -----------------------------------------------------------------------------

type SnapshotParser struct {
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSnapshotParser(log *logger.Logger) *SnapshotParser {
	return &SnapshotParser{Logger: log}
}

// -----------------------------------------------------------------------------

// Parse reads the decompressed CSV text and builds a snapshot for the given
// stream symbol. The snapshot date is taken once from the first data row; all
// subsequent rows are assumed to share it (single-date-per-payload payloads
// are what the backend sends, so per-row dates are not re-validated).
func (p *SnapshotParser) Parse(symbol string, data []byte) (*models.MSnapshot, Stats, error) {
	stats := Stats{}

	lines := splitLines(string(data))
	if len(lines) == 0 {
		return nil, stats, &SchemaError{Message: "CSV payload is empty or contains no header"}
	}

	// --- Header ---
	headers := splitFields(lines[0])
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[h] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, stats, &SchemaError{Message: "CSV header incomplete", Missing: missing}
	}

	idxDate := index[colSnapshotDate]
	idxSymbol := index[colSymbol]
	idxStrike := index[colStrike]
	idxTheo := index[colTheoIv]
	idxBidIv := index[colBidIv]
	idxAskIv := index[colAskIv]
	idxBidPx := index[colBidPrice]
	idxAskPx := index[colAskPrice]

	idxType, hasType := index[colOptionType]
	idxMid, hasMid := index[colMidIv]
	idxMny, hasMny := index[colLogMoneyness]

	// --- Data rows ---
	snapshotDate := ""
	var points []models.MOptionPoint

	for lineNum, line := range lines[1:] {
		values := splitFields(line)
		if len(values) != len(headers) {
			p.Logger.Warning("Skipping CSV line %d: mismatched column count (%d vs header %d)",
				lineNum+2, len(values), len(headers))
			stats.RowsSkipped++
			continue
		}

		// The date is fixed for the whole payload; read it from the first
		// usable row. An unparsable date there invalidates the payload.
		if snapshotDate == "" {
			raw := values[idxDate]
			if _, err := time.Parse(DateFormat, raw); err != nil {
				return nil, stats, &SchemaError{
					Message: fmt.Sprintf("invalid snapshot date '%s' on first data row", raw),
				}
			}
			snapshotDate = raw
		}

		optSymbol := values[idxSymbol]
		if optSymbol == "" {
			p.Logger.Warning("Skipping CSV line %d: empty symbol", lineNum+2)
			stats.RowsSkipped++
			continue
		}

		strike, okStrike := parseFloat(values[idxStrike])
		theoIv, okTheo := parseFloat(values[idxTheo])
		bidIv, okBid := parseFloat(values[idxBidIv])
		askIv, okAsk := parseFloat(values[idxAskIv])
		bidPx, okBidPx := parseFloat(values[idxBidPx])
		askPx, okAskPx := parseFloat(values[idxAskPx])

		if !okStrike || !okTheo || !okBid || !okAsk || !okBidPx || !okAskPx {
			p.Logger.Warning("Skipping CSV line %d (%s): invalid numeric field", lineNum+2, optSymbol)
			stats.RowsSkipped++
			continue
		}

		optType := "N/A"
		if hasType {
			optType = values[idxType]
		}
		midIv := math.NaN()
		if hasMid {
			if v, ok := parseFloat(values[idxMid]); ok {
				midIv = v
			}
		}
		logMny := math.NaN()
		if hasMny {
			if v, ok := parseFloat(values[idxMny]); ok {
				logMny = v
			}
		}

		points = append(points, models.MOptionPoint{
			OptionSymbol: optSymbol,
			OptionType:   optType,
			Strike:       strike,
			TheoIv:       theoIv,
			MidIv:        midIv,
			BidIv:        bidIv,
			AskIv:        askIv,
			BidPrice:     bidPx,
			AskPrice:     askPx,
			LogMoneyness: logMny,
		})
		stats.RowsParsed++
	}

	if len(points) == 0 {
		return nil, stats, &EmptyResultError{RowsSkipped: stats.RowsSkipped}
	}

	p.Logger.Debug("CSV parsing finished for %s/%s: %d rows parsed, %d skipped",
		symbol, snapshotDate, stats.RowsParsed, stats.RowsSkipped)

	return &models.MSnapshot{
		Symbol: symbol,
		Date:   snapshotDate,
		Points: points,
	}, stats, nil
}

// -----------------------------------------------------------------------------

// splitLines drops empty lines and trims line endings.
func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// -----------------------------------------------------------------------------

// splitFields splits a CSV line on commas and trims each field. The backend
// never quotes fields, so a plain split matches its writer.
func splitFields(line string) []string {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// -----------------------------------------------------------------------------

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
