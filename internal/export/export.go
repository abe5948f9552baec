package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/launchpad/internal/storage"
	"github.com/rovshanmuradov/launchpad/internal/storage/models"
	"github.com/rovshanmuradov/launchpad/internal/types"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(s)); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format    ExportFormat
	Filter    storage.TradeFilter
	OutputDir string
	// Now stamps the file name and the export metadata. Defaults to time.Now.
	Now func() time.Time
}

func (o ExportOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// TradeExporter handles trade export functionality
type TradeExporter struct {
	logger *zap.Logger
}

// NewTradeExporter creates a new trade exporter
func NewTradeExporter(logger *zap.Logger) *TradeExporter {
	return &TradeExporter{
		logger: logger,
	}
}

// ExportTrades writes the trades that pass the filter to a new file under
// options.OutputDir and returns its path.
func (te *TradeExporter) ExportTrades(trades []*models.TradeRecord, options ExportOptions) (string, error) {
	filtered := te.filterTrades(trades, options.Filter)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no trades match the export criteria")
	}

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(options.OutputDir, te.generateFilename(options))

	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := te.Write(file, filtered, options); err != nil {
		return "", err
	}

	te.logger.Info("Trades exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

// Write encodes trades to w in the requested format. Trades are filtered
// and sorted by execution time first.
func (te *TradeExporter) Write(w io.Writer, trades []*models.TradeRecord, options ExportOptions) error {
	filtered := te.filterTrades(trades, options.Filter)

	switch options.Format {
	case FormatCSV:
		return te.writeCSV(w, filtered)
	case FormatJSON:
		return te.writeJSON(w, filtered, options.now())
	default:
		return fmt.Errorf("unsupported format: %s", options.Format)
	}
}

// filterTrades applies the filter and orders the result by execution time.
func (te *TradeExporter) filterTrades(trades []*models.TradeRecord, filter storage.TradeFilter) []*models.TradeRecord {
	var filtered []*models.TradeRecord
	for _, trade := range trades {
		if filter.Match(trade) {
			filtered = append(filtered, trade)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].ExecutedAt.Before(filtered[j].ExecutedAt)
	})
	return filtered
}

// generateFilename creates a filename based on export options
func (te *TradeExporter) generateFilename(options ExportOptions) string {
	timestamp := options.now().Format("20060102_150405")

	prefix := "trades_all"
	if options.Filter.Side != "" {
		prefix = "trades_" + options.Filter.Side
	}
	if options.Filter.Asset != "" {
		prefix += "_" + sanitize(options.Filter.Asset)
	}

	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, options.Format)
}

func sanitize(s string) string {
	if len(s) > 16 {
		s = s[:16]
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// CSVHeaders returns the column names used by the CSV export.
func CSVHeaders() []string {
	return []string{
		"executed_at", "event_id", "asset", "side", "trader", "owner",
		"amount", "value", "average", "fee_total", "fee_creator", "fee_platform",
		"fee_treasury", "redirected", "net", "supply", "reserve", "price", "balance",
	}
}

func csvRow(t *models.TradeRecord) []string {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	return []string{
		t.ExecutedAt.UTC().Format(time.RFC3339Nano), t.EventID, t.Asset, t.Side, t.Trader, t.Owner,
		u(t.Amount), u(t.Value), u(t.Average), u(t.FeeTotal), u(t.FeeCreator), u(t.FeePlatform),
		u(t.FeeTreasury), u(t.Redirected), u(t.Net), u(t.Supply), u(t.Reserve), u(t.Price), u(t.Balance),
	}
}

func (te *TradeExporter) writeCSV(w io.Writer, trades []*models.TradeRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, trade := range trades {
		if err := writer.Write(csvRow(trade)); err != nil {
			return fmt.Errorf("failed to write trade: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func (te *TradeExporter) writeJSON(w io.Writer, trades []*models.TradeRecord, now time.Time) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime time.Time             `json:"export_time"`
		TradeCount int                   `json:"trade_count"`
		Trades     []*models.TradeRecord `json:"trades"`
		Summary    ExportSummary         `json:"summary"`
	}{
		ExportTime: now,
		TradeCount: len(trades),
		Trades:     trades,
		Summary:    Summarize(trades),
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportSummary contains summary statistics for exported trades
type ExportSummary struct {
	TotalTrades    int       `json:"total_trades"`
	BuyCount       int       `json:"buy_count"`
	SellCount      int       `json:"sell_count"`
	UniqueAssets   int       `json:"unique_assets"`
	UniqueTraders  int       `json:"unique_traders"`
	TokensBought   uint64    `json:"tokens_bought"`
	TokensSold     uint64    `json:"tokens_sold"`
	BuyVolume      uint64    `json:"buy_volume"`
	SellVolume     uint64    `json:"sell_volume"`
	CreatorFees    uint64    `json:"creator_fees"`
	PlatformFees   uint64    `json:"platform_fees"`
	TreasuryFees   uint64    `json:"treasury_fees"`
	RedirectedFees uint64    `json:"redirected_fees"`
	FirstBuys      int       `json:"first_buys"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
}

// Summarize aggregates trades, which must be in execution order.
func Summarize(trades []*models.TradeRecord) ExportSummary {
	summary := ExportSummary{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return summary
	}

	summary.StartDate = trades[0].ExecutedAt
	summary.EndDate = trades[len(trades)-1].ExecutedAt

	assets := make(map[string]struct{})
	traders := make(map[string]struct{})

	for _, trade := range trades {
		assets[trade.Asset] = struct{}{}
		traders[trade.Trader] = struct{}{}

		summary.CreatorFees += trade.FeeCreator
		summary.PlatformFees += trade.FeePlatform
		summary.TreasuryFees += trade.FeeTreasury
		summary.RedirectedFees += trade.Redirected

		switch trade.Side {
		case string(types.SideBuy):
			summary.BuyCount++
			summary.TokensBought += trade.Amount
			summary.BuyVolume += trade.Value
			if trade.FirstBuy {
				summary.FirstBuys++
			}
		case string(types.SideSell):
			summary.SellCount++
			summary.TokensSold += trade.Amount
			summary.SellVolume += trade.Value
		}
	}

	summary.UniqueAssets = len(assets)
	summary.UniqueTraders = len(traders)
	return summary
}

// DailyReport represents a daily trading report
type DailyReport struct {
	Date            time.Time             `json:"date"`
	TradeCount      int                   `json:"trade_count"`
	Summary         ExportSummary         `json:"summary"`
	HourlyBreakdown []HourlyStats         `json:"hourly_breakdown"`
	Trades          []*models.TradeRecord `json:"trades"`
}

// HourlyStats represents trading statistics for an hour
type HourlyStats struct {
	Hour       int    `json:"hour"`
	TradeCount int    `json:"trade_count"`
	BuyCount   int    `json:"buy_count"`
	SellCount  int    `json:"sell_count"`
	Volume     uint64 `json:"volume"`
	Fees       uint64 `json:"fees"`
}

// ExportDailyReport writes a JSON report for the UTC day containing date.
// It returns "" without error when the day had no trades.
func (te *TradeExporter) ExportDailyReport(trades []*models.TradeRecord, date time.Time, outputDir string) (string, error) {
	date = date.UTC()
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	endOfDay := startOfDay.Add(24*time.Hour - time.Nanosecond)

	filtered := te.filterTrades(trades, storage.TradeFilter{From: startOfDay, To: endOfDay})
	if len(filtered) == 0 {
		te.logger.Info("No trades for daily report", zap.Time("date", startOfDay))
		return "", nil
	}

	report := DailyReport{
		Date:            startOfDay,
		TradeCount:      len(filtered),
		Trades:          filtered,
		Summary:         Summarize(filtered),
		HourlyBreakdown: hourlyBreakdown(filtered),
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(outputDir, fmt.Sprintf("daily_report_%s.json", startOfDay.Format("20060102")))

	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	te.logger.Info("Daily report exported",
		zap.String("file", outputPath),
		zap.Time("date", startOfDay),
		zap.Int("trades", len(filtered)))

	return outputPath, nil
}

func hourlyBreakdown(trades []*models.TradeRecord) []HourlyStats {
	hourlyMap := make(map[int]*HourlyStats)

	for _, trade := range trades {
		hour := trade.ExecutedAt.UTC().Hour()

		stats, exists := hourlyMap[hour]
		if !exists {
			stats = &HourlyStats{Hour: hour}
			hourlyMap[hour] = stats
		}

		stats.TradeCount++
		stats.Volume += trade.Value
		stats.Fees += trade.FeeTotal

		switch trade.Side {
		case string(types.SideBuy):
			stats.BuyCount++
		case string(types.SideSell):
			stats.SellCount++
		}
	}

	var breakdown []HourlyStats
	for hour := 0; hour < 24; hour++ {
		if stats, exists := hourlyMap[hour]; exists {
			breakdown = append(breakdown, *stats)
		}
	}
	return breakdown
}
