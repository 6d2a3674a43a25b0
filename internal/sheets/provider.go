// Package sheets reads run configuration from the operator-maintained
// Google Sheet: the account list, report filters, exclusion rules, and
// feature flags. The sheet is read-only from the pipeline's perspective and
// fetched fresh on every invocation.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/ads-placement-excluder/internal/common"
	"github.com/Veraticus/ads-placement-excluder/internal/model"
)

// Named ranges in the config sheet.
const (
	rangeCustomerIDs       = "google_ads_customer_ids"
	rangeGadsFilters       = "google_ads_filters"
	rangeLookbackDays      = "google_ads_lookback_days"
	rangeExclusionFilters  = "yt_exclusion_filters"
	rangeTranslationFilter = "yt_translation_filter"
)

// enabledValue is the cell content marking a row or flag as active.
const enabledValue = "Enabled"

// defaultLookbackDays applies when the sheet omits the lookback range.
const defaultLookbackDays = 30

// Config holds the configuration for the sheet reader.
type Config struct {
	CredentialsFile string // service account JSON key; empty uses ADC
}

// Provider implements service.ConfigProvider over the Google Sheets API.
type Provider struct {
	service *sheets.Service
	logger  *slog.Logger
}

// NewProvider creates the sheet reader.
func NewProvider(ctx context.Context, config Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.ClientOption{
		option.WithScopes(sheets.SpreadsheetsReadonlyScope),
	}
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Provider{service: service, logger: logger}, nil
}

// AccountConfigs returns one config per enabled account row. A failure to
// read the sheet is fatal to the invocation: without the account list there
// is nothing to fan out.
func (p *Provider) AccountConfigs(ctx context.Context, sheetID string) ([]model.AccountConfig, error) {
	customers, err := p.values(ctx, sheetID, rangeCustomerIDs)
	if err != nil {
		return nil, err
	}
	filterRows, err := p.values(ctx, sheetID, rangeGadsFilters)
	if err != nil {
		return nil, err
	}

	lookback := defaultLookbackDays
	lookbackRows, err := p.values(ctx, sheetID, rangeLookbackDays)
	if err == nil && len(lookbackRows) > 0 {
		if v, convErr := strconv.Atoi(cell(lookbackRows[0], 0)); convErr == nil && v > 0 {
			lookback = v
		}
	}

	gadsFilters := gadsFiltersToGAQL(filterRows)

	var configs []model.AccountConfig
	for _, row := range customers {
		id := cell(row, 0)
		if id == "" {
			continue
		}
		if cell(row, 1) != enabledValue {
			p.logger.Info("ignoring disabled account row", "customer_id", id)
			continue
		}
		configs = append(configs, model.AccountConfig{
			CustomerID:   id,
			LookbackDays: lookback,
			GadsFilters:  gadsFilters,
		})
	}

	p.logger.Info("loaded account configs",
		"sheet_id", sheetID,
		"accounts", len(configs))

	return configs, nil
}

// FilterRules returns every rule row from the exclusion filter range. Each
// row is one independent rule; invalid expressions are rejected later at
// compile time, not here, so a typo in one row cannot hide the others.
func (p *Provider) FilterRules(ctx context.Context, sheetID string) ([]model.FilterRule, error) {
	rows, err := p.values(ctx, sheetID, rangeExclusionFilters)
	if err != nil {
		return nil, err
	}

	var ruleSet []model.FilterRule
	for i, row := range rows {
		rule := ruleFromRow(row, i)
		if rule.Expression == "" {
			continue
		}
		ruleSet = append(ruleSet, rule)
	}
	return ruleSet, nil
}

// TranslationEnabled reports the yt_translation_filter flag. A sheet without
// the range means disabled.
func (p *Provider) TranslationEnabled(ctx context.Context, sheetID string) (bool, error) {
	rows, err := p.values(ctx, sheetID, rangeTranslationFilter)
	if err != nil {
		// The API reports an unknown named range as a bad request.
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
			return false, fmt.Errorf("%w: range %s", common.ErrNotFound, rangeTranslationFilter)
		}
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	return cell(rows[0], 0) == enabledValue, nil
}

func (p *Provider) values(ctx context.Context, sheetID, rangeName string) ([][]any, error) {
	resp, err := p.service.Spreadsheets.Values.Get(sheetID, rangeName).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet range %s: %w", rangeName, err)
	}
	return resp.Values, nil
}

// gadsFiltersToGAQL combines the metric filter rows into a GAQL WHERE
// fragment. Each row is [metric, operator, value] and rows are ANDed, e.g.
// `metrics.clicks > 10 AND metrics.impressions > 100`.
func gadsFiltersToGAQL(rows [][]any) string {
	var conditions []string
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		conditions = append(conditions,
			fmt.Sprintf("metrics.%s %s %s", cell(row, 0), cell(row, 1), cell(row, 2)))
	}
	return strings.Join(conditions, " AND ")
}

// ruleFromRow accepts [name, expression, flag], [expression, flag], or a
// bare [expression] row.
func ruleFromRow(row []any, index int) model.FilterRule {
	switch len(row) {
	case 0:
		return model.FilterRule{}
	case 1:
		return model.FilterRule{
			Name:       fmt.Sprintf("rule-%d", index+1),
			Expression: cell(row, 0),
			Enabled:    true,
		}
	case 2:
		return model.FilterRule{
			Name:       fmt.Sprintf("rule-%d", index+1),
			Expression: cell(row, 0),
			Enabled:    cell(row, 1) == enabledValue,
		}
	default:
		return model.FilterRule{
			Name:       cell(row, 0),
			Expression: cell(row, 1),
			Enabled:    cell(row, 2) == enabledValue,
		}
	}
}

func cell(row []any, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", row[i]))
}
