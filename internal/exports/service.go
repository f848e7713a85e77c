// Package exports renders period balance reports as spreadsheets.
package exports

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/angelmondragon/messledger-backend/internal/balances"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
	"github.com/angelmondragon/messledger-backend/pkg/logger"
)

// ContentTypeXLSX is the media type of generated workbooks.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const headerFill = "E0E0E0"

var summaryHeader = []any{
	"Item",
	"UOM",
	"Previous Month Qty",
	"Previous Month Rate",
	"Previous Month Amount",
	"Received Qty",
	"Received Rate",
	"Received Amount",
	"Gross Total",
	"Consumed from Previous Qty",
	"Consumed from Previous Rate",
	"Consumed from Previous Amount",
	"Consumed from Current Qty",
	"Consumed from Current Rate",
	"Consumed from Current Amount",
	"Next Month Qty",
	"Next Month Rate",
	"Next Month Amount",
	"Tally Check",
}

type balanceReporter interface {
	PeriodItemBalances(ctx context.Context, code string) (*balances.PeriodReport, error)
}

// Options names the generated sheet and file.
type Options struct {
	SheetName      string
	FilenamePrefix string
}

// Export is a rendered workbook ready to stream.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Service builds period workbooks from the live balance report.
type Service interface {
	PeriodWorkbook(ctx context.Context, code string) (*Export, error)
}

type service struct {
	reports balanceReporter
	opts    Options
	logg    *logger.Logger
}

func NewService(reports balanceReporter, opts Options, logg *logger.Logger) (Service, error) {
	if reports == nil {
		return nil, fmt.Errorf("balance reporter required")
	}
	if strings.TrimSpace(opts.SheetName) == "" {
		opts.SheetName = "Summary"
	}
	if strings.TrimSpace(opts.FilenamePrefix) == "" {
		opts.FilenamePrefix = "period"
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{reports: reports, opts: opts, logg: logg}, nil
}

func (s *service) PeriodWorkbook(ctx context.Context, code string) (*Export, error) {
	report, err := s.reports.PeriodItemBalances(ctx, code)
	if err != nil {
		return nil, err
	}

	data, err := renderSummary(s.opts.SheetName, report.Items)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render workbook")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{"period": report.Period.Code, "items": len(report.Items)})
	s.logg.Info(ctx, "export.period_workbook")

	return &Export{
		Filename:    fmt.Sprintf("%s-%s.xlsx", s.opts.FilenamePrefix, report.Period.Code),
		ContentType: ContentTypeXLSX,
		Data:        data,
	}, nil
}

func renderSummary(sheet string, rows []balances.ItemBalance) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheet, "A1", &summaryHeader); err != nil {
		return nil, err
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}},
	})
	if err != nil {
		return nil, err
	}
	if err := f.SetRowStyle(sheet, 1, 1, style); err != nil {
		return nil, err
	}

	for i, b := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := summaryRow(b)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 24); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func summaryRow(b balances.ItemBalance) []any {
	gross := b.Opening.Amount.Add(b.Received.Amount)
	return []any{
		b.ItemName,
		b.UOM,
		b.Opening.Qty.InexactFloat64(),
		b.Opening.AvgRate.InexactFloat64(),
		b.Opening.Amount.InexactFloat64(),
		b.Received.Qty.InexactFloat64(),
		b.Received.AvgRate.InexactFloat64(),
		b.Received.Amount.InexactFloat64(),
		gross.InexactFloat64(),
		b.Consumed.FromOpening.Qty.InexactFloat64(),
		b.Consumed.FromOpening.AvgRate.InexactFloat64(),
		b.Consumed.FromOpening.Amount.InexactFloat64(),
		b.Consumed.FromCurrent.Qty.InexactFloat64(),
		b.Consumed.FromCurrent.AvgRate.InexactFloat64(),
		b.Consumed.FromCurrent.Amount.InexactFloat64(),
		b.Closing.Qty.InexactFloat64(),
		b.Closing.AvgRate.InexactFloat64(),
		b.Closing.Amount.InexactFloat64(),
		b.TallyCheck.InexactFloat64(),
	}
}
