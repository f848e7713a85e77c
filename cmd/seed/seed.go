package main

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/messledger-backend/internal/items"
	"github.com/angelmondragon/messledger-backend/internal/periods"
	"github.com/angelmondragon/messledger-backend/pkg/db"
	"github.com/angelmondragon/messledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
	"github.com/angelmondragon/messledger-backend/pkg/logger"
)

var sampleItems = []models.Item{
	{Name: "Rice", UOM: "kg"},
	{Name: "Dal", UOM: "kg"},
	{Name: "Oil", UOM: "liter"},
	{Name: "Sugar", UOM: "kg"},
	{Name: "Salt", UOM: "kg"},
	{Name: "Onions", UOM: "kg"},
	{Name: "Potatoes", UOM: "kg"},
	{Name: "Tomatoes", UOM: "kg"},
}

type seedReport struct {
	ItemsCreated  int
	ItemsExisting int
	PeriodOpened  string
	OpenPeriod    string
}

// seed inserts the sample items that are missing and opens code when no
// period is open. Running it twice changes nothing.
func seed(ctx context.Context, itemRepo items.Repository, periodService periods.Service, code string, logg *logger.Logger) (*seedReport, error) {
	report := &seedReport{}
	for _, sample := range sampleItems {
		_, err := itemRepo.FindByName(ctx, sample.Name)
		if err == nil {
			report.ItemsExisting++
			continue
		}
		if !db.IsNotFound(err) {
			return nil, err
		}
		item := models.Item{Name: sample.Name, UOM: sample.UOM, IsActive: true}
		if err := itemRepo.Create(ctx, &item); err != nil {
			return nil, err
		}
		report.ItemsCreated++
		logg.Info(logg.WithField(ctx, "item", item.Name), "seed.item_created")
	}

	open, err := periodService.Current(ctx)
	switch {
	case err == nil:
		report.OpenPeriod = open.Code
		return report, nil
	case !pkgerrors.Is(err, pkgerrors.CodeNotFound):
		return nil, err
	}

	period, err := periodService.Create(ctx, code, uuid.Nil)
	if err != nil {
		return nil, err
	}
	report.PeriodOpened = period.Code
	logg.Info(logg.WithPeriodCode(ctx, period.Code), "seed.period_opened")
	return report, nil
}
