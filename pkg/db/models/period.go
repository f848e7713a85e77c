package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/messledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/messledger-backend/pkg/errors"
)

// Period is a calendar month accounting window.
type Period struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code      string             `gorm:"column:code;size:20;not null;uniqueIndex:periods_code_key"`
	Year      int                `gorm:"column:year;not null;uniqueIndex:periods_year_month_key,priority:1"`
	Month     int                `gorm:"column:month;not null;uniqueIndex:periods_year_month_key,priority:2"`
	Status    enums.PeriodStatus `gorm:"column:status;type:period_status;not null;default:'OPEN'"`
	OpenedAt  *time.Time         `gorm:"column:opened_at"`
	ClosedAt  *time.Time         `gorm:"column:closed_at"`
	LockedAt  *time.Time         `gorm:"column:locked_at"`
	CreatedBy *uuid.UUID         `gorm:"column:created_by;type:uuid"`
	ClosedBy  *uuid.UUID         `gorm:"column:closed_by;type:uuid"`
	LockedBy  *uuid.UUID         `gorm:"column:locked_by;type:uuid"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Period) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	if p.Code == "" {
		p.Code = PeriodCode(p.Year, p.Month)
	}
	return nil
}

// Before reports whether p sorts strictly earlier than other.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// PeriodCode renders the canonical YYYY-MM code.
func PeriodCode(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

var periodCodePattern = regexp.MustCompile(`^(\d{4})-(\d{2})$`)

// ParsePeriodCode splits a YYYY-MM period code.
func ParsePeriodCode(code string) (year, month int, err error) {
	match := periodCodePattern.FindStringSubmatch(code)
	if match == nil {
		return 0, 0, invalidPeriodCode(code)
	}
	year, _ = strconv.Atoi(match[1])
	month, _ = strconv.Atoi(match[2])
	if year < 1 || month < 1 || month > 12 {
		return 0, 0, invalidPeriodCode(code)
	}
	return year, month, nil
}

func invalidPeriodCode(code string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid period code, expected YYYY-MM").
		WithDetails(map[string]any{"period": code})
}
