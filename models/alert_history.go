package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AlertHistory stores every delivered alert for auditing. Rows are
// best-effort: a write failure never blocks notification delivery.
type AlertHistory struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	ItemID    string          `gorm:"type:varchar(40);index" json:"item_id"`
	RuleID    string          `gorm:"type:varchar(40);index" json:"rule_id"`
	Code      string          `gorm:"type:varchar(20);index:idx_history_code_date" json:"code"`
	Name      string          `json:"name"`
	Kind      string          `gorm:"type:varchar(30)" json:"kind"`
	Threshold decimal.Decimal `gorm:"type:decimal(15,4)" json:"threshold"`
	Observed  decimal.Decimal `gorm:"type:decimal(15,4)" json:"observed"`
	Price     decimal.Decimal `gorm:"type:decimal(15,2)" json:"price"`
	Message   string          `json:"message"`
	CreatedAt time.Time       `gorm:"index:idx_history_code_date" json:"created_at"`
}

// MigrateAlertHistoryModels runs database migrations for alert history.
func MigrateAlertHistoryModels(db *gorm.DB) error {
	return db.AutoMigrate(&AlertHistory{})
}
