package ledger

import (
	"time"

	"gorm.io/datatypes"
)

// AppliedLink is one problem link set written by an apply run.
type AppliedLink struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	RunID      string         `gorm:"column:run_id;size:36;not null;index" json:"run_id"`
	ProposalID string         `gorm:"column:proposal_id;size:36;index" json:"proposal_id"`
	ProblemID  string         `gorm:"column:problem_id;size:64;not null;index" json:"problem_id"`
	Before     datatypes.JSON `gorm:"column:before" json:"before"`
	After      datatypes.JSON `gorm:"column:after" json:"after"`
	AppliedAt  time.Time      `gorm:"column:applied_at;not null;index" json:"applied_at"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (AppliedLink) TableName() string { return "applied_link" }
