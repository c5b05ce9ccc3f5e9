package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DocumentStatus is the status record of one chunk. Its ID is the chunk id and equals
// the id of the row written to the vector table.
type DocumentStatus struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Filename   string         `gorm:"column:filename;not null;index" json:"filename"`
	PageNumber int            `gorm:"column:page_number;not null" json:"pageNumber"`
	Status     Status         `gorm:"column:status;not null;index" json:"status"`
	Attempts   int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Detail     datatypes.JSON `gorm:"column:detail" json:"detail,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"createdAt"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updatedAt"`
}

func (DocumentStatus) TableName() string { return "document_status" }
