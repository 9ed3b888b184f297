package model

import "time"

type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
)

// DocumentTemplate is a logical document identity keyed by (firm, title, category).
// IdentityKey is a digest of that triple and carries the unique index.
type DocumentTemplate struct {
	ID          uint   `gorm:"primaryKey"`
	FirmID      uint   `gorm:"not null;index"`
	Firm        *Firm  `gorm:"foreignKey:FirmID;constraint:OnDelete:CASCADE"`
	Title       string `gorm:"size:255;not null;index"`
	Category    string `gorm:"size:100;not null;index"`
	IdentityKey string `gorm:"size:64;not null;uniqueIndex"`
	Description string `gorm:"type:text"`

	Versions []DocumentVersion `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE"`

	CreatedByID *uint
	CreatedBy   *User `gorm:"foreignKey:CreatedByID;constraint:OnDelete:SET NULL"`
	UpdatedByID *uint
	UpdatedBy   *User     `gorm:"foreignKey:UpdatedByID;constraint:OnDelete:SET NULL"`
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

// DocumentVersion is one numbered snapshot of a template. Only IsPublished
// changes after creation.
type DocumentVersion struct {
	ID             uint              `gorm:"primaryKey"`
	TemplateID     uint              `gorm:"not null;uniqueIndex:idx_template_version,priority:1"`
	Template       *DocumentTemplate `gorm:"foreignKey:TemplateID"`
	VersionNumber  uint              `gorm:"not null;uniqueIndex:idx_template_version,priority:2"`
	FileKey        string            `gorm:"size:512;not null"`
	FileName       string            `gorm:"size:255;not null"`
	FileType       FileType          `gorm:"size:10;not null"`
	FileSize       int64             `gorm:"not null"`
	StorageBackend string            `gorm:"size:16;not null"`
	PageCount      int               `gorm:"not null"`
	IsPublished    bool              `gorm:"not null;index"`

	CreatedByID *uint
	CreatedBy   *User `gorm:"foreignKey:CreatedByID;constraint:OnDelete:SET NULL"`
	UpdatedByID *uint
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
