package models

import "time"

// UploadedFile stores metadata and parsed content for one uploaded CSV export.
type UploadedFile struct {
	ID        string `gorm:"primaryKey;size:32"`
	SessionID string `gorm:"size:32;not null;index"`

	Filename  string `gorm:"size:255;not null"`
	SizeBytes int    `gorm:"not null"`
	CSVType   string `gorm:"size:100;index"`

	// ParsedContent is a JSON object: {"headers": [...], "rows": [...]}.
	ParsedContent string `gorm:"type:json"`

	Status   FileStatus `gorm:"size:50;not null;default:pending;index"`
	RowCount int        `gorm:"default:0"`

	UploadedAt  time.Time
	ProcessedAt *time.Time
}

// MarkValidated records the file's validation verdict and processing time.
func (f *UploadedFile) MarkValidated(valid bool, now time.Time) {
	if valid {
		f.Status = FileValid
	} else {
		f.Status = FileInvalid
	}
	f.ProcessedAt = &now
}

// IsClassified reports whether the file has been assigned a CSV type.
func (f *UploadedFile) IsClassified() bool {
	return f.CSVType != ""
}
