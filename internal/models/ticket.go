package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// AttachmentThreshold is the description length above which the body must be
// exported as a file attachment instead of inline issue text.
const AttachmentThreshold = 30000

// Ticket is one candidate issue generated from the uploaded content model.
type Ticket struct {
	ID        string `gorm:"primaryKey;size:32"`
	SessionID string `gorm:"size:32;not null;index"`

	Title       string `gorm:"size:500;not null"`
	Description string `gorm:"type:text;not null"`

	// CSVSources is a JSON array of {filename, rows} provenance entries.
	CSVSources string `gorm:"type:json"`

	EntityGroup string `gorm:"size:100;not null;index"`
	UserOrder   int    `gorm:"default:0"`

	ReadyForJira bool   `gorm:"default:false;index"`
	Sprint       string `gorm:"size:255"`
	Assignee     string `gorm:"size:255"`
	UserNotes    string `gorm:"type:text"`

	JiraTicketKey string `gorm:"size:50"`
	JiraTicketURL string `gorm:"size:500"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Attachment *Attachment        `gorm:"foreignKey:TicketID;constraint:OnDelete:CASCADE"`
	Deps       []TicketDependency `gorm:"foreignKey:TicketID;constraint:OnDelete:CASCADE"`
}

// IsExported reports whether the ticket has been created in the tracker.
func (t *Ticket) IsExported() bool {
	return t.JiraTicketKey != ""
}

// NeedsLargeContent reports whether the description exceeds the inline limit.
func (t *Ticket) NeedsLargeContent() bool {
	return len(t.Description) > AttachmentThreshold
}

// CSVSource is one provenance entry pointing at rows of an uploaded file.
type CSVSource struct {
	Filename string `json:"filename"`
	Rows     []int  `json:"rows"`
}

// Sources decodes the CSVSources column. A missing column decodes to nil.
func (t *Ticket) Sources() ([]CSVSource, error) {
	if t.CSVSources == "" {
		return nil, nil
	}
	var refs []CSVSource
	if err := json.Unmarshal([]byte(t.CSVSources), &refs); err != nil {
		return nil, fmt.Errorf("models: decode csv sources for ticket %s: %w", t.ID, err)
	}
	return refs, nil
}

// AddSource merges a {filename, rows} reference into CSVSources, deduplicating
// row numbers for an already-referenced file.
func (t *Ticket) AddSource(filename string, rows []int) error {
	refs, err := t.Sources()
	if err != nil {
		return err
	}
	merged := false
	for i := range refs {
		if refs[i].Filename != filename {
			continue
		}
		seen := make(map[int]bool, len(refs[i].Rows))
		for _, r := range refs[i].Rows {
			seen[r] = true
		}
		for _, r := range rows {
			seen[r] = true
		}
		all := make([]int, 0, len(seen))
		for r := range seen {
			all = append(all, r)
		}
		sort.Ints(all)
		refs[i].Rows = all
		merged = true
		break
	}
	if !merged {
		refs = append(refs, CSVSource{Filename: filename, Rows: rows})
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("models: encode csv sources for ticket %s: %w", t.ID, err)
	}
	t.CSVSources = string(data)
	return nil
}

// SourceSummary returns a human-readable provenance description.
func (t *Ticket) SourceSummary() string {
	refs, err := t.Sources()
	if err != nil || len(refs) == 0 {
		return "No sources"
	}
	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		switch len(ref.Rows) {
		case 0:
			parts = append(parts, ref.Filename)
		case 1:
			parts = append(parts, fmt.Sprintf("%s:row %d", ref.Filename, ref.Rows[0]))
		default:
			lo, hi := ref.Rows[0], ref.Rows[0]
			for _, r := range ref.Rows[1:] {
				if r < lo {
					lo = r
				}
				if r > hi {
					hi = r
				}
			}
			parts = append(parts, fmt.Sprintf("%s:rows %d-%d", ref.Filename, lo, hi))
		}
	}
	return strings.Join(parts, ", ")
}

// TicketDependency is a directed edge: TicketID depends on DependsOnID.
// The composite primary key forbids duplicate edges; self-loops are rejected
// before insertion by the dependency graph.
type TicketDependency struct {
	TicketID    string `gorm:"primaryKey;size:32"`
	DependsOnID string `gorm:"primaryKey;size:32"`

	CreatedAt time.Time

	Ticket    Ticket `gorm:"foreignKey:TicketID"`
	DependsOn Ticket `gorm:"foreignKey:DependsOnID"`
}

// Attachment holds an oversized ticket body for side-channel upload.
// The unique index on TicketID enforces the 1:1 relationship.
type Attachment struct {
	ID        string `gorm:"primaryKey;size:32"`
	SessionID string `gorm:"size:32;not null;index"`
	TicketID  string `gorm:"size:32;not null;uniqueIndex"`

	Filename  string `gorm:"size:255;not null"`
	Content   string `gorm:"type:text;not null"`
	SizeBytes int    `gorm:"not null"`

	JiraAttachmentID string       `gorm:"size:100"`
	Status           UploadStatus `gorm:"size:50;not null;default:pending;index"`

	CreatedAt time.Time
}

// MarkUploaded records a successful tracker upload.
func (a *Attachment) MarkUploaded(jiraAttachmentID string) {
	a.Status = UploadUploaded
	a.JiraAttachmentID = jiraAttachmentID
}

// MarkUploadFailed records a failed upload and clears partial references.
func (a *Attachment) MarkUploadFailed() {
	a.Status = UploadFailed
	a.JiraAttachmentID = ""
}
