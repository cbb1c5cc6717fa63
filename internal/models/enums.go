package models

// Stage is a session's position in the fixed upload-to-export workflow.
type Stage string

const (
	StageSiteInfoCollection Stage = "site_info_collection"
	StageUpload             Stage = "upload"
	StageProcessing         Stage = "processing"
	StageReview             Stage = "review"
	StageJiraExport         Stage = "jira_export"
	StageCompleted          Stage = "completed"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageSiteInfoCollection, StageUpload, StageProcessing, StageReview, StageJiraExport, StageCompleted:
		return true
	}
	return false
}

// DisplayName returns the human-readable stage name.
func (s Stage) DisplayName() string {
	switch s {
	case StageSiteInfoCollection:
		return "Site Information"
	case StageUpload:
		return "File Upload"
	case StageProcessing:
		return "Processing"
	case StageReview:
		return "Review"
	case StageJiraExport:
		return "Jira Export"
	case StageCompleted:
		return "Completed"
	}
	return string(s)
}

// SessionStatus is the overall session status.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionExporting SessionStatus = "exporting"
	SessionFailed    SessionStatus = "failed"
	SessionCompleted SessionStatus = "completed"
)

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionExporting, SessionFailed, SessionCompleted:
		return true
	}
	return false
}

// TaskKind identifies the background job type tracked in SessionTask.
type TaskKind string

const (
	TaskProcessing    TaskKind = "processing"
	TaskExport        TaskKind = "export"
	TaskAdfValidation TaskKind = "adf_validation"
)

// Valid reports whether k is a known task kind.
func (k TaskKind) Valid() bool {
	switch k {
	case TaskProcessing, TaskExport, TaskAdfValidation:
		return true
	}
	return false
}

// TaskStatus is the background task lifecycle state.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskRunning, TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// ValidationStatus is the export-readiness validation lifecycle state.
type ValidationStatus string

const (
	ValidationPending    ValidationStatus = "pending"
	ValidationProcessing ValidationStatus = "processing"
	ValidationCompleted  ValidationStatus = "completed"
	ValidationFailed     ValidationStatus = "failed"
)

// Valid reports whether s is a known validation status.
func (s ValidationStatus) Valid() bool {
	switch s {
	case ValidationPending, ValidationProcessing, ValidationCompleted, ValidationFailed:
		return true
	}
	return false
}

// FileStatus is the per-file CSV validation result.
type FileStatus string

const (
	FilePending FileStatus = "pending"
	FileValid   FileStatus = "valid"
	FileInvalid FileStatus = "invalid"
)

// UploadStatus is an attachment's upload state against the tracker.
type UploadStatus string

const (
	UploadPending  UploadStatus = "pending"
	UploadUploaded UploadStatus = "uploaded"
	UploadFailed   UploadStatus = "failed"
)

// ErrorCategory classifies an error by who can fix it.
type ErrorCategory string

const (
	ErrUserFixable   ErrorCategory = "user_fixable"
	ErrAdminRequired ErrorCategory = "admin_required"
	ErrTemporary     ErrorCategory = "temporary"
)

// ErrorSeverity drives UI treatment of a recorded error.
type ErrorSeverity string

const (
	SeverityBlocking ErrorSeverity = "blocking"
	SeverityWarning  ErrorSeverity = "warning"
	SeverityInfo     ErrorSeverity = "info"
)
