package shared

import "fmt"

// Warning codes attached to successful results.
const (
	WarnAuditFailed        = "audit_failed"
	WarnNotificationFailed = "notification_failed"
	WarnStatusNotResolved  = "status_not_resolved"
)

// Warning is a non-fatal problem raised after the primary mutation committed.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DependencyWarning downgrades a collaborator failure to a warning.
func DependencyWarning(code string, err error) Warning {
	return Warning{Code: code, Message: fmt.Errorf("%w: %v", ErrDependencyFailure, err).Error()}
}

// Warnings accumulates post-commit warnings for a single operation.
type Warnings []Warning

// Add appends a dependency warning when err is non-nil.
func (w *Warnings) Add(code string, err error) {
	if err == nil {
		return
	}
	*w = append(*w, DependencyWarning(code, err))
}

// Has reports whether a warning with the given code was recorded.
func (w Warnings) Has(code string) bool {
	for _, warn := range w {
		if warn.Code == code {
			return true
		}
	}
	return false
}
