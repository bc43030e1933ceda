package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Notifier sends system notifications.
type Notifier struct {
	Enabled bool
}

// Send sends a system notification.
// On macOS, uses osascript to display notifications.
// On other platforms, this is a no-op.
func (n *Notifier) Send(title, message string) error {
	if n == nil || !n.Enabled {
		return nil
	}

	if runtime.GOOS != "darwin" {
		// Only macOS supported for now
		return nil
	}

	return sendMacOSNotification(title, message)
}

// sendMacOSNotification uses osascript to display a notification.
func sendMacOSNotification(title, message string) error {
	// Escape quotes in title and message
	title = strings.ReplaceAll(title, `"`, `\"`)
	message = strings.ReplaceAll(message, `"`, `\"`)

	script := fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)
	cmd := exec.Command("osascript", "-e", script)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	return nil
}

// FormatKPIAchieved formats a KPI target-met notification message.
func FormatKPIAchieved(initiativeID string, combined, target float64) (title, message string) {
	title = "🎉 Stratrack KPI Achieved"
	message = fmt.Sprintf("%s: %.2f against target %.2f", initiativeID, combined, target)
	return title, message
}

// FormatReviewNeeded formats a review-flag notification for contributions
// accepted with soft warnings.
func FormatReviewNeeded(initiativeID, documentID string, flagged int) (title, message string) {
	title = "⚠️ Stratrack Review Needed"
	message = fmt.Sprintf("%s: %d flagged contribution(s) from document %s", initiativeID, flagged, documentID)
	return title, message
}

// FormatStatusChange formats a rollup status transition message. A
// transition into MET reuses the achievement message.
func FormatStatusChange(initiativeID, oldStatus, newStatus string, combined, target float64) (title, message string) {
	if newStatus == "MET" {
		return FormatKPIAchieved(initiativeID, combined, target)
	}
	title = "📊 Stratrack KPI Status Update"
	message = fmt.Sprintf("%s: %s → %s (%.2f against target %.2f)", initiativeID, oldStatus, newStatus, combined, target)
	return title, message
}
