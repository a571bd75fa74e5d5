package autoreply

import (
	"strings"

	"github.com/brandon/mcp-mailbridge/internal/config"
)

const (
	defaultStandardMessage = "Thank you for your message. We have received it and will get back to you as soon as possible."
	defaultVacationMessage = "Thank you for your message. I am currently out of the office and will be back {returnDate}. For urgent matters please contact {backupEmail}."

	fallbackReturnDate  = "soon"
	fallbackBackupEmail = "our team"

	returnDateLayout = "January 2, 2006"
)

// RenderVacation substitutes {returnDate} and {backupEmail}. The return date
// falls back to the vacation end date, then to "soon".
func RenderVacation(text string, v config.VacationConfig) string {
	returnDate := fallbackReturnDate
	switch {
	case !v.ReturnDate.IsZero():
		returnDate = v.ReturnDate.UTC().Format(returnDateLayout)
	case !v.EndDate.IsZero():
		returnDate = v.EndDate.UTC().Format(returnDateLayout)
	}
	backup := strings.TrimSpace(v.BackupEmail)
	if backup == "" {
		backup = fallbackBackupEmail
	}
	return strings.NewReplacer("{returnDate}", returnDate, "{backupEmail}", backup).Replace(text)
}

// renderSubject uses the configured subject, else replies to the original
func renderSubject(configured, original string) string {
	if s := strings.TrimSpace(configured); s != "" {
		return s
	}
	original = strings.TrimSpace(original)
	if original == "" {
		return "Automatic reply"
	}
	if strings.HasPrefix(strings.ToLower(original), "re:") {
		return original
	}
	return "Re: " + original
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
