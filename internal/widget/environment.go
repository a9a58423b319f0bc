package widget

import "feedbackhub/internal/models"

// Environment describes the host page when feedback is submitted
type Environment struct {
	URL       string
	UserAgent string
	Screen    string
	Viewport  string
	Locale    string
}

// Metadata combines the environment with a console snapshot
func (e Environment) Metadata(console []models.ConsoleEntry) models.ThreadMetadata {
	return models.ThreadMetadata{
		URL:         e.URL,
		UserAgent:   e.UserAgent,
		Screen:      e.Screen,
		Viewport:    e.Viewport,
		Locale:      e.Locale,
		ConsoleLogs: console,
	}
}
