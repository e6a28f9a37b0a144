// Package services implements the MedTrace screens on top of the backend:
// medicine verification, safety alerts, user reports and usage stats.
package services

import "github.com/santinotanus/medtrace/internal/client/session"

// Viewer exposes the session state the services act for.
type Viewer interface {
	Snapshot() session.State
}
