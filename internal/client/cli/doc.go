// Package cli provides the interactive MedTrace terminal client.
//
// The App ties the session manager, the app-lock guard and the domain
// services to a read–eval–print loop. Every screen-like command renders
// through the guard, so nothing but the lock screen is printed while the
// app is locked. A background watcher pings the backend and flips the
// displayed mode between online and offline.
//
// Key features:
//   - Register / Login (password or one-time code) / Guest mode / Logout
//   - Password recovery with an emailed code
//   - Profile, settings and notification preferences
//   - Medicine verification, safety alerts, reports and stats
//   - Passcode app lock, exercised with the background and resume commands
//
// Start the loop with App.Run(ctx), which blocks until the user exits.
package cli
