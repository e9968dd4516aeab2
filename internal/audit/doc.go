// Package audit records the service actions hamonitor performs on behalf of
// API callers: update installs and skips, and to-do list edits.
//
// Entries are written after the Home Assistant call returns, whether it
// succeeded or not, so a failed install is visible alongside the ones that
// went through.
package audit
