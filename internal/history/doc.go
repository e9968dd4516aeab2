// Package history keeps a rolling SQLite record of polls: per-poll counts and
// which devices and entities were offline, so the API can show trends and
// how long something has been offline.
package history
