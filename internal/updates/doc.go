// Package updates finds pending software updates among Home Assistant
// update entities and performs install and skip actions on them.
//
// Updates for Home Assistant itself (core, supervisor, operating system)
// are reported separately from integrations and add-ons.
package updates
