// Package todo manages Home Assistant to-do list entities: listing items in
// display order with relative due labels, and adding, updating, completing
// and removing items through the todo services.
package todo
