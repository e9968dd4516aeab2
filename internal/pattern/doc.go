// Package pattern implements the wildcard matching used by exclusion lists.
//
// Users write exclusions such as "sensor.*" or "*battery*" in the offline
// card configuration. Only "*" is special; everything else, including ".",
// is matched literally. Matching is case-insensitive and anchored at both
// ends of the candidate.
//
// Usage:
//
//	if pattern.Matches("sensor.kitchen_temp", "sensor.*") {
//	    // excluded
//	}
//
//	excluded := pattern.NewSet(cfg.Cards.Offline.ExcludeEntities)
//	if excluded.Match(entityID) {
//	    continue
//	}
package pattern
