// Package offline derives which devices and entities are offline from a
// Home Assistant snapshot.
//
// A device is offline when it has no entity reporting anything other than
// "unavailable". Unavailable entities that are not already covered by an
// offline device are listed separately, so no entity appears twice.
//
// Usage:
//
//	b := offline.NewBuilder(offline.Options{
//	    ExcludeDevices:  []string{"Printer*"},
//	    ExcludeEntities: []string{"sensor.*_rssi"},
//	})
//	res := b.BuildSnapshot(snap)
package offline
