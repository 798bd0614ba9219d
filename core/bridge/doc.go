// Package bridge turns station-side charging events into backend requests.
// Each method shapes one payload, injects the station identity and delegates
// delivery to a delivery.Poster, returning its result unchanged.
package bridge
