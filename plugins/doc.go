// Package plugins provides the tools the weather assistant exposes to the
// model: current weather lookup, place name resolution and the user's home
// location.
//
// Data comes from deterministic in-memory providers so answers are
// reproducible; both providers are interfaces and can be swapped for a real
// service.
package plugins
