// Package module discovers, loads, unloads and reloads feature modules at
// runtime.
//
// A module is a Go type compiled into the binary and registered in a
// Catalog under an entry-point name. A CUE manifest on disk selects the
// entry point and carries the module's settings. Discovery walks the
// module root for manifests; the Manager drives each discovered module
// through its lifecycle:
//
//	unloaded -> loading -> loaded | failed
//	loaded   -> unloading -> unloaded
//	failed   -> loading
//
// Operations on one module are serialized. Different modules proceed
// independently. Loading, unloading and reloading never touch the
// controller registry or its store connection.
package module
