// Package host runs object kinds behind a transport.
//
// Ownership boundary:
// - binding registry (name -> dispatcher adapter)
// - per (binding, id) serialization; one in-flight dispatch per object
// - storage namespace selection and reply framing
// - HTTP surface (gin) for frames, alarms, health and metrics
package host
