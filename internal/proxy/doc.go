// Package proxy is the caller side of an object binding. A Namespace
// addresses objects by name or id; a Proxy frames typed commands, ships them
// over a Transport and decodes typed responses or *object.DispatchError.
package proxy
