// Package uploader is the boundary where assets leave the machine. The
// engine treats it as opaque: an attempt either yields an upload record,
// times out, or fails.
package uploader
