// Package storage persists downloaded flash images.
//
// FileSink implements session.Sink by writing the image atomically. A YAML
// Manifest with the firmware version, data range and digests can be written
// next to it and later used to verify the file.
package storage
