// Package storage stages large audio payloads in an S3-compatible object
// store so job submissions can reference them by URL instead of embedding
// bytes. Removal treats already-deleted objects as success.
package storage
