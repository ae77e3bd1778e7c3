// Package types provides unified type definitions for the memcore memory
// subsystem: buckets, chunks, links, reflections, and structured errors.
package types
