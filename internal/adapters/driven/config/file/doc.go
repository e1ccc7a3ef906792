// Package file loads and saves greds settings on the local filesystem.
//
// TOML is the default format. Paths ending in .yaml or .yml are read and
// written as YAML. Durations are stored as integer milliseconds.
package file
