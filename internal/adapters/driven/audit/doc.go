// Package audit provides AuditSink adapters that write events outside the
// metadata store: JSON lines on local disk, objects in S3, a fan-out over
// several sinks and a no-op sink.
//
// Local files are laid out as {dir}/{YYYY-MM-DD}/{event_type}.jsonl and S3
// objects as {prefix}/{YYYY-MM-DD}/{event_type}/{unix_nanos}-{id}.jsonl, both
// dated in UTC from the event timestamp.
package audit
