// Package audit records login activity: who signed in, through which
// provider, and why failed attempts failed. Events carry only sanitized
// reasons; raw identity provider payloads never reach the audit trail.
//
// Two sinks are provided. WriterLogger emits one JSON line per event via
// logrus, suitable for shipping to a log pipeline. Store persists events
// in SQL for the dashboard and enforces a retention window through a
// cron-scheduled purge. MultiLogger fans out to both.
package audit
