// Package schemas holds the JSON Schema documents for jobs and reports.
package schemas

import _ "embed"

// Job is the JSON Schema for job documents.
//
//go:embed job.schema.json
var Job string

// Report is the JSON Schema for report documents.
//
//go:embed report.schema.json
var Report string
