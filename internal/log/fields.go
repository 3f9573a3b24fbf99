package log

import "github.com/dustin/go-humanize"

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldBytes      = "bytes"
	FieldSize       = "size_human"
	FieldError      = "error"
	FieldOperation  = "operation"

	FieldAnalysisID  = "analysis_id"
	FieldFeedbackID  = "feedback_id"
	FieldSource      = "source"
	FieldFormat      = "format"
	FieldRows        = "rows"
	FieldDropped     = "dropped"
	FieldCoverage    = "coverage"
	FieldWarnings    = "warnings"
	FieldPeriod      = "period"
	FieldProvider    = "provider"
	FieldSpreadsheet = "spreadsheet_id"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentAnalysis = "analysis"
	ComponentFeedback = "feedback"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentCache    = "cache"
	ComponentCLI      = "cli"
)

// Operations defines standard operation names
const (
	OpParse    = "parse"
	OpAnalyze  = "analyze"
	OpStore    = "store"
	OpRead     = "read"
	OpPublish  = "publish"
	OpConsume  = "consume"
	OpGenerate = "generate"
	OpSweep    = "sweep"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithUpload records the size of an uploaded ledger both raw and humanized.
func (f LogFields) WithUpload(source string, bytes int) LogFields {
	f[FieldSource] = source
	f[FieldBytes] = bytes
	f[FieldSize] = humanize.Bytes(uint64(max(bytes, 0)))
	return f
}

// WithAnalysis adds the outcome of a ledger analysis.
func (f LogFields) WithAnalysis(id string, rows, dropped int, coverage string, warnings int) LogFields {
	f[FieldAnalysisID] = id
	f[FieldRows] = rows
	f[FieldDropped] = dropped
	f[FieldCoverage] = coverage
	f[FieldWarnings] = warnings
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(method, path string, statusCode int, durationMs int64) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
