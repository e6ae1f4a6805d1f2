package server

import (
	"errors"
	"net/http"

	"github.com/calvinalkan/recdb/internal/contractor"
	"github.com/calvinalkan/recdb/pkg/recdb"
)

// Error codes carried in [ErrorResponse.Code]. Each maps back to one
// sentinel error so a client can restore errors.Is semantics.
const (
	CodeNotFound      = "not_found"
	CodeLockMismatch  = "lock_mismatch"
	CodeAlreadyBooked = "already_booked"
	CodeInvalidOwner  = "invalid_owner"
	CodeInvalidInput  = "invalid_input"
	CodeBusy          = "busy"
	CodeClosed        = "closed"
	CodeRateLimited   = "rate_limited"
	CodeIO            = "io"
	CodeInternal      = "internal"
)

// ErrRateLimited is returned by clients when the server answers 429.
var ErrRateLimited = errors.New("server: rate limit exceeded")

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateResponse is the body of POST /contractors.
type CreateResponse struct {
	ID int64 `json:"id"`
}

// BookRequest is the body of POST /contractors/{id}/book.
type BookRequest struct {
	Owner string `json:"owner"`
}

// Field is one entry of [SchemaResponse].
type Field struct {
	Name   string `json:"name"`
	Length int    `json:"length"`
}

// SchemaResponse is the body of GET /schema.
type SchemaResponse struct {
	Magic        uint32  `json:"magic"`
	RowOffset    int64   `json:"row_offset"`
	RecordLength int64   `json:"record_length"`
	Fields       []Field `json:"fields"`
}

// NewSchemaResponse converts s to its wire form.
func NewSchemaResponse(s recdb.Schema) SchemaResponse {
	fields := make([]Field, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = Field{Name: f.Name, Length: f.Length}
	}

	return SchemaResponse{
		Magic:        s.Magic,
		RowOffset:    s.RowOffset,
		RecordLength: s.RecordLength(),
		Fields:       fields,
	}
}

// Schema converts r back to a [recdb.Schema].
func (r SchemaResponse) Schema() recdb.Schema {
	fields := make([]recdb.Field, len(r.Fields))
	for i, f := range r.Fields {
		fields[i] = recdb.Field{Name: f.Name, Length: f.Length}
	}

	return recdb.Schema{Magic: r.Magic, RowOffset: r.RowOffset, Fields: fields}
}

// errorStatus maps err to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, recdb.ErrRecordNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, recdb.ErrLockMismatch):
		return http.StatusConflict, CodeLockMismatch
	case errors.Is(err, contractor.ErrAlreadyBooked):
		return http.StatusConflict, CodeAlreadyBooked
	case errors.Is(err, contractor.ErrInvalidOwner):
		return http.StatusBadRequest, CodeInvalidOwner
	case errors.Is(err, recdb.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, recdb.ErrBusy):
		return http.StatusServiceUnavailable, CodeBusy
	case errors.Is(err, recdb.ErrClosed):
		return http.StatusServiceUnavailable, CodeClosed
	case errors.Is(err, recdb.ErrIO):
		return http.StatusInternalServerError, CodeIO
	}

	return http.StatusInternalServerError, CodeInternal
}

var codeSentinels = map[string]error{
	CodeNotFound:      recdb.ErrRecordNotFound,
	CodeLockMismatch:  recdb.ErrLockMismatch,
	CodeAlreadyBooked: contractor.ErrAlreadyBooked,
	CodeInvalidOwner:  contractor.ErrInvalidOwner,
	CodeInvalidInput:  recdb.ErrInvalidInput,
	CodeBusy:          recdb.ErrBusy,
	CodeClosed:        recdb.ErrClosed,
	CodeRateLimited:   ErrRateLimited,
	CodeIO:            recdb.ErrIO,
}

// SentinelForCode returns the sentinel error behind code, or nil for
// unknown codes.
func SentinelForCode(code string) error {
	return codeSentinels[code]
}
