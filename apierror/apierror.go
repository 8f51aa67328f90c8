// Package apierror defines the failure taxonomy shared by the session state
// machine, the authenticated request client and the views that consume them.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a failure. Every failure surfaced to callers is an *Error
// carrying one of these kinds; only the message differs.
type Kind string

const (
	KindValidation    Kind = "validation"     // Local, pre-network, field-keyed
	KindAuthRejected  Kind = "auth_rejected"  // 4xx from an auth endpoint
	KindRefreshFailed Kind = "refresh_failed" // Refresh rejected or unreachable, always terminal
	KindNetwork       Kind = "network"        // No response received
	KindServer        Kind = "server"         // 5xx
	KindRequest       Kind = "request"        // Any other 4xx on a non-auth call
	KindStorage       Kind = "storage"        // Local token store failure
)

// Sentinels matched by (*Error).Is through the error's Kind.
var (
	ErrValidation    = errors.New("validation failed")
	ErrAuthRejected  = errors.New("authentication rejected")
	ErrRefreshFailed = errors.New("token refresh failed")
	ErrNetwork       = errors.New("network error")
	ErrServer        = errors.New("server error")
	ErrRequest       = errors.New("request rejected")
	ErrStorage       = errors.New("token store failure")
)

// Local conditions that never come from the backend.
var (
	ErrNoRefreshToken    = errors.New("no refresh token available")
	ErrOperationInFlight = errors.New("operation already in flight")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrUnknownRoute      = errors.New("unknown route")
	ErrSessionChanged    = errors.New("session changed during refresh")
)

var kindSentinels = map[Kind]error{
	KindValidation:    ErrValidation,
	KindAuthRejected:  ErrAuthRejected,
	KindRefreshFailed: ErrRefreshFailed,
	KindNetwork:       ErrNetwork,
	KindServer:        ErrServer,
	KindRequest:       ErrRequest,
	KindStorage:       ErrStorage,
}

// Error is the uniform failure payload. Fields maps a form field (or a
// backend serializer key) to its messages.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && len(e.Fields) > 0 {
		msg = strings.Join(e.FieldMessages(), "; ")
	}
	if msg == "" {
		msg = kindSentinels[e.Kind].Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Field returns the first message recorded for name, or "".
func (e *Error) Field(name string) string {
	if msgs := e.Fields[name]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// FieldMessages renders "field: msg1, msg2" lines sorted by field name.
func (e *Error) FieldMessages() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s: %s", name, strings.Join(e.Fields[name], ", ")))
	}
	return lines
}

// Display is the text a view shows: the generic message, then field lines.
func (e *Error) Display() string {
	parts := make([]string, 0, len(e.Fields)+1)
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	parts = append(parts, e.FieldMessages()...)
	if len(parts) == 0 {
		return kindSentinels[e.Kind].Error()
	}
	return strings.Join(parts, "\n")
}

// Validation builds a field-keyed local validation failure.
func Validation(fields map[string]string) *Error {
	e := &Error{Kind: KindValidation, Fields: make(map[string][]string, len(fields))}
	for k, v := range fields {
		e.Fields[k] = []string{v}
	}
	return e
}

func AuthRejected(status int, message string, fields map[string][]string) *Error {
	return &Error{Kind: KindAuthRejected, Status: status, Message: message, Fields: fields}
}

func RefreshFailed(cause error) *Error {
	return &Error{Kind: KindRefreshFailed, Message: "session expired, please log in again", Err: cause}
}

func Network(cause error) *Error {
	return &Error{Kind: KindNetwork, Message: "no response from server", Err: cause}
}

func Server(status int, message string) *Error {
	return &Error{Kind: KindServer, Status: status, Message: message}
}

func Storage(cause error) *Error {
	return &Error{Kind: KindStorage, Message: "could not persist session", Err: cause}
}

// From returns err as an *Error. Anything that is not already one is
// treated as a failure to get a response.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Network(err)
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FromResponse reads a non-2xx response body and maps it into an *Error.
// 5xx always maps to KindServer; other statuses use clientKind. The body is
// consumed and closed.
func FromResponse(resp *http.Response, clientKind Kind) *Error {
	defer func() { _ = resp.Body.Close() }()

	kind := clientKind
	if resp.StatusCode >= 500 {
		kind = KindServer
	}
	e := &Error{Kind: kind, Status: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		e.Message = http.StatusText(resp.StatusCode)
		e.Err = err
		return e
	}
	parseBody(e, body)
	if e.Message == "" && len(e.Fields) == 0 {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

// parseBody understands the backend's error bodies: {"detail": "..."},
// {"error": "..."}, {"field": ["msg", ...]}, a bare JSON string or plain text.
func parseBody(e *Error, body []byte) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return
	}

	var obj map[string]json.RawMessage
	if json.Unmarshal(body, &obj) == nil {
		for key, raw := range obj {
			msgs := decodeMessages(raw)
			if len(msgs) == 0 {
				continue
			}
			switch key {
			case "detail", "error", "message", "non_field_errors":
				if e.Message == "" {
					e.Message = strings.Join(msgs, ", ")
				}
			default:
				if e.Fields == nil {
					e.Fields = make(map[string][]string)
				}
				e.Fields[key] = msgs
			}
		}
		return
	}

	var s string
	if json.Unmarshal(body, &s) == nil {
		e.Message = s
		return
	}
	e.Message = trimmed
}

func decodeMessages(raw json.RawMessage) []string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return []string{s}
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return list
	}
	var nested map[string]json.RawMessage
	if json.Unmarshal(raw, &nested) == nil {
		var out []string
		for k, v := range nested {
			for _, m := range decodeMessages(v) {
				out = append(out, k+": "+m)
			}
		}
		sort.Strings(out)
		return out
	}
	return nil
}
