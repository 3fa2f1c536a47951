package socket

import "encoding/json"

// Response status values.
const (
	StatusOK  = "OK"
	StatusErr = "ERR"
)

// Error codes returned in the err_code field of an ERR response.
const (
	// CodeNoAuth: the request required a token and none was supplied.
	CodeNoAuth = "NO_AUTH"

	// CodeBadAuth: token invalid or expired, or wrong credentials at login.
	CodeBadAuth = "BAD_AUTH"

	// CodeInvalidFormat: unparsable payload or missing required fields.
	CodeInvalidFormat = "INVALID_FORMAT"

	// CodeBadEncrypt: transport-level decryption failed.
	CodeBadEncrypt = "BAD_ENCRYPT"

	// CodeServerErr: unexpected failure inside a handler or a dependency.
	CodeServerErr = "SERVER_ERR"
)

// Message type constants used by the built-in endpoints.
const (
	TypeServerKey           = "serverKey"
	TypeLogin               = "login"
	TypeLogout              = "logout"
	TypeRefreshToken        = "refreshToken"
	TypeJoinComponentsRoom  = "joinComponentsRoom"
	TypeLeaveComponentsRoom = "leaveComponentsRoom"
	TypeComponents          = "components"
	TypeToggleComponent     = "toggleComponent"
	TypeUpdateComponent     = "updateComponent"
	TypeAddComponent        = "addComponent"
	TypeRemoveComponent     = "removeComponent"

	// TypeComponentsChange is broadcast to the components room whenever
	// shared component state changes. It carries no body; clients re-fetch.
	TypeComponentsChange = "componentsChange"

	// responseSuffix is appended to a request type to form its response type.
	responseSuffix = "Res"

	// typeUnknown is used for responses to messages whose envelope could not
	// be parsed at all, where no request type is available to mirror.
	typeUnknown = "error"
)

// ComponentsRoom is the broadcast group for component change notifications.
const ComponentsRoom = "componentsRoom"

// Envelope is the outer wire frame of every message in both directions.
// Body is a JSON object in plain mode, or a JSON string holding base64
// ciphertext when payload encryption applies.
type Envelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// Error is a handler failure carrying one of the taxonomy codes. Handlers
// return it to select the err_code of the ERR response; any other error
// maps to SERVER_ERR.
type Error struct {
	Code string
}

func (e *Error) Error() string {
	return "socket: " + e.Code
}

// NewError returns a handler error with the given code.
func NewError(code string) *Error {
	return &Error{Code: code}
}

func responseType(requestType string) string {
	if requestType == "" {
		return typeUnknown + responseSuffix
	}
	return requestType + responseSuffix
}

func okBody(fields map[string]any) map[string]any {
	body := map[string]any{"status": StatusOK}
	for k, v := range fields {
		body[k] = v
	}
	return body
}

func errBody(code string) map[string]any {
	return map[string]any{"status": StatusErr, "err_code": code}
}
