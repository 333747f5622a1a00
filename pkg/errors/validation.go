package errors

import (
	"fmt"
)

// ParameterErrorData contains structured data for parameter-related errors
type ParameterErrorData struct {
	Parameter string      `json:"parameter"`
	Value     interface{} `json:"value,omitempty"`
	Required  bool        `json:"required,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// ValidationError creates a generic validation error
func ValidationError(message string) ClientError {
	return New(CodeValidationError, message)
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(param string, value interface{}, reason string) ClientError {
	return New(CodeInvalidParameter, fmt.Sprintf("Invalid parameter '%s': %s", param, reason)).WithData(&ParameterErrorData{
		Parameter: param,
		Value:     value,
		Reason:    reason,
	})
}

// MissingParameter creates an error for missing required parameters
func MissingParameter(param string) ClientError {
	return New(CodeMissingParameter, fmt.Sprintf("Missing required parameter '%s'", param)).WithData(&ParameterErrorData{
		Parameter: param,
		Required:  true,
	})
}

// InvalidFormat creates an error for values that fail to parse
func InvalidFormat(param string, value interface{}, expectedFormat string) ClientError {
	return New(CodeInvalidFormat, fmt.Sprintf("Parameter '%s' has invalid format, expected %s", param, expectedFormat)).WithData(&ParameterErrorData{
		Parameter: param,
		Value:     value,
		Reason:    "expected " + expectedFormat,
	})
}

// RequestReused creates an error for a request rendered more than once
func RequestReused(method, path string) ClientError {
	return New(CodeRequestReused, fmt.Sprintf("Request %s %s was already rendered", method, path))
}

// PathOutsideBase creates an error for an upload source outside its base directory
func PathOutsideBase(path, base string) ClientError {
	return New(CodePathOutsideBase, fmt.Sprintf("File %s is outside of the base directory %s", path, base)).WithData(&ParameterErrorData{
		Parameter: "files",
		Value:     path,
		Reason:    "outside " + base,
	})
}
