package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	domainauth "github.com/ragbox/ragbox/internal/domain/auth"
	apperrors "github.com/ragbox/ragbox/internal/errors"
)

// Classify returns a short label for err suitable for tagging metrics and logs.
// Token validation failures map to their reason, application errors to their
// code, and anything else to the innermost concrete type name in snake case.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if reason := domainauth.ValidationReason(err); reason != "unknown" {
		return reason
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	return typeName(err)
}

func typeName(err error) string {
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(t.String())
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
