// Package validate applies struct-tag validation to the domain entities
// that cross a write boundary (job registration through the control
// API) before they reach the scheduler, rejecting
// malformed payloads with field-level detail instead of failing deep
// inside a query or schedule computation.
package validate

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var instance = validator.New()

// Struct validates v against its `validate:"..."` tags, returning a
// single error naming every failing field.
func Struct(v interface{}) error {
	if err := instance.Struct(v); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("validation failed: %s", strings.Join(fields, "; "))
	}
	return nil
}
