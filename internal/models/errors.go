package models

import "fmt"

type validationError struct {
	field string
}

func (e *validationError) Error() string {
	return fmt.Sprintf("%s is required", e.field)
}

func errEmptyField(field string) error {
	return &validationError{field: field}
}
