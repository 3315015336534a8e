package handler

import (
    "net/http"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"
)

// Validator adapts go-playground/validator to Echo's Validator
// interface so handlers can call c.Validate on bound request bodies.
type Validator struct {
    validate *validator.Validate
}

// NewValidator returns a request validator with the default tag set.
func NewValidator() *Validator {
    return &Validator{validate: validator.New()}
}

// Validate checks struct tags and converts failures into a 400 with
// the same {"error": "<kind>"} body shape every other error path
// uses, plus the offending field list.
func (v *Validator) Validate(i interface{}) error {
    if err := v.validate.Struct(i); err != nil {
        return echo.NewHTTPError(http.StatusBadRequest, echo.Map{
            "error":  "validation_failed",
            "detail": err.Error(),
        })
    }
    return nil
}
