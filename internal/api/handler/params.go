package handler

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/skyaware/skyaware/internal/api/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("query"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// paramErrors collects per-field parse failures.
type paramErrors []models.FieldError

func (p *paramErrors) add(field, message, code string) {
	*p = append(*p, models.FieldError{Field: field, Message: message, Code: code})
}

func parseFloatParam(q url.Values, name string, errs *paramErrors) *float64 {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		errs.add(name, "must be a finite number", "invalid_number")
		return nil
	}
	return &v
}

func parseIntParam(q url.Values, name string, errs *paramErrors) int {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		errs.add(name, "must be an integer", "invalid_integer")
		return 0
	}
	return v
}

// parseRadiusParam returns 0 when radius_km is absent so the service default
// applies. A radius that is given must be positive.
func parseRadiusParam(q url.Values, errs *paramErrors) float64 {
	r := parseFloatParam(q, "radius_km", errs)
	if r == nil {
		return 0
	}
	if *r <= 0 {
		errs.add("radius_km", "must be greater than 0", "gt")
		return 0
	}
	return *r
}

func parseLatestParams(q url.Values) (models.LatestParams, []models.FieldError) {
	var errs paramErrors
	p := models.LatestParams{
		Lat:   parseFloatParam(q, "lat", &errs),
		Lon:   parseFloatParam(q, "lon", &errs),
		Limit: parseIntParam(q, "limit", &errs),
	}
	p.RadiusKM = parseRadiusParam(q, &errs)
	if len(errs) > 0 {
		return p, errs
	}
	return p, validationErrors(validate.Struct(p))
}

func parsePointParams(q url.Values) (models.PointParams, []models.FieldError) {
	var errs paramErrors
	p := models.PointParams{
		Lat: parseFloatParam(q, "lat", &errs),
		Lon: parseFloatParam(q, "lon", &errs),
	}
	p.RadiusKM = parseRadiusParam(q, &errs)
	if len(errs) > 0 {
		return p, errs
	}
	return p, validationErrors(validate.Struct(p))
}

// validationErrors converts validator output into field errors.
func validationErrors(err error) []models.FieldError {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Field: "query", Message: err.Error()}}
	}

	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
			Code:    fe.Tag(),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func firstMessage(errs []models.FieldError) string {
	if len(errs) == 0 {
		return "invalid query parameters"
	}
	return errs[0].Field + " " + errs[0].Message
}
