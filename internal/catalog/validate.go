package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

var (
	validate          = newValidator()
	discountCodeRegex = regexp.MustCompile(`^[A-Z0-9_-]+$`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("discount_code", func(fl validator.FieldLevel) bool {
		return discountCodeRegex.MatchString(fl.Field().String())
	})
	return v
}

// ValidationError lists the rejected fields and why.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, reason := range e.Fields {
		parts = append(parts, field+": "+reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func fromValidator(err error, names map[string]string) *ValidationError {
	out := &ValidationError{Fields: map[string]string{}}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		out.Fields["_"] = err.Error()
		return out
	}
	for _, fe := range fieldErrs {
		name := names[fe.Field()]
		if name == "" {
			name = strings.ToLower(fe.Field())
		}
		out.Fields[name] = describeTag(fe)
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "datetime":
		return "must be a date (YYYY-MM-DD)"
	case "discount_code":
		return "may only contain letters, digits, dashes and underscores"
	default:
		return "is invalid"
	}
}

// Slugify turns a display name into the stored name: trimmed, lowercased,
// whitespace runs collapsed to "_".
func Slugify(value string) string {
	return strings.Join(strings.Fields(strings.ToLower(value)), "_")
}

// TaxonomyInput is the payload for creating or renaming a taxonomy row.
type TaxonomyInput struct {
	Name        string `json:"name" validate:"max=120"`
	DisplayName string `json:"display_name" validate:"required,max=120"`
}

// Normalize validates input and returns the slug and trimmed display name.
// The slug comes from Name when given, otherwise from DisplayName.
func (in TaxonomyInput) Normalize() (slug, displayName string, err error) {
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := validate.Struct(in); err != nil {
		return "", "", fromValidator(err, map[string]string{"Name": "name", "DisplayName": "display_name"})
	}
	source := in.Name
	if strings.TrimSpace(source) == "" {
		source = in.DisplayName
	}
	slug = Slugify(source)
	if slug == "" {
		return "", "", &ValidationError{Fields: map[string]string{"name": "is required"}}
	}
	return slug, in.DisplayName, nil
}

// DiscountInput is the admin payload for a discount.
type DiscountInput struct {
	Name            string  `json:"name" validate:"required,max=120"`
	Description     string  `json:"description" validate:"max=2000"`
	Code            string  `json:"code" validate:"required,max=40,discount_code"`
	DiscountPercent float64 `json:"discount_percent" validate:"gt=0,lte=100"`
	AppliesTo       string  `json:"applies_to" validate:"required,oneof=all single_track gold_access platinum_access ultimate_access sync"`
	StartDate       string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate         string  `json:"end_date" validate:"required,datetime=2006-01-02"`
	IsActive        *bool   `json:"is_active"`
}

// Discount is a validated discount ready to store.
type Discount struct {
	Name            string
	Description     string
	Code            string
	DiscountPercent float64
	AppliesTo       string
	StartDate       time.Time
	EndDate         time.Time
	IsActive        bool
}

var discountFieldNames = map[string]string{
	"Name":            "name",
	"Description":     "description",
	"Code":            "code",
	"DiscountPercent": "discount_percent",
	"AppliesTo":       "applies_to",
	"StartDate":       "start_date",
	"EndDate":         "end_date",
}

// Normalize trims and uppercases the code, then validates. New discounts
// are active unless IsActive says otherwise.
func (in DiscountInput) Normalize() (Discount, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.AppliesTo = strings.TrimSpace(in.AppliesTo)
	if in.AppliesTo == "" {
		in.AppliesTo = "all"
	}

	if err := validate.Struct(in); err != nil {
		return Discount{}, fromValidator(err, discountFieldNames)
	}

	start, _ := time.Parse(dateLayout, in.StartDate)
	end, _ := time.Parse(dateLayout, in.EndDate)
	if end.Before(start) {
		return Discount{}, &ValidationError{Fields: map[string]string{"end_date": "must not be before start_date"}}
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return Discount{
		Name:            in.Name,
		Description:     in.Description,
		Code:            in.Code,
		DiscountPercent: in.DiscountPercent,
		AppliesTo:       in.AppliesTo,
		StartDate:       start,
		EndDate:         end,
		IsActive:        active,
	}, nil
}
