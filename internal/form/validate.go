package form

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/iwvelando/trade-route/internal/apperrors"
	"github.com/iwvelando/trade-route/pkg/constants"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterAlias("route_range", fmt.Sprintf("min=%d,max=%d", constants.MinRange, constants.MaxRange))
	v.RegisterAlias("stop_count", fmt.Sprintf("min=%d,max=%d", constants.MinStops, constants.MaxStops))
	v.RegisterAlias("percent", fmt.Sprintf("min=%d,max=%d", constants.MinPercent, constants.MaxPercent))
	// Cargo is scaled to sub-units in the request and must not overflow int64.
	v.RegisterAlias("cargo", fmt.Sprintf("min=%d,max=%d", constants.MinCargo, constants.MaxCargo))
	return v
}

// ValidationError lists every failing field keyed by its path, e.g.
// "cargo" or "commodities[<id>].name".
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages(), "; ")
}

// Messages returns one "path: reason" line per field, sorted by path.
func (e *ValidationError) Messages() []string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return msgs
}

// Unwrap lets callers match with errors.Is(err, apperrors.ErrValidation).
func (e *ValidationError) Unwrap() error {
	return apperrors.ErrValidation
}

// Validate checks the native constraints of every field and that every
// commodity and location reference is a member of the vocabulary. It
// returns nil or a *ValidationError.
func Validate(s State, vocab Vocabulary) error {
	fields := make(map[string]string)

	collect(fields, "", s)
	for _, c := range s.Commodities {
		prefix := fmt.Sprintf("commodities[%s].", c.ID)
		collect(fields, prefix, c)
		checkMember(fields, prefix+"name", c.Name, vocab.Commodities, "commodity")
	}
	for _, l := range s.Locations {
		prefix := fmt.Sprintf("locations[%s].", l.ID)
		collect(fields, prefix, l)
		checkMember(fields, prefix+"name", l.Name, vocab.Locations, "location")
	}
	for _, r := range s.Restrictions {
		prefix := fmt.Sprintf("restrictions[%s].", r.ID)
		collect(fields, prefix, r)
		checkMember(fields, prefix+"commodity", r.Commodity, vocab.Commodities, "commodity")
		checkMember(fields, prefix+"location", r.Location, vocab.Locations, "location")
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func collect(fields map[string]string, prefix string, v interface{}) {
	err := validate.Struct(v)
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields[strings.TrimSuffix(prefix, ".")] = err.Error()
		return
	}
	for _, fe := range verrs {
		fields[prefix+fe.Field()] = describe(fe)
	}
}

func describe(fe validator.FieldError) string {
	switch fe.ActualTag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

// checkMember records an unknown-name error unless the field already failed
// a native constraint.
func checkMember(fields map[string]string, key, name string, vocab []string, kind string) {
	if _, failed := fields[key]; failed {
		return
	}
	for _, v := range vocab {
		if v == name {
			return
		}
	}
	fields[key] = fmt.Sprintf("unknown %s %q", kind, name)
}
