package session

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/jrsteele09/taskboard/apierror"
	"github.com/jrsteele09/taskboard/users"
)

// MaxProfilePicBytes bounds the optional avatar upload.
const MaxProfilePicBytes = 5 << 20

// Upload is an in-memory file attached to a multipart request.
type Upload struct {
	Filename string
	Data     []byte
}

type SignupForm struct {
	Email      string     `json:"email" validate:"required,email"`
	Username   string     `json:"username" validate:"required,min=3"`
	Password   string     `json:"password" validate:"required,min=8"`
	Password2  string     `json:"password2" validate:"required,eqfield=Password"`
	Role       users.Role `json:"role" validate:"required,role"`
	ProfilePic *Upload    `json:"profile_pic,omitempty" validate:"-"`
}

type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		r, ok := fl.Field().Interface().(users.Role)
		return ok && r.Valid()
	})
	return v
}

// Validator exposes the shared form validator so other packages register
// the same field naming.
func Validator() *validator.Validate {
	return validate
}

// ValidateStruct runs the struct tags of s and returns a field-keyed
// KindValidation error, or nil.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = msgForTag(fe)
		}
	}
	return apierror.Validation(fields)
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "eqfield":
		return "Passwords do not match."
	case "role":
		return fmt.Sprintf("%q is not a valid choice.", fe.Value())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s.", fe.Param())
	default:
		return fmt.Sprintf("Failed on '%s' validation.", fe.Tag())
	}
}

// Validate checks f locally. It never touches the network.
func (f SignupForm) Validate() error {
	err := ValidateStruct(f)
	if f.ProfilePic == nil || len(f.ProfilePic.Data) <= MaxProfilePicBytes {
		return err
	}
	var verr *apierror.Error
	if err == nil {
		verr = apierror.Validation(nil)
	} else if !errors.As(err, &verr) {
		return err
	}
	verr.Fields["profile_pic"] = []string{fmt.Sprintf("File exceeds %d MB.", MaxProfilePicBytes>>20)}
	return verr
}

func (f LoginForm) Validate() error {
	return ValidateStruct(f)
}
