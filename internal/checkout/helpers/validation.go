// Package helpers holds the pure checkout checks: customer details, payment proof and pricing.
package helpers

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/maskball-tickets/pkg/errors"
)

// DefaultProofMaxBytes caps uploaded payment proofs.
const DefaultProofMaxBytes int64 = 5 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// CustomerDetails are the buyer fields collected before payment selection.
type CustomerDetails struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required"`
}

// Normalize trims every field and lower-cases the email.
func (c CustomerDetails) Normalize() CustomerDetails {
	return CustomerDetails{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.ToLower(strings.TrimSpace(c.Email)),
		Phone: strings.TrimSpace(c.Phone),
	}
}

// ValidateDetails reports every failing field at once.
func ValidateDetails(details CustomerDetails) error {
	normalized := details.Normalize()
	if err := validate.Struct(normalized); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer details")
		}
		fields := map[string]string{}
		for _, fe := range errs {
			fields[fe.Field()] = detailMessage(fe)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid customer details").WithDetails(fields)
	}
	return nil
}

func detailMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "name":
		return "Please enter your name"
	case "phone":
		return "Please enter your phone number"
	case "email":
		if fe.Tag() == "required" {
			return "Please enter your email"
		}
		return "Please enter a valid email address"
	}
	return "is invalid"
}

// Proof is an uploaded proof-of-payment image.
type Proof struct {
	FileName string
	Data     []byte
}

// ValidateProof checks size and sniffs the content; the declared type is never trusted.
// It returns the detected MIME type.
func ValidateProof(proof *Proof, maxBytes int64) (string, error) {
	if proof == nil || len(proof.Data) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment proof is required").
			WithDetails(map[string]string{"proof": "Please upload your payment screenshot"})
	}
	if maxBytes <= 0 {
		maxBytes = DefaultProofMaxBytes
	}
	if int64(len(proof.Data)) > maxBytes {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment proof too large").
			WithDetails(map[string]string{"proof": fmt.Sprintf("File must be at most %d MB", maxBytes>>20)})
	}
	detected := mimetype.Detect(proof.Data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment proof must be an image").
			WithDetails(map[string]string{"proof": "Please upload an image file", "detected": detected.String()})
	}
	return detected.String(), nil
}
