package api

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// fieldErrors renders a validator.ValidationErrors into the field-level
// detail map the 422 envelope's `details` carries.
func fieldErrors(err error) any {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
