package httpx

import "github.com/go-playground/validator/v10"

type fieldError struct {
	FailedField string `json:"field"`
	Tag         string `json:"tag"`
	Value       string `json:"value,omitempty"`
}

var validate = validator.New()

func validateStruct(data any) []fieldError {
	var out []fieldError
	if err := validate.Struct(data); err != nil {
		for _, fe := range err.(validator.ValidationErrors) {
			out = append(out, fieldError{
				FailedField: fe.StructNamespace(),
				Tag:         fe.Tag(),
				Value:       fe.Param(),
			})
		}
	}
	return out
}
