package services

import "github.com/go-playground/validator/v10"

// validate is shared by every service that accepts a tagged request struct.
var validate = validator.New()
