package filterset

import (
	"errors"
	"fmt"
)

// Definition-time errors.
var (
	ErrModelNotSpecified        = errors.New("model not specified")
	ErrUnsupportedColumnType    = errors.New("unsupported column type")
	ErrAutoOperatorsUnsupported = errors.New("unsupported field type for automatic filter binding")
	ErrUnknownAttribute         = errors.New("unknown attribute")
	ErrUnknownOperator          = errors.New("unknown operator")
	ErrInvalidFieldSpec         = errors.New("invalid field spec")
)

// Translation-time errors.
var (
	ErrFieldNotFound    = errors.New("field not found")
	ErrOperatorNotFound = errors.New("operator not found")
	ErrInvalidValue     = errors.New("invalid filter value")
	ErrNoRequestScope   = errors.New("no request scope in context")
)

// TranslateError reports the filter key that failed to translate.
type TranslateError struct {
	Key string
	Err error
}

func (e *TranslateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Key)
}

func (e *TranslateError) Unwrap() error {
	return e.Err
}

func translateErr(key string, err error) error {
	var te *TranslateError
	if errors.As(err, &te) {
		return err
	}
	return &TranslateError{Key: key, Err: err}
}
