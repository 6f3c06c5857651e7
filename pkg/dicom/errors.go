package dicom

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrUnsupportedTransferSyntax = errors.New("dicom: unsupported transfer syntax")
	ErrMalformed                 = errors.New("dicom: malformed dataset")
)

// UnsupportedTransferSyntaxError names the transfer syntax that cannot be read
type UnsupportedTransferSyntaxError struct {
	UID string
}

func (e *UnsupportedTransferSyntaxError) Error() string {
	return fmt.Sprintf("dicom: unsupported transfer syntax %q", e.UID)
}

// Is matches ErrUnsupportedTransferSyntax
func (e *UnsupportedTransferSyntaxError) Is(target error) bool {
	return target == ErrUnsupportedTransferSyntax
}
