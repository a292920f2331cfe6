package bluetooth

import (
	"errors"
	"fmt"
)

// Error domains reported by the native framework.
const (
	ErrorDomain    = "CBErrorDomain"
	AttErrorDomain = "CBATTErrorDomain"
)

// Library errors that do not originate from the native framework.
var (
	ErrClosed              = errors.New("bluetooth: central manager is closed")
	ErrUnsupportedPlatform = errors.New("bluetooth: no native Bluetooth framework on this platform")

	errNilPeripheral     = errors.New("bluetooth: nil peripheral")
	errNilService        = errors.New("bluetooth: nil service")
	errNilCharacteristic = errors.New("bluetooth: nil characteristic")
	errNilDescriptor     = errors.New("bluetooth: nil descriptor")
	errForeignHandle     = errors.New("bluetooth: handle belongs to another peripheral")
)

// ErrorKind classifies an error reported by the native framework.
type ErrorKind int

const (
	// ErrorKindOther is used for errors from an unknown domain.
	ErrorKindOther ErrorKind = iota
	ErrorKindUnknown
	ErrorKindInvalidParameters
	ErrorKindInvalidHandle
	ErrorKindNotConnected
	ErrorKindOutOfSpace
	ErrorKindOperationCancelled
	ErrorKindConnectionTimeout
	ErrorKindPeripheralDisconnected
	ErrorKindUUIDNotAllowed
	ErrorKindAlreadyAdvertising
	ErrorKindConnectionFailed
	ErrorKindConnectionLimitReached
	ErrorKindUnknownDevice
	ErrorKindOperationNotSupported
	// ErrorKindAtt is an error returned by the remote GATT server. The
	// Error.Att field holds the ATT error.
	ErrorKindAtt
)

var errorKindNames = [...]string{
	ErrorKindOther:                  "Other",
	ErrorKindUnknown:                "Unknown",
	ErrorKindInvalidParameters:      "InvalidParameters",
	ErrorKindInvalidHandle:          "InvalidHandle",
	ErrorKindNotConnected:           "NotConnected",
	ErrorKindOutOfSpace:             "OutOfSpace",
	ErrorKindOperationCancelled:     "OperationCancelled",
	ErrorKindConnectionTimeout:      "ConnectionTimeout",
	ErrorKindPeripheralDisconnected: "PeripheralDisconnected",
	ErrorKindUUIDNotAllowed:         "UUIDNotAllowed",
	ErrorKindAlreadyAdvertising:     "AlreadyAdvertising",
	ErrorKindConnectionFailed:       "ConnectionFailed",
	ErrorKindConnectionLimitReached: "ConnectionLimitReached",
	ErrorKindUnknownDevice:          "UnknownDevice",
	ErrorKindOperationNotSupported:  "OperationNotSupported",
	ErrorKindAtt:                    "Att",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(errorKindNames) {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return errorKindNames[k]
}

// errorKindFromCode maps a CBErrorDomain code.
func errorKindFromCode(code int) ErrorKind {
	switch code {
	case 1:
		return ErrorKindInvalidParameters
	case 2:
		return ErrorKindInvalidHandle
	case 3:
		return ErrorKindNotConnected
	case 4:
		return ErrorKindOutOfSpace
	case 5:
		return ErrorKindOperationCancelled
	case 6:
		return ErrorKindConnectionTimeout
	case 7:
		return ErrorKindPeripheralDisconnected
	case 8:
		return ErrorKindUUIDNotAllowed
	case 9:
		return ErrorKindAlreadyAdvertising
	case 10:
		return ErrorKindConnectionFailed
	case 11:
		return ErrorKindConnectionLimitReached
	case 12:
		return ErrorKindUnknownDevice
	case 13:
		return ErrorKindOperationNotSupported
	default:
		return ErrorKindUnknown
	}
}

// AttErrorKind is an error returned by a GATT server (the remote peripheral)
// during an ATT transaction.
type AttErrorKind int

const (
	// AttErrorOther is used for ATT codes that have no name here.
	AttErrorOther AttErrorKind = iota
	AttErrorSuccess
	AttErrorInvalidHandle
	AttErrorReadNotPermitted
	AttErrorWriteNotPermitted
	AttErrorInvalidPdu
	AttErrorInsufficientAuthentication
	AttErrorRequestNotSupported
	AttErrorInvalidOffset
	AttErrorInsufficientAuthorization
	AttErrorPrepareQueueFull
	AttErrorAttributeNotFound
	AttErrorAttributeNotLong
	AttErrorInsufficientEncryptionKeySize
	AttErrorInvalidAttributeValueLength
	AttErrorUnlikelyError
	AttErrorInsufficientEncryption
	AttErrorUnsupportedGroupType
	AttErrorInsufficientResources
)

var attErrorKindNames = [...]string{
	AttErrorOther:                         "Other",
	AttErrorSuccess:                       "Success",
	AttErrorInvalidHandle:                 "InvalidHandle",
	AttErrorReadNotPermitted:              "ReadNotPermitted",
	AttErrorWriteNotPermitted:             "WriteNotPermitted",
	AttErrorInvalidPdu:                    "InvalidPdu",
	AttErrorInsufficientAuthentication:    "InsufficientAuthentication",
	AttErrorRequestNotSupported:           "RequestNotSupported",
	AttErrorInvalidOffset:                 "InvalidOffset",
	AttErrorInsufficientAuthorization:     "InsufficientAuthorization",
	AttErrorPrepareQueueFull:              "PrepareQueueFull",
	AttErrorAttributeNotFound:             "AttributeNotFound",
	AttErrorAttributeNotLong:              "AttributeNotLong",
	AttErrorInsufficientEncryptionKeySize: "InsufficientEncryptionKeySize",
	AttErrorInvalidAttributeValueLength:   "InvalidAttributeValueLength",
	AttErrorUnlikelyError:                 "UnlikelyError",
	AttErrorInsufficientEncryption:        "InsufficientEncryption",
	AttErrorUnsupportedGroupType:          "UnsupportedGroupType",
	AttErrorInsufficientResources:         "InsufficientResources",
}

func (k AttErrorKind) String() string {
	if k < 0 || int(k) >= len(attErrorKindNames) {
		return fmt.Sprintf("AttErrorKind(%d)", int(k))
	}
	return attErrorKindNames[k]
}

// attErrorKindFromCode maps a CBATTErrorDomain code. The codes are the ATT
// protocol error codes, offset by one because AttErrorOther comes first.
func attErrorKindFromCode(code int) AttErrorKind {
	if code < 0 || code > int(AttErrorInsufficientResources-AttErrorSuccess) {
		return AttErrorOther
	}
	return AttErrorKind(code + 1)
}

// Error is an error reported by the native framework, either in a callback
// or as the result of a synchronous call.
type Error struct {
	Kind ErrorKind
	// Att is only meaningful when Kind is ErrorKindAtt.
	Att         AttErrorKind
	Domain      string
	Code        int
	Description string
}

// NewError classifies a native error by its domain and code.
func NewError(domain string, code int, description string) *Error {
	e := &Error{
		Kind:        ErrorKindOther,
		Domain:      domain,
		Code:        code,
		Description: description,
	}
	switch domain {
	case ErrorDomain:
		e.Kind = errorKindFromCode(code)
	case AttErrorDomain:
		e.Kind = ErrorKindAtt
		e.Att = attErrorKindFromCode(code)
	}
	return e
}

// errorFromNative converts an error handed out by a native binding. A
// binding that drops the domain is assumed to report codes of domain. An
// error without a code keeps only its description.
func errorFromNative(err error, domain string) error {
	if err == nil {
		return nil
	}
	var coded interface{ Code() int }
	if !errors.As(err, &coded) {
		return NewError("", 0, err.Error())
	}
	var withDomain interface{ Domain() string }
	if errors.As(err, &withDomain) {
		domain = withDomain.Domain()
	}
	return NewError(domain, coded.Code(), err.Error())
}

func (e *Error) Error() string {
	if e.Description != "" {
		return e.Description
	}
	if e.Kind == ErrorKindAtt {
		return "bluetooth: ATT error " + e.Att.String()
	}
	return "bluetooth: " + e.Kind.String()
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, ErrNotConnected) works regardless of description.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Kind != ErrorKindAtt || t.Att == e.Att
}

// Sentinels for errors.Is comparisons against framework errors.
var (
	ErrInvalidParameters      = &Error{Kind: ErrorKindInvalidParameters}
	ErrInvalidHandle          = &Error{Kind: ErrorKindInvalidHandle}
	ErrNotConnected           = &Error{Kind: ErrorKindNotConnected}
	ErrOutOfSpace             = &Error{Kind: ErrorKindOutOfSpace}
	ErrOperationCancelled     = &Error{Kind: ErrorKindOperationCancelled}
	ErrConnectionTimeout      = &Error{Kind: ErrorKindConnectionTimeout}
	ErrPeripheralDisconnected = &Error{Kind: ErrorKindPeripheralDisconnected}
	ErrUUIDNotAllowed         = &Error{Kind: ErrorKindUUIDNotAllowed}
	ErrConnectionFailed       = &Error{Kind: ErrorKindConnectionFailed}
	ErrConnectionLimitReached = &Error{Kind: ErrorKindConnectionLimitReached}
	ErrUnknownDevice          = &Error{Kind: ErrorKindUnknownDevice}
	ErrOperationNotSupported  = &Error{Kind: ErrorKindOperationNotSupported}

	ErrAttReadNotPermitted           = &Error{Kind: ErrorKindAtt, Att: AttErrorReadNotPermitted}
	ErrAttWriteNotPermitted          = &Error{Kind: ErrorKindAtt, Att: AttErrorWriteNotPermitted}
	ErrAttInsufficientAuthentication = &Error{Kind: ErrorKindAtt, Att: AttErrorInsufficientAuthentication}
	ErrAttInsufficientEncryption     = &Error{Kind: ErrorKindAtt, Att: AttErrorInsufficientEncryption}
	ErrAttRequestNotSupported        = &Error{Kind: ErrorKindAtt, Att: AttErrorRequestNotSupported}
	ErrAttAttributeNotFound          = &Error{Kind: ErrorKindAtt, Att: AttErrorAttributeNotFound}
)
