package s3err

import "net/http"

// Multipart completion errors. The messages are AWS's wording verbatim;
// SDK compatibility tests compare them.
var (
	ErrEntityTooSmall = &Error{
		Kind:    KindValidation,
		Code:    "EntityTooSmall",
		Message: "Your proposed upload is smaller than the minimum allowed object size. Each part must be at least 5 MB in size, except the last part.",
	}
	ErrNoSuchUpload = &Error{
		Kind:    KindNotFound,
		Code:    "NoSuchUpload",
		Message: "The specified multipart upload does not exist. The upload ID might be invalid, or the multipart upload might have been aborted or completed.",
	}
	ErrInvalidPart = &Error{
		Kind:    KindNotFound,
		Code:    "InvalidPart",
		Message: "One or more of the specified parts could not be found. The part might not have been uploaded, or the specified entity tag might not have matched the part's entity tag.",
		Status:  http.StatusBadRequest,
	}
	ErrInvalidPartOrder = &Error{
		Kind:    KindValidation,
		Code:    "InvalidPartOrder",
		Message: "The list of parts was not in ascending order. The parts list must be specified in order by part number.",
	}
)

// Request validation errors.
var (
	ErrInvalidMaxKeys = &Error{
		Kind:    KindValidation,
		Code:    "InvalidArgument",
		Message: "Provided max-keys not an integer or within integer range",
	}
	ErrInvalidEncodingType = &Error{
		Kind:    KindValidation,
		Code:    "InvalidArgument",
		Message: "Invalid Encoding Method specified in Request",
	}
	ErrInvalidArgument = &Error{
		Kind:    KindValidation,
		Code:    "InvalidArgument",
		Message: "Invalid Argument",
	}
	ErrBadDigest = &Error{
		Kind:    KindValidation,
		Code:    "BadDigest",
		Message: "The Content-MD5 you specified did not match what we received.",
	}
	ErrInvalidDigest = &Error{
		Kind:    KindValidation,
		Code:    "InvalidDigest",
		Message: "The Content-MD5 you specified is not valid.",
	}
	ErrInvalidBucketName = &Error{
		Kind:    KindValidation,
		Code:    "InvalidBucketName",
		Message: "The specified bucket is not valid.",
	}
	ErrInvalidObjectName = &Error{
		Kind:    KindValidation,
		Code:    "InvalidObjectName",
		Message: "The specified key is not valid.",
	}
	ErrMalformedXML = &Error{
		Kind:    KindValidation,
		Code:    "MalformedXML",
		Message: "The XML you provided was not well-formed or did not validate against our published schema.",
	}
	ErrInvalidRequest = &Error{
		Kind:    KindValidation,
		Code:    "InvalidRequest",
		Message: "Invalid Request",
	}
)

// Resource errors.
var (
	ErrNoSuchBucket = &Error{
		Kind:    KindNotFound,
		Code:    "NoSuchBucket",
		Message: "The specified bucket does not exist.",
	}
	ErrNoSuchKey = &Error{
		Kind:    KindNotFound,
		Code:    "NoSuchKey",
		Message: "The specified key does not exist.",
	}
	ErrBucketNotEmpty = &Error{
		Kind:    KindConflict,
		Code:    "BucketNotEmpty",
		Message: "The bucket you tried to delete is not empty.",
	}
	ErrBucketAlreadyOwnedByYou = &Error{
		Kind:    KindConflict,
		Code:    "BucketAlreadyOwnedByYou",
		Message: "Your previous request to create the named bucket succeeded and you already own it.",
	}
	ErrNotImplemented = &Error{
		Kind:    KindValidation,
		Code:    "NotImplemented",
		Message: "A header you provided implies functionality that is not implemented.",
		Status:  http.StatusNotImplemented,
	}
	ErrInternal = &Error{
		Kind:    KindInternal,
		Code:    "InternalError",
		Message: "We encountered an internal error. Please try again.",
	}
)
