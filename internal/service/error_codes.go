package service

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument         = 1000
	ErrCodeInvalidBasename         = 1101
	ErrCodeIncorrectFileTypes      = 1102
	ErrCodeIncorrectFastqFileTypes = 1103

	// Domain state (2xxx)
	ErrCodeNotFound          = 2001
	ErrCodeChecksumDuplicate = 2101
	ErrCodeBlobUnprocessable = 2102

	// Permission (3xxx)
	ErrCodeProtectedOrigin = 3002

	// Internal/system (4xxx)
	ErrCodeInternal = 4001
)

func defaultErrorCodeByKind(kind Kind) int {
	switch kind {
	case KindInvalidArgument:
		return ErrCodeInvalidArgument
	case KindInvalidBasename:
		return ErrCodeInvalidBasename
	case KindIncorrectFileTypes:
		return ErrCodeIncorrectFileTypes
	case KindIncorrectFastqFileTypes:
		return ErrCodeIncorrectFastqFileTypes
	case KindNotFound:
		return ErrCodeNotFound
	case KindChecksumDuplicate:
		return ErrCodeChecksumDuplicate
	case KindBlobUnprocessable:
		return ErrCodeBlobUnprocessable
	case KindProtectedOrigin:
		return ErrCodeProtectedOrigin
	default:
		return ErrCodeInternal
	}
}
