package clog

import (
	"connectrpc.com/connect"
)

type Level int

const (
	LevelDebug Level = iota + 1
	LevelInfo
	LevelWarn
	LevelError
)

func HTTPStatusToLevel(status int) Level {
	switch {
	case status >= 100 && status < 400:
		return LevelInfo
	case status == 499:
		return LevelInfo
	case status >= 400 && status < 500:
		return LevelWarn
	default:
		return LevelError
	}
}

// Codes not listed here log at error level.
var infoCodes = map[connect.Code]struct{}{
	connect.CodeCanceled:           {},
	connect.CodeInvalidArgument:    {},
	connect.CodeDeadlineExceeded:   {},
	connect.CodeNotFound:           {},
	connect.CodeAlreadyExists:      {},
	connect.CodePermissionDenied:   {},
	connect.CodeFailedPrecondition: {},
	connect.CodeAborted:            {},
	connect.CodeOutOfRange:         {},
	connect.CodeUnauthenticated:    {},
}

func ConnectCodeToLevel(code connect.Code) Level {
	if _, ok := infoCodes[code]; ok {
		return LevelInfo
	}
	return LevelError
}
