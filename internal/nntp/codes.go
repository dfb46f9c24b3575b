package nntp

import "strconv"

// Server response codes used by the session and the worker loop.
const (
	CodeHelp             = 100
	CodeDate             = 111
	CodePostingAllowed   = 200
	CodePostingForbidden = 201
	CodeGoodBye          = 205
	CodeGroupSelected    = 211
	CodeListFollows      = 215
	CodeOverviewFollows  = 224
	CodeArticleFollows   = 220
	CodeHeadFollows      = 221
	CodeBodyFollows      = 222
	CodeArticleExists    = 223
	CodeNewNews          = 230
	CodeArticleReceived  = 240
	CodeModeStream       = 250
	CodeAuthAccepted     = 281
	CodeTransferOK       = 335
	CodeSendArticle      = 340
	CodeMoreAuth         = 381
	CodeTooManyConns     = 400
	CodeNoSuchGroup      = 411
	CodeNoGroupSelected  = 412
	CodeNoCurrentArticle = 420
	CodeNoNextArticle    = 421
	CodeNoPrevArticle    = 422
	CodeNoSuchNumber     = 423
	CodeNoSuchArticle    = 430
	CodeDoNotTryAgain    = 437
	CodePostingNotAllow  = 440
	CodePostingFailed    = 441
	CodeNeedsAuth        = 450
	CodeAuthRequired     = 480
	CodeAuthRejected     = 452
	CodeAuthFailed       = 481
	CodeAuthOutOfSeq     = 482
	CodeUnknownCommand   = 500
	CodeUnparsable       = 512
)

// Synthetic codes for failures that never reached the server.
const (
	CodeSocketUnknown     = 901
	CodeNetUnreachable    = 923
	CodeConnReset         = 926
	CodeShutdown          = 930
	CodeSocketTimeout     = 931
	CodeConnRefused       = 932
	CodeHostUnreachable   = 934
	CodeHostNotFound      = 941
	CodeNoCommandLine     = 965
	CodeNoNextLine        = 966
	CodeNoQuit            = 970
	CodeConnectFailed     = 980
	CodeUnknown           = 983
	CodeReceiveFailed     = 990
	CodeNoResponseCode    = 991
	CodeReceivedException = 992
	CodeSendFailed        = 994
	CodeConnectException  = 996
	CodeCancelled         = 998
)

var multilineCodes = map[int]bool{
	CodeListFollows:     true,
	218:                 true,
	CodeArticleFollows:  true,
	CodeHeadFollows:     true,
	CodeBodyFollows:     true,
	CodeArticleExists:   true,
	CodeOverviewFollows: true,
	CodeNewNews:         true,
	282:                 true,
	288:                 true,
}

// IsMultiline reports whether a response with this code carries a data block
// terminated by a lone dot.
func IsMultiline(code int) bool {
	return multilineCodes[code]
}

func isCommandOK(code int) bool {
	switch code {
	case CodeArticleReceived, CodeGroupSelected, CodeDate, CodeTransferOK, CodeSendArticle:
		return true
	}
	return multilineCodes[code]
}

// failsCommand lists the codes that fail the current command but leave the
// connection usable.
func failsCommand(code int) bool {
	switch code {
	case CodeNoNextArticle, CodeNoPrevArticle, CodeNoSuchArticle, CodeNoSuchNumber,
		CodeNoSuchGroup, CodeNoGroupSelected, CodeNoCurrentArticle,
		CodePostingFailed, CodePostingNotAllow:
		return true
	}
	return false
}

// ParseCode reads the three digit status at the start of a response line.
// Anything else yields CodeUnparsable.
func ParseCode(line []byte) int {
	if len(line) < 3 {
		return CodeUnparsable
	}
	code, err := strconv.Atoi(string(line[:3]))
	if err != nil || code < 0 {
		return CodeUnparsable
	}
	return code
}
