package errs

import (
	"errors"
	"fmt"
)

type BridgeErr struct {
	msg  string
	code int64
	err  error
}

// Error 输出格式：
// [错误码] 错误类型描述 ( => 包含错误详细描述 )
// 解释：(xxx) 表示可选内容
func (be *BridgeErr) Error() string {
	details := fmt.Sprintf("[%d] %s", be.code, be.msg)
	if be.err != nil {
		details += fmt.Sprintf(" => %s", be.err)
	}

	return details
}

func (be *BridgeErr) Code() int64 {
	return be.code
}

func (be *BridgeErr) WithErr(err error) *BridgeErr {
	be.err = err
	return be
}

func GetCode(err error) int64 {
	var be *BridgeErr
	if errors.As(err, &be) {
		return be.code
	}
	return UnknownErrCode
}

const (
	UnknownErrCode           = 0
	InvalidParamErrCode      = 100001
	SocketErrCode            = 100002
	ReadSocketErrCode        = 100003
	WriteSocketErrCode       = 100004
	ConnClosedErrCode        = 100005
	TimeoutErrCode           = 100006
	ResolveAddrErrCode       = 100007
	AlreadyAttachedErrCode   = 200001
	AllocationFailureErrCode = 200002
	NotAttachedErrCode       = 200003
	PollerErrCode            = 300001
	LoopClosedErrCode        = 300002
	WatcherActiveErrCode     = 300003
)

func NewUnknownErr() *BridgeErr {
	return &BridgeErr{msg: "unknown error", code: UnknownErrCode}
}

func NewInvalidParamErr() *BridgeErr {
	return &BridgeErr{msg: "invalid params", code: InvalidParamErrCode}
}

func NewSocketErr() *BridgeErr {
	return &BridgeErr{msg: "socket operation failed", code: SocketErrCode}
}

func NewReadSocketErr() *BridgeErr {
	return &BridgeErr{msg: "read socket failed", code: ReadSocketErrCode}
}

func NewWriteSocketErr() *BridgeErr {
	return &BridgeErr{msg: "write socket failed", code: WriteSocketErrCode}
}

func NewConnClosedErr() *BridgeErr {
	return &BridgeErr{msg: "connection closed", code: ConnClosedErrCode}
}

func NewTimeoutErr() *BridgeErr {
	return &BridgeErr{msg: "operation timed out", code: TimeoutErrCode}
}

func NewResolveAddrErr() *BridgeErr {
	return &BridgeErr{msg: "resolve address failed", code: ResolveAddrErrCode}
}

func NewAlreadyAttachedErr() *BridgeErr {
	return &BridgeErr{msg: "context already has an adapter attached", code: AlreadyAttachedErrCode}
}

func NewAllocationFailureErr() *BridgeErr {
	return &BridgeErr{msg: "watcher state allocation failed", code: AllocationFailureErrCode}
}

func NewNotAttachedErr() *BridgeErr {
	return &BridgeErr{msg: "context has no adapter attached", code: NotAttachedErrCode}
}

func NewPollerErr() *BridgeErr {
	return &BridgeErr{msg: "poller operation failed", code: PollerErrCode}
}

func NewLoopClosedErr() *BridgeErr {
	return &BridgeErr{msg: "event loop closed", code: LoopClosedErrCode}
}

func NewWatcherActiveErr() *BridgeErr {
	return &BridgeErr{msg: "watcher already active", code: WatcherActiveErrCode}
}
