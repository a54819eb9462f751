package errorx

type Code int

var Unknown = Error{Code: 100000, Message: "Request failed"}

const (
	// Common codes
	BadRequest       Code = 100001
	BadResponse      Code = 100002
	PermissionDenied Code = 100003
	NotFound         Code = 100004
	Unavailable      Code = 100005
	AlreadyExists    Code = 100006
	Internal         Code = 100007

	// Chain write codes
	NoSigner         Code = 200001
	TxReverted       Code = 200002
	UsernameTaken    Code = 200003
	GateNotSatisfied Code = 200004
	TribeClosed      Code = 200005
)
