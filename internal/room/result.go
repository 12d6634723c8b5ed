package room

// 거절 사유
const (
	ReasonInvalidPayload  = "invalid payload"
	ReasonNoParticipant   = "participant not found"
	ReasonFeatureDisabled = "command not supported in this room"
	ReasonAlreadySeeded   = "comments already set"
	ReasonUnknownComment  = "comment not found"
	ReasonAlreadyVoted    = "already voted"
	ReasonNotVoted        = "not voted"
	ReasonUnrecognized    = "unrecognized command"
)

// Result 명령 처리 결과 (Applied 또는 Rejected)
type Result struct {
	Applied bool
	Reason  string
}

// Applied 적용된 결과
func Applied() Result {
	return Result{Applied: true}
}

// Rejected 거절된 결과
func Rejected(reason string) Result {
	return Result{Reason: reason}
}

func (r Result) String() string {
	if r.Applied {
		return "applied"
	}
	return "rejected: " + r.Reason
}
