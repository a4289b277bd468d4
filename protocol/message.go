// Package protocol defines the messages exchanged between the host and its
// workers and their wire encoding.
//
// The set of kinds is closed. Receivers switch over Kind exhaustively and
// drop KindUnknown, which is what any unrecognised wire kind decodes to.
package protocol

// Kind tags a Message.
type Kind uint8

const (
	KindUnknown         Kind = iota
	KindEval                 // host -> worker: evaluate Code for JobID
	KindEvalResult           // worker -> host: Result of JobID
	KindMessage              // host -> worker: free-form Text
	KindMessageResponse      // worker -> host: free-form Text
)

var kindNames = [...]string{
	KindUnknown:         "unknown",
	KindEval:            "eval",
	KindEvalResult:      "eval_result",
	KindMessage:         "message",
	KindMessageResponse: "message_response",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// ParseKind maps a wire name to its Kind. Unrecognised names map to
// KindUnknown.
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name && Kind(k) != KindUnknown {
			return Kind(k)
		}
	}
	return KindUnknown
}

// Message is one host/worker message. Which fields are meaningful depends
// on Kind.
type Message struct {
	Code   string
	Result string
	Text   string
	JobID  uint32
	Kind   Kind
}

// Eval builds an evaluation request.
func Eval(jobID uint32, code string) Message {
	return Message{Kind: KindEval, JobID: jobID, Code: code}
}

// EvalResult builds an evaluation reply.
func EvalResult(jobID uint32, result string) Message {
	return Message{Kind: KindEvalResult, JobID: jobID, Result: result}
}

// Text builds a free-form message to a worker.
func Text(text string) Message {
	return Message{Kind: KindMessage, Text: text}
}

// TextResponse builds a free-form reply from a worker.
func TextResponse(text string) Message {
	return Message{Kind: KindMessageResponse, Text: text}
}

// Fields returns the message as the plain object a script sees, keyed by
// wire field names.
func (m Message) Fields() map[string]any {
	out := map[string]any{"kind": m.Kind.String()}
	switch m.Kind {
	case KindEval:
		out["jobId"] = m.JobID
		out["code"] = m.Code
	case KindEvalResult:
		out["jobId"] = m.JobID
		out["result"] = m.Result
	case KindMessage, KindMessageResponse:
		out["text"] = m.Text
	case KindUnknown:
	}
	return out
}
