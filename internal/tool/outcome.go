package tool

import "encoding/json"

// Outcome is the result of one tool invocation: either a success carrying a
// JSON-serialisable payload or a failure carrying a reason. The zero value is
// a failure with an empty reason.
type Outcome struct {
	ok      bool
	payload any
	reason  string
	err     error
}

// Success returns a successful Outcome.
func Success(payload any) Outcome {
	return Outcome{ok: true, payload: payload}
}

// Failure returns a failed Outcome.
func Failure(reason string) Outcome {
	return Outcome{reason: reason}
}

// FailureErr returns a failed Outcome whose reason is err's message. The
// error stays available through [Outcome.Err].
func FailureErr(err error) Outcome {
	return Outcome{reason: err.Error(), err: err}
}


// OK reports whether the outcome is a success.
func (o Outcome) OK() bool { return o.ok }

// Payload returns the success payload, or nil for a failure.
func (o Outcome) Payload() any { return o.payload }

// Reason returns the failure reason, or "" for a success.
func (o Outcome) Reason() string { return o.reason }

// Err returns the error behind a failure, or nil when the failure was built
// from a plain reason.
func (o Outcome) Err() error { return o.err }

type failureBody struct {
	Error string `json:"error"`
}

// Text serialises the outcome for a tool result turn. A success is the JSON
// encoding of the payload; a failure is {"error": reason}. Text never fails:
// a payload that cannot be encoded becomes a failure body.
func (o Outcome) Text() string {
	if !o.ok {
		return encodeFailure(o.reason)
	}
	switch p := o.payload.(type) {
	case json.RawMessage:
		return string(p)
	case string:
		b, _ := json.Marshal(p)
		return string(b)
	}
	b, err := json.Marshal(o.payload)
	if err != nil {
		return encodeFailure("encode result: " + err.Error())
	}
	return string(b)
}

// MarshalJSON encodes the outcome the same way as [Outcome.Text].
func (o Outcome) MarshalJSON() ([]byte, error) {
	return []byte(o.Text()), nil
}

func encodeFailure(reason string) string {
	b, _ := json.Marshal(failureBody{Error: reason})
	return string(b)
}

// Result pairs an Outcome with the request it answers.
type Result struct {
	CallID  string
	Name    string
	Outcome Outcome
}
