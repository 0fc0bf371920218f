package iso7816

import "bytes"

// TRANSACTION:
// A Transaction is one physical exchange: a Command APDU sent by the terminal
// and the Response APDU of the card.
//
// TRACE:
// A Trace is the chronological list of the transactions of one logical
// request. A request sent by Client may take several of them:
// 1. Chained parts: every part of a long command but the last one.
// 2. "6C XX" (Wrong Length): the command is re-sent with Le = XX.
// 3. "61 XX" (Process Completed): the data is fetched with GET RESPONSE.
//
// IsSuccess evaluates the final outcome, Data the response data gathered
// over the exchanges.

// Transaction represents a completed Command-Response pair.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess checks if the transaction ended with a successful status.
// It returns false if the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is the sequence of transactions of one logical request.
type Trace []Transaction

// Last returns the final transaction of the trace.
// Returns nil if the trace is empty.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess reports whether the final transaction succeeded, whatever the
// intermediate 61XX or 6CXX answers.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}

// Data returns the response data of the logical request: the data of the
// last answer to the command, followed by everything fetched with GET
// RESPONSE.
func (t Trace) Data() []byte {
	var buf bytes.Buffer
	for _, tx := range t {
		if tx.Response == nil {
			continue
		}
		if tx.Command == nil || tx.Command.Instruction.Raw != INS_GET_RESPONSE {
			buf.Reset()
		}
		buf.Write(tx.Response.Data)
	}
	return buf.Bytes()
}
