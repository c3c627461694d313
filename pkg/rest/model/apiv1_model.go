// Package model holds the JSON documents exchanged by the REST API.
package model

import "time"

// JSONDispatchRequestV1 is the body of a dispatch request.
type JSONDispatchRequestV1 struct {
	Type    string         `json:"type"`
	Payload any            `json:"payload,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// JSONDispatchResponseV1 reports the dispatched action type and the resulting state.
type JSONDispatchResponseV1 struct {
	Type  string `json:"type"`
	State any    `json:"state"`
}

// JSONListenersV1 reports the number of registered listeners.
type JSONListenersV1 struct {
	Count int `json:"count"`
}

// JSONActionRecordV1 is sent to action monitor websockets.
type JSONActionRecordV1 struct {
	Seq     uint64    `json:"seq"`
	Type    string    `json:"type"`
	Payload any       `json:"payload,omitempty"`
	Time    time.Time `json:"time"`
}

// JSONErrorV1 is the body of a failed request.
type JSONErrorV1 struct {
	Error string `json:"error"`
}
