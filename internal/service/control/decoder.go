// Package control decodes messages from the session's side channel.
package control

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ziadismael/DevPath/interviewer/internal/model/persona"
)

// Topic tags a control message.
type Topic string

const (
	TopicInit       Topic = "INIT"
	TopicCodeUpdate Topic = "CODE_UPDATE"
)

// Message is one of Init, CodeUpdate or Ignored.
type Message interface {
	Topic() Topic
}

// Init asks the session to switch to the persona for Mode. Mode is normalised
// but not validated; the persona registry decides what an unknown mode means.
type Init struct {
	Mode persona.Mode
}

func (Init) Topic() Topic { return TopicInit }

// CodeUpdate carries the full editor contents.
type CodeUpdate struct {
	Code string
}

func (CodeUpdate) Topic() Topic { return TopicCodeUpdate }

// Ignored is a well-formed message with a topic the session does not handle.
type Ignored struct {
	Name string
}

func (i Ignored) Topic() Topic { return Topic(i.Name) }

// ErrorKind classifies a DecodeError.
type ErrorKind string

const (
	KindEncoding  ErrorKind = "encoding"
	KindStructure ErrorKind = "structure"
)

// DecodeError reports a payload that cannot be turned into a Message.
type DecodeError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func encodingErr(msg string, err error) *DecodeError {
	return &DecodeError{Kind: KindEncoding, Message: msg, Err: err}
}

func structureErr(msg string, err error) *DecodeError {
	return &DecodeError{Kind: KindStructure, Message: msg, Err: err}
}

// Decode parses one raw side-channel payload. It never panics; callers drop
// the payload when err is non-nil.
func Decode(data []byte) (Message, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, encodingErr("empty payload", nil)
	}
	if !utf8.Valid(data) {
		return nil, encodingErr("payload is not valid utf-8", nil)
	}
	if !json.Valid(data) {
		return nil, encodingErr("payload is not valid json", nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, structureErr("payload is not a json object", err)
	}

	topic, err := optionalString(fields, "topic")
	if err != nil {
		return nil, err
	}

	switch Topic(topic) {
	case TopicInit:
		mode, err := optionalString(fields, "mode")
		if err != nil {
			return nil, err
		}
		mode = strings.ToLower(strings.TrimSpace(mode))
		if mode == "" {
			mode = string(persona.Technical)
		}
		return Init{Mode: persona.Mode(mode)}, nil

	case TopicCodeUpdate:
		raw, ok := fields["code"]
		if !ok || string(raw) == "null" {
			return nil, structureErr("CODE_UPDATE requires a code field", nil)
		}
		var code string
		if err := json.Unmarshal(raw, &code); err != nil {
			return nil, structureErr("code must be a string", err)
		}
		return CodeUpdate{Code: code}, nil

	default:
		return Ignored{Name: topic}, nil
	}
}

func optionalString(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", structureErr(key+" must be a string", err)
	}
	return s, nil
}
