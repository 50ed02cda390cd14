package model

import (
	"sort"
	"strings"
)

// SwiftField is one ":code:value" line of a SWIFT message.
type SwiftField struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

// SwiftMessage is a parsed SWIFT message. Fields keep message order; a repeated code keeps
// its last value.
type SwiftMessage struct {
	MessageType string       `json:"message_type"`
	RawContent  string       `json:"raw_content"`
	Fields      []SwiftField `json:"fields"`
}

// ParseSwiftMessage splits content into fields. Lines that do not start with ':' or carry
// no second ':' are ignored.
func ParseSwiftMessage(content, messageType string) SwiftMessage {
	msg := SwiftMessage{MessageType: messageType, RawContent: content}
	index := map[string]int{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, ":") {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 3 {
			continue
		}
		code, value := parts[1], parts[2]
		if i, ok := index[code]; ok {
			msg.Fields[i].Value = value
			continue
		}
		index[code] = len(msg.Fields)
		msg.Fields = append(msg.Fields, SwiftField{Code: code, Value: value})
	}
	return msg
}

// Field returns the value of code.
func (m SwiftMessage) Field(code string) (string, bool) {
	for _, f := range m.Fields {
		if f.Code == code {
			return f.Value, true
		}
	}
	return "", false
}

// ToValue renders the message as a JSON-like map with message_type, raw_content and fields.
func (m SwiftMessage) ToValue() map[string]interface{} {
	fields := make(map[string]interface{}, len(m.Fields))
	for _, f := range m.Fields {
		fields[f.Code] = f.Value
	}
	return map[string]interface{}{
		"message_type": m.MessageType,
		"raw_content":  m.RawContent,
		"fields":       fields,
	}
}

// SwiftMessageFromValue reverses ToValue. Field order becomes lexical because the map
// does not keep it.
func SwiftMessageFromValue(v interface{}) (SwiftMessage, bool) {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return SwiftMessage{}, false
	}
	msg := SwiftMessage{}
	msg.MessageType, _ = obj["message_type"].(string)
	msg.RawContent, _ = obj["raw_content"].(string)
	fields, ok := obj["fields"].(map[string]interface{})
	if !ok {
		if msg.RawContent != "" {
			return ParseSwiftMessage(msg.RawContent, msg.MessageType), true
		}
		return msg, true
	}
	codes := make([]string, 0, len(fields))
	for code := range fields {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		value, _ := fields[code].(string)
		msg.Fields = append(msg.Fields, SwiftField{Code: code, Value: value})
	}
	return msg, true
}
