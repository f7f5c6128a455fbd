// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package rdp

import (
	"encoding/json"
	"fmt"
)

// Packet is one inbound protocol message. Every packet sent by the engine carries
// a "from" field naming the actor it originates from; replies to requests carry no
// mandated "type", events do.
type Packet struct {
	From    string `json:"from"`
	Type    string `json:"type,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	raw json.RawMessage
}

// DecodePacket parses the JSON body of one framed packet.
func DecodePacket(body []byte) (*Packet, error) {
	p := Packet{}
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &TransportError{Kind: TransportErrorDecode, Err: err}
	}
	if p.From == "" {
		return nil, &TransportError{
			Kind: TransportErrorDecode,
			Err:  fmt.Errorf("packet has no 'from' field: %s", truncateForLog(body)),
		}
	}
	p.raw = append(json.RawMessage(nil), body...)
	return &p, nil
}

// Unmarshal decodes the full packet body into v.
func (p *Packet) Unmarshal(v any) error {
	return json.Unmarshal(p.raw, v)
}

// Raw returns the full JSON body of the packet.
func (p *Packet) Raw() json.RawMessage {
	return p.raw
}

// IsError reports whether the packet is an error reply.
func (p *Packet) IsError() bool {
	return p.Error != ""
}

// ToActorError converts an error reply into a typed ActorError.
func (p *Packet) ToActorError() *ActorError {
	return &ActorError{
		Actor:   p.From,
		Code:    p.Error,
		Message: p.Message,
	}
}

// encodeRequest builds the outbound body for a request: the "to" and "type"
// fields merged with the (optional) extra arguments struct.
func encodeRequest(to string, requestType string, extra any) ([]byte, error) {
	fields := map[string]json.RawMessage{}

	if extra != nil {
		extraBytes, marshalErr := json.Marshal(extra)
		if marshalErr != nil {
			return nil, fmt.Errorf("failed to marshal request arguments: %w", marshalErr)
		}
		if err := json.Unmarshal(extraBytes, &fields); err != nil {
			return nil, fmt.Errorf("request arguments must marshal to a JSON object: %w", err)
		}
	}

	toBytes, _ := json.Marshal(to)
	typeBytes, _ := json.Marshal(requestType)
	fields["to"] = toBytes
	fields["type"] = typeBytes

	return json.Marshal(fields)
}

func truncateForLog(body []byte) string {
	const maxLen = 200
	if len(body) <= maxLen {
		return string(body)
	}
	return string(body[:maxLen]) + "..."
}
