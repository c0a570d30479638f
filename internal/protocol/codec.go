package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ZerkerEOD/krakenhashes/remote/internal/jobs"
)

var (
	errMissingJobID  = errors.New("missing jobId")
	errMissingRoomID = errors.New("missing room id")
)

// payloadDecoders maps each handled discriminator to the decoder of its payload
var payloadDecoders = map[MessageType]func(env inboundEnvelope) (Event, error){
	TypeRoomID:       decodeRoomJoined,
	TypeJobStatus:    decodeStatusEnvelope,
	typeStatusAlias:  decodeStatusEnvelope,
	TypeSniffOutput:  decodeSniffOutput,
	TypeSniffStopped: func(inboundEnvelope) (Event, error) { return SniffStopped{}, nil },
}

// marshal encodes v without HTML escaping so paths and rules reach the
// desktop byte for byte
func marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Encode converts an envelope to its wire text
func Encode(env Envelope) ([]byte, error) {
	data, err := marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", env.Type, err)
	}
	return data, nil
}

// NewEnvelope encodes payload and wraps it in an envelope addressed to roomID
func NewEnvelope(msgType MessageType, roomID string, payload interface{}) (Envelope, error) {
	data, err := marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, Payload: string(data), RoomID: roomID}, nil
}

// NewAttackEnvelope builds an attack command
func NewAttackEnvelope(roomID string, params AttackParams) (Envelope, error) {
	return NewEnvelope(TypeAttack, roomID, params)
}

// NewStartSniffEnvelope builds a start_sniff command
func NewStartSniffEnvelope(roomID string, params SniffParams) (Envelope, error) {
	return NewEnvelope(TypeStartSniff, roomID, params)
}

// NewStopSniffEnvelope builds a stop_sniff command with an empty object payload
func NewStopSniffEnvelope(roomID string) Envelope {
	return Envelope{Type: TypeStopSniff, Payload: "{}", RoomID: roomID}
}

// ParseEnvelope decodes the outer envelope of a frame
func ParseEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return env, nil
}

// UnmarshalPayload decodes the nested payload of env into v
func UnmarshalPayload(env Envelope, v interface{}) error {
	if err := json.Unmarshal([]byte(env.Payload), v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
	}
	return nil
}

/*
 * Decode turns one inbound frame into an Event:
 *   1. the outer envelope is parsed; failure yields DecodeFailure
 *   2. the discriminator selects a payload decoder
 *   3. a payload that does not decode yields DecodeFailure naming the type
 *
 * Unknown discriminators yield Unknown. A frame without a discriminator is
 * tried as a bare status report before it is reported as a failure.
 * Decode never panics and never returns nil.
 */
func Decode(frame []byte) Event {
	raw := string(frame)

	var env inboundEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return DecodeFailure{Raw: raw, Err: err}
	}

	if env.Type == "" {
		status, err := decodeStatus(frame)
		if err != nil {
			return DecodeFailure{Raw: raw, Err: fmt.Errorf("no message type: %w", err)}
		}
		return status
	}

	decoder, ok := payloadDecoders[env.Type]
	if !ok {
		return Unknown{Type: env.Type, Raw: raw}
	}

	event, err := decoder(env)
	if err != nil {
		return DecodeFailure{Type: env.Type, Raw: raw, Err: err}
	}
	return event
}

func decodeRoomJoined(env inboundEnvelope) (Event, error) {
	id := env.ID
	if id == "" {
		id = env.RoomID
	}
	if id == "" {
		return nil, errMissingRoomID
	}
	return RoomJoined{RoomID: id}, nil
}

func decodeStatusEnvelope(env inboundEnvelope) (Event, error) {
	status, err := decodeStatus([]byte(env.Payload))
	if err != nil {
		return nil, err
	}
	return status, nil
}

func decodeStatus(data []byte) (JobStatus, error) {
	var payload StatusPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return JobStatus{}, fmt.Errorf("invalid status payload: %w", err)
	}
	if payload.JobID == "" {
		return JobStatus{}, errMissingJobID
	}
	status, err := jobs.ParseStatus(payload.Status)
	if err != nil {
		return JobStatus{}, err
	}
	return JobStatus{
		JobID:   payload.JobID,
		Status:  status,
		Output:  payload.Output,
		Error:   payload.Error,
		Cracked: payload.Cracked,
	}, nil
}

func decodeSniffOutput(env inboundEnvelope) (Event, error) {
	var payload SniffOutputPayload
	if err := json.Unmarshal([]byte(env.Payload), &payload); err != nil {
		return nil, fmt.Errorf("invalid sniff output payload: %w", err)
	}
	return SniffOutput{Output: payload.Output}, nil
}
