package protocol

import "github.com/ZerkerEOD/krakenhashes/remote/internal/jobs"

// MessageType is the envelope discriminator
type MessageType string

const (
	// Outbound commands
	TypeAttack     MessageType = "attack"
	TypeStartSniff MessageType = "start_sniff"
	TypeStopSniff  MessageType = "stop_sniff"

	// Inbound notifications
	TypeRoomID       MessageType = "room_id"
	TypeJobStatus    MessageType = "job_status"
	TypeSniffOutput  MessageType = "sniff_output"
	TypeSniffStopped MessageType = "sniff_stopped"

	// typeStatusAlias is accepted for job status payloads sent by older desktops
	typeStatusAlias MessageType = "status"
)

// Envelope is the outer wire message. Payload is itself an encoded JSON
// document whose schema depends on Type.
type Envelope struct {
	Type    MessageType `json:"type"`
	Payload string      `json:"payload"`
	RoomID  string      `json:"room_id"`
}

// inboundEnvelope also carries the id field of the room assignment frame
type inboundEnvelope struct {
	Type    MessageType `json:"type"`
	Payload string      `json:"payload"`
	RoomID  string      `json:"room_id"`
	ID      string      `json:"id"`
}

// AttackParams is the payload of an attack command
type AttackParams struct {
	JobID    string `json:"jobId"`
	File     string `json:"file"`
	Mode     string `json:"mode"`
	Wordlist string `json:"wordlist"`
	Rules    string `json:"rules"`
}

// SniffParams is the payload of a start_sniff command
type SniffParams struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// SniffOutputPayload carries one captured fragment
type SniffOutputPayload struct {
	Output string `json:"output"`
}

// StatusPayload is a job status report as sent on the wire
type StatusPayload struct {
	JobID   string   `json:"jobId"`
	Status  string   `json:"status"`
	Output  string   `json:"output,omitempty"`
	Cracked []string `json:"cracked,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Event is a decoded inbound frame. The concrete types below are the only
// implementations.
type Event interface {
	Kind() MessageType
	isEvent()
}

// RoomJoined confirms the relay assigned or accepted a room
type RoomJoined struct {
	RoomID string
}

// JobStatus reports progress or the outcome of a job
type JobStatus struct {
	JobID   string
	Status  jobs.Status
	Output  string
	Error   string
	Cracked []string
}

// SniffOutput carries a capture fragment
type SniffOutput struct {
	Output string
}

// SniffStopped signals the capture source is done
type SniffStopped struct{}

// DecodeFailure is raised for frames that cannot be decoded. Type is empty
// when the outer envelope itself was unreadable.
type DecodeFailure struct {
	Type MessageType
	Raw  string
	Err  error
}

// Unknown is a well-formed envelope with a discriminator this client does not handle
type Unknown struct {
	Type MessageType
	Raw  string
}

func (RoomJoined) Kind() MessageType    { return TypeRoomID }
func (JobStatus) Kind() MessageType     { return TypeJobStatus }
func (SniffOutput) Kind() MessageType   { return TypeSniffOutput }
func (SniffStopped) Kind() MessageType  { return TypeSniffStopped }
func (DecodeFailure) Kind() MessageType { return "decode_failure" }
func (u Unknown) Kind() MessageType     { return u.Type }

func (RoomJoined) isEvent()    {}
func (JobStatus) isEvent()     {}
func (SniffOutput) isEvent()   {}
func (SniffStopped) isEvent()  {}
func (DecodeFailure) isEvent() {}
func (Unknown) isEvent()       {}
