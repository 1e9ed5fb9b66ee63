package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	typeFileRequest = "file-request"
	typeFileAccept  = "file-accept"
	typeFileReject  = "file-reject"
)

var errBadMessage = errors.New("bad control message")

type controlMessage struct {
	Type     string  `json:"type"`
	Name     string  `json:"name,omitempty"`
	Size     *uint64 `json:"size,omitempty"`
	Checksum string  `json:"checksum,omitempty"`
}

// Request is an announced inbound file waiting for a decision.
type Request struct {
	Name     string `json:"name"`
	Size     uint64 `json:"size"`
	Checksum string `json:"checksum,omitempty"`
}

func encodeRequest(r Request) (string, error) {
	size := r.Size
	b, err := json.Marshal(controlMessage{Type: typeFileRequest, Name: r.Name, Size: &size, Checksum: r.Checksum})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeControl(kind string) string {
	return `{"type":"` + kind + `"}`
}

func decodeControl(data string) (controlMessage, error) {
	var m controlMessage
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return m, fmt.Errorf("%w: %v", errBadMessage, err)
	}
	switch m.Type {
	case typeFileRequest:
		if m.Name == "" || m.Size == nil {
			return m, fmt.Errorf("%w: file-request needs name and size", errBadMessage)
		}
	case typeFileAccept, typeFileReject:
	default:
		return m, fmt.Errorf("%w: unknown type %q", errBadMessage, m.Type)
	}
	return m, nil
}

func (m controlMessage) request() Request {
	r := Request{Name: m.Name, Checksum: m.Checksum}
	if m.Size != nil {
		r.Size = *m.Size
	}
	return r
}
