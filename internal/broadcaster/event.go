package broadcaster

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/goevery/callwatch/internal/ierr"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Kind string

const (
	KindDashboardUpdate Kind = "dashboard_update"
	KindCallUpdate      Kind = "call_update"
	KindAgentUpdate     Kind = "agent_update"
	KindNotification    Kind = "notification"
)

var kinds = []Kind{KindDashboardUpdate, KindCallUpdate, KindAgentUpdate, KindNotification}

func ParseKind(value string) (Kind, error) {
	for _, kind := range kinds {
		if string(kind) == value {
			return kind, nil
		}
	}

	return "", ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("unknown event kind: "+value))
}

// Event is an application update fanned out to clients. Payload is opaque to
// the dispatcher and is serialized as-is.
type Event struct {
	Id            string
	Kind          Kind
	SubjectUserId string
	Payload       any
	Timestamp     time.Time
}

func NewEvent(kind Kind, payload any) Event {
	return Event{
		Id:        gonanoid.Must(),
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

func (e Event) WithSubject(userId string) Event {
	e.SubjectUserId = userId
	return e
}

// Message always carries data; a nil payload is sent as null.
func (e Event) Message() Message {
	var data any = e.Payload
	if data == nil {
		data = json.RawMessage("null")
	}

	return Message{
		Type:          string(e.Kind),
		Data:          data,
		SubjectUserId: e.SubjectUserId,
		Timestamp:     epochMillis(e.Timestamp),
	}
}
