package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// Event names a websocket payload variant.
type Event string

// Inbound events.
const (
	EventStartListening Event = "start_listening"
	EventStopListening  Event = "stop_listening"
	EventAudioData      Event = "audio_data"
	EventTextInput      Event = "text_input"
	EventChangeModel    Event = "change_model"
	EventChangeTTSLang  Event = "change_tts_lang"
	EventCancelResponse Event = "cancel_response"
	EventCancelSpeech   Event = "cancel_speech"
)

// Outbound events.
const (
	EventStatus           Event = "status"
	EventTranscript       Event = "transcript"
	EventResponse         Event = "response"
	EventResponseChunk    Event = "response_chunk"
	EventResponseComplete Event = "response_complete"
	EventError            Event = "error"
	EventInterrupt        Event = "interrupt"
	EventListeningStarted Event = "listening_started"
	EventListeningStopped Event = "listening_stopped"
)

var ErrUnsupportedEvent = errors.New("unsupported event")

// Envelope wraps every message in both directions.
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type StartListening struct{}

type StopListening struct{}

type AudioData struct {
	// Audio is a data URL or bare base64 blob.
	Audio string `json:"audio"`
}

type TextInput struct {
	Text string `json:"text"`
}

type ChangeModel struct {
	Model string `json:"model"`
}

type ChangeTTSLang struct {
	Lang string `json:"lang"`
}

type CancelResponse struct{}

type CancelSpeech struct{}

// Outbound is implemented by every server-to-client message.
type Outbound interface {
	EventName() Event
}

type Status struct {
	Message string `json:"message"`
}

type Transcript struct {
	Text string `json:"text"`
}

// Response is a one-shot reply: errors and the goodbye message.
type Response struct {
	Text            string  `json:"text"`
	Audio           *string `json:"audio"`
	LastUserMessage string  `json:"lastUserMessage,omitempty"`
	IsComplete      bool    `json:"isComplete"`
}

type ResponseChunk struct {
	Text       string  `json:"text"`
	Audio      *string `json:"audio"`
	IsComplete bool    `json:"isComplete"`
}

type ResponseComplete struct {
	LastUserMessage string `json:"lastUserMessage"`
	IsComplete      bool   `json:"isComplete"`
	Cancelled       bool   `json:"cancelled,omitempty"`
}

type Error struct {
	Message string `json:"message"`
}

type Interrupt struct {
	Message string `json:"message"`
}

type ListeningStarted struct{}

type ListeningStopped struct{}

func (Status) EventName() Event           { return EventStatus }
func (Transcript) EventName() Event       { return EventTranscript }
func (Response) EventName() Event         { return EventResponse }
func (ResponseChunk) EventName() Event    { return EventResponseChunk }
func (ResponseComplete) EventName() Event { return EventResponseComplete }
func (Error) EventName() Event            { return EventError }
func (Interrupt) EventName() Event        { return EventInterrupt }
func (ListeningStarted) EventName() Event { return EventListeningStarted }
func (ListeningStopped) EventName() Event { return EventListeningStopped }

// EncodeAudio base64-encodes audio for the wire; nil audio stays null.
func EncodeAudio(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	s := base64.StdEncoding.EncodeToString(b)
	return &s
}

// Marshal wraps msg in an envelope.
func Marshal(msg Outbound) ([]byte, error) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msg.EventName(), err)
	}
	return sonic.Marshal(Envelope{Event: msg.EventName(), Data: data})
}

// ParseClientMessage decodes an inbound envelope into its typed payload.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	data := env.Data
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}

	switch env.Event {
	case EventStartListening:
		return StartListening{}, nil
	case EventStopListening:
		return StopListening{}, nil
	case EventCancelResponse:
		return CancelResponse{}, nil
	case EventCancelSpeech:
		return CancelSpeech{}, nil
	case EventAudioData:
		var msg AudioData
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Audio) == "" {
			return nil, errors.New("invalid audio_data")
		}
		return msg, nil
	case EventTextInput:
		var msg TextInput
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid text_input")
		}
		return msg, nil
	case EventChangeModel:
		var msg ChangeModel
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		msg.Model = strings.TrimSpace(msg.Model)
		if msg.Model == "" {
			return nil, errors.New("invalid change_model")
		}
		return msg, nil
	case EventChangeTTSLang:
		var msg ChangeTTSLang
		if err := sonic.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		msg.Lang = strings.ToLower(strings.TrimSpace(msg.Lang))
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEvent, env.Event)
	}
}
