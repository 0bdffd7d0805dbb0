// Package protocol defines the messages exchanged between the sandbox (the
// notebook and its engine) and the host (filesystem access and user prompts),
// and the connections that carry them.
package protocol

import "fmt"

// Kind is the type tag carried by every message
type Kind string

const (
	KindReady               Kind = "ready"
	KindRequestRefresh      Kind = "requestRefresh"
	KindLoadData            Kind = "loadData"
	KindRequestFileAccess   Kind = "requestFileAccess"
	KindFileAccessGranted   Kind = "fileAccessGranted"
	KindFileAccessDenied    Kind = "fileAccessDenied"
	KindExportData          Kind = "exportData"
	KindSaveFileStart       Kind = "saveFileStart"
	KindSaveFileChunk       Kind = "saveFileChunk"
	KindSaveFileEnd         Kind = "saveFileEnd"
	KindCopyToClipboard     Kind = "copyToClipboard"
	KindOpenURL             Kind = "openUrl"
	KindUpdateConfiguration Kind = "updateConfiguration"
	KindNotify              Kind = "notify"
)

// Message is the single envelope for every kind. Only the fields relevant to
// Type are populated.
type Message struct {
	Type Kind `json:"type"`

	// RequestID correlates requestFileAccess with its grant or denial.
	RequestID uint64 `json:"requestId,omitempty"`

	Name        string `json:"name,omitempty"`
	Extension   string `json:"extension,omitempty"`
	FilePath    string `json:"filePath,omitempty"`
	Data        []byte `json:"data,omitempty"`
	Format      string `json:"format,omitempty"`
	DefaultName string `json:"defaultName,omitempty"`
	Error       string `json:"error,omitempty"`
	Key         string `json:"key,omitempty"`
	Value       any    `json:"value,omitempty"`
	URL         string `json:"url,omitempty"`
	Level       string `json:"level,omitempty"`
	Text        string `json:"text,omitempty"`
}

func Ready() Message          { return Message{Type: KindReady} }
func RequestRefresh() Message { return Message{Type: KindRequestRefresh} }

// LoadData carries the source file pushed by the host after ready/requestRefresh.
func LoadData(name, extension string, data []byte) Message {
	return Message{Type: KindLoadData, Name: name, Extension: extension, Data: data}
}

func RequestFileAccess(id uint64, path string) Message {
	return Message{Type: KindRequestFileAccess, RequestID: id, FilePath: path}
}

func FileAccessGranted(id uint64, path string, data []byte) Message {
	return Message{Type: KindFileAccessGranted, RequestID: id, FilePath: path, Data: data}
}

func FileAccessDenied(id uint64, path, reason string) Message {
	return Message{Type: KindFileAccessDenied, RequestID: id, FilePath: path, Error: reason}
}

func ExportData(data []byte, format, defaultName string) Message {
	return Message{Type: KindExportData, Data: data, Format: format, DefaultName: defaultName}
}

func SaveFileStart(name string) Message {
	return Message{Type: KindSaveFileStart, Name: name}
}

func SaveFileChunk(name string, data []byte) Message {
	return Message{Type: KindSaveFileChunk, Name: name, Data: data}
}

func SaveFileEnd(name string) Message {
	return Message{Type: KindSaveFileEnd, Name: name}
}

func CopyToClipboard(value string) Message {
	return Message{Type: KindCopyToClipboard, Value: value}
}

func OpenURL(url string) Message {
	return Message{Type: KindOpenURL, URL: url}
}

func UpdateConfiguration(key string, value any) Message {
	return Message{Type: KindUpdateConfiguration, Key: key, Value: value}
}

// Notify is a user-visible host notification (export finished, write failed).
func Notify(level, text string) Message {
	return Message{Type: KindNotify, Level: level, Text: text}
}

// Validate checks that the fields required by the message kind are present.
func (m Message) Validate() error {
	switch m.Type {
	case KindReady, KindRequestRefresh:
		return nil
	case KindLoadData:
		if m.Name == "" {
			return fmt.Errorf("%s: missing name", m.Type)
		}
	case KindRequestFileAccess, KindFileAccessGranted, KindFileAccessDenied:
		if m.RequestID == 0 {
			return fmt.Errorf("%s: missing requestId", m.Type)
		}
		if m.FilePath == "" {
			return fmt.Errorf("%s: missing filePath", m.Type)
		}
	case KindExportData:
		if m.DefaultName == "" {
			return fmt.Errorf("%s: missing defaultName", m.Type)
		}
	case KindSaveFileStart, KindSaveFileChunk, KindSaveFileEnd:
		if m.Name == "" {
			return fmt.Errorf("%s: missing name", m.Type)
		}
	case KindCopyToClipboard:
		if m.Value == nil {
			return fmt.Errorf("%s: missing value", m.Type)
		}
	case KindOpenURL:
		if m.URL == "" {
			return fmt.Errorf("%s: missing url", m.Type)
		}
	case KindUpdateConfiguration:
		if m.Key == "" {
			return fmt.Errorf("%s: missing key", m.Type)
		}
	case KindNotify:
		if m.Text == "" {
			return fmt.Errorf("%s: missing text", m.Type)
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}
