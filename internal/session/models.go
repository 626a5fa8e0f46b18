package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is the per-directory session state. JSON keys are shared with
// earlier releases of the tool, so renaming them breaks existing files.
type Record struct {
	CurrentImage string  `json:"current_image"`
	OutputDir    string  `json:"output_dir"`
	History      []Entry `json:"history"`
}

type Entry struct {
	ID        string    `json:"id,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	Prompt    string    `json:"prompt"`
	Model     string    `json:"model"`
	Inputs    []string  `json:"inputs,omitempty"`
	Output    string    `json:"output"`
	Timestamp Timestamp `json:"timestamp"`
	Metadata  Metadata  `json:"metadata,omitzero"`
}

// Timestamp also accepts the zone-less ISO form written by older versions.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		// null or a non-string: keep the zero time
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return nil
}

// Metadata records the family-specific parameters used for an entry.
type Metadata struct {
	Size        string  `json:"size,omitempty"`
	Quality     string  `json:"quality,omitempty"`
	AspectRatio string  `json:"aspect_ratio,omitempty"`
	ImageSize   string  `json:"image_size,omitempty"`
	Transparent bool    `json:"transparent,omitempty"`
	Cost        float64 `json:"cost,omitempty"`
	Provider    string  `json:"provider,omitempty"`
}

func NewRecord() *Record {
	return &Record{History: []Entry{}}
}

func (r *Record) IsEmpty() bool {
	return r.CurrentImage == "" && r.OutputDir == "" && len(r.History) == 0
}

// RecordGeneration appends a history entry and makes output the current image.
func (r *Record) RecordGeneration(mode, prompt, model string, inputs []string, output string, meta Metadata) Entry {
	e := Entry{
		ID:        uuid.New().String(),
		Mode:      mode,
		Prompt:    prompt,
		Model:     model,
		Inputs:    inputs,
		Output:    output,
		Timestamp: Timestamp{time.Now().UTC().Truncate(time.Second)},
		Metadata:  meta,
	}
	r.History = append(r.History, e)
	r.CurrentImage = output
	return e
}

func (r *Record) SetOutputDir(dir string) {
	r.OutputDir = dir
}

// Last returns the most recent entry, or nil for an empty history.
func (r *Record) Last() *Entry {
	if len(r.History) == 0 {
		return nil
	}
	return &r.History[len(r.History)-1]
}

// Recent returns up to n entries, newest last.
func (r *Record) Recent(n int) []Entry {
	if n <= 0 || n >= len(r.History) {
		return r.History
	}
	return r.History[len(r.History)-n:]
}
