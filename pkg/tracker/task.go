package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// Task is a claimed unit of work. The tracker returns the raw queue document;
// its shape depends on the project, so Task keeps the original JSON and reads
// fields lazily. Numbers keep their textual form until asked for, which is
// what lets ID tell an integer id from a string one.
type Task struct {
	raw []byte
}

// NewTask wraps a JSON object. It returns an error if data is not an object.
func NewTask(data []byte) (*Task, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("task is not valid JSON")
	}
	if !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("task is not a JSON object")
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return &Task{raw: raw}, nil
}

// Raw returns a copy of the task document.
func (t *Task) Raw() json.RawMessage {
	out := make([]byte, len(t.raw))
	copy(out, t.raw)
	return out
}

// MarshalJSON emits the task document unchanged.
func (t *Task) MarshalJSON() ([]byte, error) {
	return t.Raw(), nil
}

// Get reads a field using gjson path syntax.
func (t *Task) Get(path string) gjson.Result {
	return gjson.GetBytes(t.raw, path)
}

// Fields decodes the whole document. Numbers decode as json.Number.
func (t *Task) Fields() (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(t.raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return m, nil
}

// Status returns the task's status field, if present.
func (t *Task) Status() string {
	return t.Get("status").String()
}

// ID extracts the task's primary id from field docIDName, usually
// Project.Mongodb.DocIDName(). JSON integers become IntID, strings StrID.
func (t *Task) ID(docIDName string) (ID, error) {
	res := t.Get(gjson.Escape(docIDName))
	switch res.Type {
	case gjson.String:
		return StrID(res.String()), nil
	case gjson.Number:
		n, err := strconv.ParseInt(res.Raw, 10, 64)
		if err != nil {
			return ID{}, &ValidationError{Field: docIDName, Value: res.Raw, Reason: "number is not an integer", Err: ErrInvalidID}
		}
		return IntID(n), nil
	case gjson.Null:
		if !res.Exists() {
			return ID{}, &ValidationError{Field: docIDName, Reason: "missing from task", Err: ErrInvalidID}
		}
	}
	return ID{}, &ValidationError{Field: docIDName, Value: res.Raw, Reason: "must be a string or an integer", Err: ErrInvalidID}
}
