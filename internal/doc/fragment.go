package doc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Separator terminates every entry in a fragment file.
const Separator = ",\n"

// EncodeEntry renders one `"<key>": <json-value>` entry without separator.
func EncodeEntry(key string, value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(key); err != nil {
		return nil, fmt.Errorf("encode key %q: %w", key, err)
	}
	buf.Truncate(buf.Len() - 1)
	buf.WriteString(": ")
	if err := enc.Encode(value); err != nil {
		return nil, fmt.Errorf("encode entry %q: %w", key, err)
	}
	buf.Truncate(buf.Len() - 1)
	return buf.Bytes(), nil
}

// EncodeBatch joins entries with Separator. The result has no trailing
// separator so that batches can be appended one after another with a
// separator written between them.
func EncodeBatch(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	for i, e := range entries {
		if i > 0 {
			buf.WriteString(Separator)
		}
		line, err := EncodeEntry(e.Key, e.Data)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
	}
	return buf.Bytes(), nil
}

// EncodeFragment renders a full fragment file: every entry followed by
// Separator, no enclosing braces. An empty input renders as empty text.
func EncodeFragment(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return []byte{}, nil
	}
	body, err := EncodeBatch(entries)
	if err != nil {
		return nil, err
	}
	return append(body, Separator...), nil
}

// DecodeFragment parses fragment text by wrapping it in synthetic braces.
//
// A trailing separator is optional. Entries are returned in file order; when
// a key repeats, the later value replaces the earlier one in place, which
// matches how an object literal with duplicate keys evaluates. Every value
// must be a JSON object.
func DecodeFragment(text []byte) ([]Entry, error) {
	body := bytes.TrimRight(text, " \t\r\n")
	body = bytes.TrimSuffix(body, []byte(","))
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	wrapped := make([]byte, 0, len(body)+2)
	wrapped = append(wrapped, '{')
	wrapped = append(wrapped, body...)
	wrapped = append(wrapped, '}')

	dec := json.NewDecoder(bytes.NewReader(wrapped))
	dec.UseNumber()

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode fragment: %w", err)
	}

	var entries []Entry
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode fragment: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("decode fragment: unexpected token %v", tok)
		}

		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode fragment: entry %q: %w", key, err)
		}
		data, ok := fromJSON(raw).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode fragment: entry %q is %T, not an object", key, raw)
		}

		if i, seen := index[key]; seen {
			entries[i].Data = data
			continue
		}
		index[key] = len(entries)
		entries = append(entries, Entry{Key: key, Data: data})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode fragment: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode fragment: trailing content after entries")
	}
	return entries, nil
}
