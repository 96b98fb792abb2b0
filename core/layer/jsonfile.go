package layer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/FocuswithJustin/annotransfer/core/errors"
)

// jsonDocument is the on-disk JSON layer format:
//
//	{
//	  "id": "root",
//	  "base": "optional base text",
//	  "annotations": [
//	    {"start": 0, "end": 10, "text": "...", "data": {"root_idx_mapping": "1"}}
//	  ]
//	}
//
// When an annotation has no "text", it is cut from "base" by character
// (rune) offsets.
type jsonDocument struct {
	ID          string           `json:"id"`
	Base        string           `json:"base,omitempty"`
	Annotations []jsonAnnotation `json:"annotations"`
}

type jsonAnnotation struct {
	Start int                        `json:"start"`
	End   int                        `json:"end"`
	Text  *string                    `json:"text,omitempty"`
	Data  map[string]json.RawMessage `json:"data,omitempty"`
}

// JSONFile reads a JSON layer document from disk.
type JSONFile struct {
	Path string
}

// Records parses the file on every call.
func (f JSONFile) Records(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "layer file", ID: f.Path, Err: err}
		}
		return nil, errors.NewIO("read", f.Path, err)
	}
	return decodeJSON(f.Path, data)
}

func decodeJSON(path string, data []byte) ([]Record, error) {
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		perr := errors.NewParse("JSON", path, err.Error())
		perr.Err = err
		return nil, perr
	}

	var base []rune
	if doc.Base != "" {
		base = []rune(doc.Base)
	}

	records := make([]Record, 0, len(doc.Annotations))
	for i, ann := range doc.Annotations {
		rec := Record{Start: ann.Start, End: ann.End}
		switch {
		case ann.Text != nil:
			rec.Text = *ann.Text
		case base != nil:
			if ann.Start < 0 || ann.End > len(base) || ann.Start > ann.End {
				spanErr := errors.NewInvalidSpan(i, ann.Start, ann.End, "outside base text of "+strconv.Itoa(len(base))+" characters")
				spanErr.Layer = path
				return nil, spanErr
			}
			rec.Text = string(base[ann.Start:ann.End])
		}
		if len(ann.Data) > 0 {
			rec.Metadata = make(map[string]string, len(ann.Data))
			for k, raw := range ann.Data {
				rec.Metadata[k] = metadataString(raw)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// metadataString renders a metadata value the way the store reports it:
// strings without quotes, anything else as its JSON text.
func metadataString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// WriteJSONFile writes records as a JSON layer document. The file is
// replaced atomically.
func WriteJSONFile(path, id string, records []Record) error {
	doc := jsonDocument{ID: id, Annotations: make([]jsonAnnotation, 0, len(records))}
	for _, rec := range records {
		text := rec.Text
		ann := jsonAnnotation{Start: rec.Start, End: rec.End, Text: &text}
		if len(rec.Metadata) > 0 {
			ann.Data = make(map[string]json.RawMessage, len(rec.Metadata))
			for k, v := range rec.Metadata {
				encoded, err := json.Marshal(v)
				if err != nil {
					return err
				}
				ann.Data[k] = encoded
			}
		}
		doc.Annotations = append(doc.Annotations, ann)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal layer")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".layer-*")
	if err != nil {
		return errors.NewIO("create temp file in", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIO("write", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("close", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("rename", path, err)
	}
	return nil
}
