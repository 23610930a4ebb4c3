package recording

import "encoding/json"

// RecordedFile is one entry in the provider's file list.
type RecordedFile struct {
	FileName string `json:"fileName"`
	Duration int    `json:"duration"`
	FileSize int64  `json:"fileSize"`
}

// ParseFileList decodes the provider's fileList field, which arrives either
// as a structured array or as a JSON-encoded string containing one. This is
// a deserialization boundary: anything unparsable yields nil, never an
// error, so a lagging or malformed query can not abort a stop.
func ParseFileList(raw json.RawMessage) []RecordedFile {
	if len(raw) == 0 {
		return nil
	}

	var files []RecordedFile
	if err := json.Unmarshal(raw, &files); err == nil {
		return files
	}

	// JSON-in-JSON: the list serialized into a string value.
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(encoded), &files); err != nil {
		return nil
	}
	return files
}
