package report

import (
	"encoding/json"
	"fmt"
)

// Segment is one element of a message body. The set of segment types is closed.
type Segment interface {
	SegmentType() string
}

type Text struct {
	Text string `json:"text"`
}

func (*Text) SegmentType() string { return "text" }

type Image struct {
	File     string `json:"file"`
	URL      string `json:"url,omitempty"`
	Summary  string `json:"summary,omitempty"`
	FileSize string `json:"file_size,omitempty"`
	SubType  int    `json:"sub_type,omitempty"`
}

func (*Image) SegmentType() string { return "image" }

// At mentions a user. QQ is a user id or "all".
type At struct {
	QQ   string `json:"qq"`
	Name string `json:"name,omitempty"`
}

func (*At) SegmentType() string { return "at" }

type Reply struct {
	ID string `json:"id"`
}

func (*Reply) SegmentType() string { return "reply" }

func newSegment(segmentType string) Segment {
	switch segmentType {
	case "text":
		return &Text{}
	case "image":
		return &Image{}
	case "at":
		return &At{}
	case "reply":
		return &Reply{}
	default:
		return nil
	}
}

// Segments marshals as the gateway's [{type, data}] array.
type Segments []Segment

type rawSegment struct {
	Type *string         `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (s Segments) MarshalJSON() ([]byte, error) {
	out := make([]map[string]interface{}, 0, len(s))
	for _, seg := range s {
		out = append(out, map[string]interface{}{
			"type": seg.SegmentType(),
			"data": seg,
		})
	}
	return json.Marshal(out)
}

func (s *Segments) UnmarshalJSON(data []byte) error {
	var raws []rawSegment
	if err := json.Unmarshal(data, &raws); err != nil {
		// A CQ-code string body is not supported.
		return fmt.Errorf("%w: message must be a segment array", ErrMessageInvalid)
	}

	segments := make(Segments, 0, len(raws))
	for i, raw := range raws {
		if raw.Type == nil {
			return fmt.Errorf("%w: segment %d has no type", ErrMessageInvalid, i)
		}
		seg := newSegment(*raw.Type)
		if seg == nil {
			return fmt.Errorf("%w: unknown segment type %q", ErrIgnored, *raw.Type)
		}
		if len(raw.Data) > 0 && string(raw.Data) != "null" {
			if err := json.Unmarshal(raw.Data, seg); err != nil {
				return fmt.Errorf("%w: segment %d: %v", ErrMessageInvalid, i, err)
			}
		}
		segments = append(segments, seg)
	}
	*s = segments
	return nil
}

// TextSegments wraps a plain string in a single text segment.
func TextSegments(text string) Segments {
	return Segments{&Text{Text: text}}
}
