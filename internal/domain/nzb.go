package domain

import "fmt"

// Input is one named output artifact of a job with its ordered segments.
type Input struct {
	Name     string
	Segments []Segment
}

// Segment is one schedulable request. Lines, when set, are sent verbatim;
// otherwise the article is fetched with BODY.
type Segment struct {
	Number    int
	Bytes     int64
	MessageID string
	Lines     []string
}

// Requests returns the protocol lines needed to fetch the segment.
func (s Segment) Requests() []string {
	if len(s.Lines) > 0 {
		return s.Lines
	}
	return []string{fmt.Sprintf("BODY <%s>", trimMessageID(s.MessageID))}
}

func (in Input) TotalSize() int64 {
	var total int64
	for _, s := range in.Segments {
		total += s.Bytes
	}
	return total
}

func trimMessageID(id string) string {
	if len(id) >= 2 && id[0] == '<' && id[len(id)-1] == '>' {
		return id[1 : len(id)-1]
	}
	return id
}
