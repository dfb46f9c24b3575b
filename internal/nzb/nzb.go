package nzb

import "encoding/xml"

type Model struct {
	XMLName xml.Name `xml:"nzb"`
	Head    []Meta   `xml:"head>meta"`
	Files   []File   `xml:"file"`
}

type Meta struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type File struct {
	Subject  string    `xml:"subject,attr"`
	Poster   string    `xml:"poster,attr"`
	Groups   []string  `xml:"groups>group"`
	Segments []Segment `xml:"segments>segment"`
}

type Segment struct {
	XMLName   xml.Name `xml:"segment"`
	Number    int      `xml:"number,attr"`
	Bytes     int64    `xml:"bytes,attr"`
	MessageID string   `xml:",chardata"`
}

// Meta returns the first head value of the given type, such as "title" or
// "password".
func (m *Model) Meta(kind string) string {
	for _, h := range m.Head {
		if h.Type == kind {
			return h.Value
		}
	}
	return ""
}
