package data

import "net"

// File describes one uploaded multipart file part (spec §3). Size is the
// decoded byte count; Tmp is the path the bytes were spilled to by the
// Input Decoder and must be removed at request end regardless of outcome.
type File struct {
	Field    string
	Filename string
	Size     int64
	Tmp      string
}

// RawKind selects the Raw body variant.
type RawKind uint8

const (
	RawNone RawKind = iota
	RawJSON
	RawString
	RawBytes
)

// Raw holds the undecoded request body when it wasn't recognized as
// urlencoded or multipart form data (spec §3, §4.C).
type Raw struct {
	Kind  RawKind
	JSON  any
	Str   string
	Bytes []byte
}

// Input bundles the four name→value maps a request carries. Keys are
// unique per map; later occurrences of the same key on the wire overwrite
// earlier ones, matching CGI PARAMS semantics.
type Input struct {
	Get    map[string]string
	Post   map[string]string
	Cookie map[string]string
	Params map[string]string
	File   []File
}

// NewInput returns an Input with all four maps allocated and ready for
// insertion.
func NewInput() Input {
	return Input{
		Get:    make(map[string]string),
		Post:   make(map[string]string),
		Cookie: make(map[string]string),
		Params: make(map[string]string),
	}
}

// Request is the uniform record every gateway parser produces, regardless
// of wire protocol (spec §3).
type Request struct {
	Method      Method
	MethodOther string
	Version     Version
	Ajax        bool

	Host    string
	Scheme  string
	Agent   string
	Referer string
	Site    string
	IP      net.IP

	URL  string
	Root string

	ContentType string

	Input Input
	Raw   Raw
}

// NewRequest returns a zero Request with Input maps allocated.
func NewRequest() Request {
	return Request{Input: NewInput()}
}
