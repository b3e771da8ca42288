package data

// Header is a single ordered (name, value) response header pair. A plain
// slice of pairs is used instead of map[string]string because spec §3
// requires ordered, possibly-repeated headers.
type Header struct {
	Name  string
	Value string
}

// Response is the record the Action Engine and Response Writer exchange;
// it never touches the wire directly, each gateway/* package renders it
// into protocol framing (spec §3).
type Response struct {
	Redirect    *Redirect
	ContentType string
	HasCode     bool
	Code        uint16

	Headers []Header
	CSS     []string
	JS      []string
	Meta    []Header
}

// NewResponse returns an empty Response.
func NewResponse() Response {
	return Response{}
}

// SetRedirect sets the redirect target. A non-permanent redirect is used
// for access-denied/not-found routing per spec §4.G/§7.
func (r *Response) SetRedirect(url string, permanent bool) {
	r.Redirect = &Redirect{URL: url, Permanent: permanent}
}

func (r *Response) AddHeader(name, value string) {
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
}

func (r *Response) AddMeta(name, value string) {
	r.Meta = append(r.Meta, Header{Name: name, Value: value})
}
