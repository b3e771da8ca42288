package fastcgi

import (
	"encoding/binary"
	"io"
)

// WriteStdout writes p to w as one or more STDOUT records for
// requestID, splitting into maxContentLength-sized chunks (spec §4.B.1,
// §3 "response writer ... 65535-byte max STDOUT record chunking").
// Padding is always zero: FastCGI requires receivers to skip whatever
// padding a header declares, but imposes no minimum on writers.
func WriteStdout(w io.Writer, requestID uint16, p []byte) error {
	return writeChunked(w, typeStdout, requestID, p)
}

// WriteStderr is WriteStdout for the STDERR stream.
func WriteStderr(w io.Writer, requestID uint16, p []byte) error {
	return writeChunked(w, typeStderr, requestID, p)
}

func writeChunked(w io.Writer, recType uint8, requestID uint16, p []byte) error {
	if len(p) == 0 {
		return writeRecord(w, recType, requestID, nil)
	}
	for len(p) > 0 {
		n := len(p)
		if n > maxContentLength {
			n = maxContentLength
		}
		if err := writeRecord(w, recType, requestID, p[:n]); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func writeRecord(w io.Writer, recType uint8, requestID uint16, content []byte) error {
	var hdr [8]byte
	hdr[0] = version1
	hdr[1] = recType
	binary.BigEndian.PutUint16(hdr[2:4], requestID)
	binary.BigEndian.PutUint16(hdr[4:6], uint16(len(content)))
	hdr[6] = 0 // padding length
	hdr[7] = 0 // reserved
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(content) == 0 {
		return nil
	}
	_, err := w.Write(content)
	return err
}

// WriteEndRequest closes out requestID with the given protocol status
// and application exit code (spec §4.B.1).
func WriteEndRequest(w io.Writer, requestID uint16, appStatus uint32, protocolStatus uint8) error {
	var body [8]byte
	binary.BigEndian.PutUint32(body[0:4], appStatus)
	body[4] = protocolStatus
	return writeRecord(w, typeEndRequest, requestID, body[:])
}
