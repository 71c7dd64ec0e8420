// Package wire implements the transport-agnostic line-delimited CSV
// framing and decoding described in spec §4.1: parse a frame into a
// typed domain.DataMessage, and the reverse encoding for tests and the
// reference data-generator.
package wire

import (
	"bytes"
	"strconv"
	"strings"
	"sync/atomic"

	"tradingengine/internal/domain"
	"tradingengine/internal/event"
)

// Decoder turns a stream of bytes into a sequence of DataMessages. It
// preserves a partial trailing fragment across Feed calls until the
// next '\n' arrives (§4.1: "A partial trailing fragment must be
// preserved across reads until the next '\n' arrives").
//
// Decoder is not safe for concurrent use by multiple goroutines; each
// connection handler owns its own Decoder.
type Decoder struct {
	pending []byte

	parseErrors uint64
}

// NewDecoder creates an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// ParseErrors returns the count of frames discarded as malformed (§4.1,
// §7 ParseError): JSON-form frames, frames with fewer than four
// comma-separated parts, and Insert/Update payloads that are not exactly
// ColumnCount fields. Observable without synchronization.
func (d *Decoder) ParseErrors() uint64 {
	return atomic.LoadUint64(&d.parseErrors)
}

// Feed appends newly read bytes, splits out every complete
// newline-terminated frame, decodes each into a DataMessage (acquired
// from the event pool), and returns the batch. Malformed frames are
// dropped and counted; Feed itself never errors (§4.1, §7).
func (d *Decoder) Feed(data []byte) []*domain.DataMessage {
	d.pending = append(d.pending, data...)

	var out []*domain.DataMessage
	for {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}
		line := d.pending[:idx]
		d.pending = d.pending[idx+1:]

		line = trimCR(line)
		if len(line) == 0 {
			continue
		}

		msg := d.decodeLine(string(line))
		if msg != nil {
			out = append(out, msg)
		}
	}
	return out
}

func trimCR(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\r' {
		return b[:len(b)-1]
	}
	return b
}

// decodeLine parses one frame: "<Table>,<Op>,<SendTimestampMs>,<Payload>".
// A frame beginning with '{' is a reserved JSON representation this
// decoder does not accept (§4.1: implementations MAY accept it but MUST
// accept CSV — this one only implements the mandatory CSV form).
func (d *Decoder) decodeLine(line string) *domain.DataMessage {
	if len(line) > 0 && line[0] == '{' {
		atomic.AddUint64(&d.parseErrors, 1)
		return nil
	}

	parts := splitN(line, ',', 4)
	if len(parts) < 4 {
		atomic.AddUint64(&d.parseErrors, 1)
		return nil
	}

	table := domain.ParseTableName(parts[0])
	op := domain.ParseOp(parts[1])
	sendTs, _ := strconv.ParseInt(parts[2], 10, 64)
	payload := parts[3]

	msg := event.Acquire()
	msg.Table = table
	msg.Op = op
	msg.SendTsMs = domain.TimestampMs(sendTs)

	if op == domain.OpDelete {
		msg.Key = payload
		msg.Parsed = false
		return msg
	}

	fields := strings.Split(payload, ",")
	if len(fields) != domain.ColumnCount {
		atomic.AddUint64(&d.parseErrors, 1)
		event.Release(msg)
		return nil
	}
	copy(msg.Fields[:], fields)
	msg.Key = fields[domain.KeyColumn]
	msg.Parsed = true
	return msg
}

// splitN splits s on sep into at most n parts, leaving the remainder of
// the string unsplit in the last part — equivalent to strings.SplitN but
// documented here to make the "at most 4 parts, payload passed unsplit"
// framing rule in §4.1 explicit at the call site.
func splitN(s string, sep byte, n int) []string {
	out := make([]string, 0, n)
	for len(out) < n-1 {
		idx := strings.IndexByte(s, sep)
		if idx < 0 {
			break
		}
		out = append(out, s[:idx])
		s = s[idx+1:]
	}
	out = append(out, s)
	return out
}

// FormatFrame renders a DataMessage back into wire CSV form. Used by
// round-trip tests and the reference data-generator (cmd/simulator).
func FormatFrame(m *domain.DataMessage) string {
	var sb strings.Builder
	sb.WriteString(m.Table.String())
	sb.WriteByte(',')
	sb.WriteString(m.Op.String())
	sb.WriteByte(',')
	sb.WriteString(strconv.FormatInt(int64(m.SendTsMs), 10))
	sb.WriteByte(',')
	if m.Op == domain.OpDelete {
		sb.WriteString(m.Key)
	} else {
		sb.WriteString(strings.Join(m.Fields[:], ","))
	}
	return sb.String()
}
