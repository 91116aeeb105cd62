// Package catalog implements the catalog-server frontend: update
// ingestion over UDP/TCP, record identity and expiry, and the query
// dispatch that drives deltadb. Grounded on the teacher's service
// entrypoint (main.go) and worker pool, generalized from flow-process
// HTTP handling to catalog record ingestion.
package catalog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zlib"

	"catalogd.dev/jx"
)

// maxDecompressed bounds an inflated update payload, per spec.md
// §4.8's "TCP for larger updates (≤1 MiB after decompression)".
const maxDecompressed = 1 << 20

// NormalizeUpdate implements spec.md §4.8 steps 1-4: optional zlib
// inflation, constant-JX-or-nvpair parsing, and address/heartbeat
// stamping. name canonicalization (step 5) and key derivation (step 6)
// are applied by the caller once the sender's transport is known.
func NormalizeUpdate(raw []byte, senderAddr string, now time.Time, maxServerSize int64) (*jx.Value, error) {
	text, err := maybeInflate(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog: decompression failed: %w", err)
	}

	obj, err := parseUpdateBody(text)
	if err != nil {
		return nil, err
	}

	obj.Set("address", jx.String(senderAddr))
	obj.Set("lastheardfrom", jx.Int(now.Unix()))

	if maxServerSize > 0 {
		clamp(obj, "total", maxServerSize)
		clamp(obj, "avail", maxServerSize)
	}

	return obj, nil
}

// maybeInflate returns raw as-is unless it begins with the 0x1A
// compression marker, in which case the remainder is zlib-inflated
// into a bounded buffer.
func maybeInflate(raw []byte) ([]byte, error) {
	if len(raw) == 0 || raw[0] != 0x1A {
		return raw, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw[1:]))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	data, err := io.ReadAll(io.LimitReader(zr, maxDecompressed))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// parseUpdateBody parses the (already decompressed) update text as a
// constant JX object if it looks like one, else as legacy nvpair text.
func parseUpdateBody(text []byte) (*jx.Value, error) {
	trimmed := bytes.TrimSpace(text)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		v, errs := jx.ParseStatic(trimmed, jx.ModeStrict)
		if len(errs) > 0 {
			return nil, fmt.Errorf("catalog: not a constant JX object: %s", errs[0].Message)
		}
		if v.Kind != jx.KindObject {
			return nil, fmt.Errorf("catalog: update body is not an object")
		}
		return v, nil
	}
	return parseNVPairs(trimmed)
}

// parseNVPairs implements the legacy newline-separated "key value"
// wire format, terminated by a blank line or EOF.
func parseNVPairs(text []byte) (*jx.Value, error) {
	obj := &jx.Value{Kind: jx.KindObject}
	sc := bufio.NewScanner(bytes.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			break
		}
		name, value, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		obj.Set(name, legacyLiteral(value))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return obj, nil
}

// legacyLiteral lifts a legacy nvpair string value to a typed JX
// value, mirroring deltadb's checkpoint legacy reader.
func legacyLiteral(s string) *jx.Value {
	switch s {
	case "true":
		return jx.Bool(true)
	case "false":
		return jx.Bool(false)
	case "null":
		return jx.Null()
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return jx.Int(i)
	}
	if d, err := strconv.ParseFloat(s, 64); err == nil {
		return jx.Double(d)
	}
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		if v, errs := jx.Parse([]byte(s), jx.ModePermissive); len(errs) == 0 {
			return v
		}
	}
	return jx.String(s)
}

func clamp(obj *jx.Value, field string, max int64) {
	v, ok := obj.Get(field)
	if !ok || v.Kind != jx.KindInt {
		return
	}
	if v.Int > max {
		obj.Set(field, jx.Int(max))
	}
}

// CanonicalizeName resolves addr's name field per spec.md §4.8 step 5:
// reverse DNS wins when it succeeds, else the producer-supplied name,
// else the address itself.
func CanonicalizeName(addr, producerName string) string {
	names, err := net.LookupAddr(addr)
	if err == nil && len(names) > 0 {
		return strings.TrimSuffix(names[0], ".")
	}
	if producerName != "" {
		return producerName
	}
	return addr
}

// DeriveKey builds a record's table key from address:port:name[:uuid],
// truncated to maxLen bytes.
func DeriveKey(addr string, port int, name, uuidSuffix string, maxLen int) string {
	key := fmt.Sprintf("%s:%d:%s", addr, port, name)
	if uuidSuffix != "" {
		key = key + ":" + uuidSuffix
	}
	if maxLen > 0 && len(key) > maxLen {
		key = key[:maxLen]
	}
	return key
}
