package deltadb

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"catalogd.dev/deltadb/ckptcache"
	"catalogd.dev/jx"
)

// loadCheckpoint reads a day's checkpoint through cache when one is
// configured: a cache hit skips re-parsing the .ckpt file entirely; a
// miss falls back to readCheckpoint and populates the cache for next
// time. A nil cache always reads straight from disk.
func loadCheckpoint(root string, year, yday int, cache *ckptcache.Cache) (map[string]*jx.Value, error) {
	if cache == nil {
		return readCheckpoint(root, year, yday)
	}
	cached, ok, err := cache.Get(year, yday)
	if err != nil {
		return nil, err
	}
	if ok {
		out := make(map[string]*jx.Value, len(cached))
		for k, text := range cached {
			v, errs := jx.ParseStatic([]byte(text), jx.ModePermissive)
			if len(errs) > 0 {
				return nil, fmt.Errorf("ckptcache: corrupt cached record %q: %s", k, errs[0].Message)
			}
			out[k] = v
		}
		return out, nil
	}
	records, err := readCheckpoint(root, year, yday)
	if err != nil {
		return nil, err
	}
	printed := make(map[string]string, len(records))
	for k, v := range records {
		printed[k] = jx.Print(v)
	}
	if err := cache.Put(year, yday, printed); err != nil {
		return nil, err
	}
	return records, nil
}

// writeCheckpoint serializes records as a single JX object, one field
// per record, to <root>/<year>/<yday>.ckpt. Not written atomically (no
// temp-file rename), matching the recovery tolerance for truncated or
// corrupt tails.
func writeCheckpoint(root string, year, yday int, records map[string]*jx.Value) error {
	f, err := os.Create(ckptPath(root, year, yday))
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	w.WriteByte('{')
	first := true
	for key, rec := range records {
		if !first {
			w.WriteByte(',')
		}
		first = false
		fmt.Fprintf(w, "%q:%s", key, jx.Print(rec))
	}
	w.WriteByte('}')
	return w.Flush()
}

// readCheckpoint parses <root>/<year>/<yday>.ckpt. It tries the JX
// object format first; on failure it falls back to the legacy nvpair
// format (blank-line-separated "key value" records carrying their own
// "key" field).
func readCheckpoint(root string, year, yday int) (map[string]*jx.Value, error) {
	data, err := os.ReadFile(ckptPath(root, year, yday))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*jx.Value{}, nil
		}
		return nil, err
	}
	out := make(map[string]*jx.Value)
	v, errs := jx.Parse(data, jx.ModePermissive)
	if len(errs) == 0 && v != nil && v.Kind == jx.KindObject {
		for _, key := range v.Keys() {
			rec, _ := v.Get(key)
			out[key] = rec.Copy()
		}
		return out, nil
	}
	return readLegacyCheckpoint(data)
}

// readLegacyCheckpoint parses the pre-JX nvpair checkpoint format:
// records separated by a blank line, each a sequence of "name value"
// lines, one of which is named "key".
func readLegacyCheckpoint(data []byte) (map[string]*jx.Value, error) {
	out := make(map[string]*jx.Value)
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	rec := &jx.Value{Kind: jx.KindObject}
	recKey := ""
	flush := func() {
		if recKey != "" {
			out[recKey] = rec
		}
		rec = &jx.Value{Kind: jx.KindObject}
		recKey = ""
	}
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		name, value, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		val := legacyValue(value)
		rec.Set(name, val)
		if name == "key" {
			recKey = value
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// legacyValue lifts a legacy nvpair string value to its typed JX
// equivalent: known literals and strict numerics are typed; values
// beginning with '[' or '{' are parsed as JX with a bare-string
// fallback on failure; everything else stays a string.
func legacyValue(s string) *jx.Value {
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
