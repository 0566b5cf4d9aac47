package training

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Element writer: the tag/attribute text stream
// ---------------------------------------------------------------------------

// The persisted profile is a line-oriented, XML-like stream: one element
// per line, attributes in single quotes, wrapped in a root element. The
// format is append-oriented and never rewritten in place.

// elementWriter emits elements to a buffered stream.
type elementWriter struct {
	w   *bufio.Writer
	err error // first write error, sticky
}

func newElementWriter(w *bufio.Writer) *elementWriter {
	return &elementWriter{w: w}
}

// element accumulates one tag line.
type element struct {
	ew  *elementWriter
	buf strings.Builder
}

// begin starts an element with the given tag.
func (ew *elementWriter) begin(tag string) *element {
	e := &element{ew: ew}
	e.buf.WriteByte('<')
	e.buf.WriteString(tag)
	return e
}

// open writes an opening root tag (closed later with closeTag).
func (ew *elementWriter) open(tag string, attrs func(*element)) {
	e := ew.begin(tag)
	if attrs != nil {
		attrs(e)
	}
	e.buf.WriteString(">\n")
	ew.write(e.buf.String())
}

// closeTag writes the closing root tag.
func (ew *elementWriter) closeTag(tag string) {
	ew.write("</" + tag + ">\n")
}

func (ew *elementWriter) write(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = ew.w.WriteString(s)
}

func (ew *elementWriter) flush() error {
	if ew.err != nil {
		return ew.err
	}
	return ew.w.Flush()
}

// attr appends a string attribute, escaped.
func (e *element) attr(name, value string) *element {
	e.buf.WriteByte(' ')
	e.buf.WriteString(name)
	e.buf.WriteString("='")
	e.buf.WriteString(escapeAttr(value))
	e.buf.WriteByte('\'')
	return e
}

// attrInt appends an integer attribute.
func (e *element) attrInt(name string, value int) *element {
	return e.attr(name, strconv.Itoa(value))
}

// attrInt64 appends a 64-bit integer attribute.
func (e *element) attrInt64(name string, value int64) *element {
	return e.attr(name, strconv.FormatInt(value, 10))
}

// attrBool appends a boolean attribute as '1' or '0'.
func (e *element) attrBool(name string, value bool) *element {
	if value {
		return e.attr(name, "1")
	}
	return e.attr(name, "0")
}

// attrIDs appends a space-separated bare integer id list.
func (e *element) attrIDs(name string, ids []int) *element {
	var sb strings.Builder
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.Itoa(id))
	}
	return e.attr(name, sb.String())
}

// end terminates the element line and writes it out.
func (e *element) end() {
	e.buf.WriteString("/>\n")
	e.ew.write(e.buf.String())
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"'", "&apos;",
	"<", "&lt;",
	">", "&gt;",
	"\n", "&#10;",
)

func escapeAttr(s string) string {
	if !strings.ContainsAny(s, "&'<>\n") {
		return s
	}
	return attrEscaper.Replace(s)
}

var attrUnescaper = strings.NewReplacer(
	"&#10;", "\n",
	"&gt;", ">",
	"&lt;", "<",
	"&apos;", "'",
	"&amp;", "&",
)

func unescapeAttr(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return attrUnescaper.Replace(s)
}

// parsedElement is one line of the stream read back in.
type parsedElement struct {
	tag   string
	attrs map[string]string
}

func (p *parsedElement) str(name string) string { return p.attrs[name] }

func (p *parsedElement) intAttr(name string) (int, error) {
	v, ok := p.attrs[name]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", name)
	}
	return strconv.Atoi(v)
}

func (p *parsedElement) int64Attr(name string) (int64, error) {
	v, ok := p.attrs[name]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", name)
	}
	return strconv.ParseInt(v, 10, 64)
}

func (p *parsedElement) boolAttr(name string) bool { return p.attrs[name] == "1" }

func (p *parsedElement) idList(name string) ([]int, error) {
	v := p.attrs[name]
	if v == "" {
		return nil, nil
	}
	parts := strings.Fields(v)
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad id %q in %q", part, name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseElement parses one "<tag a='v' .../>" line. Opening and closing
// root tags parse with empty or absent attributes.
func parseElement(line string) (*parsedElement, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "<") {
		return nil, fmt.Errorf("not an element: %q", line)
	}
	closing := strings.HasPrefix(line, "</")
	body := strings.TrimPrefix(line, "</")
	body = strings.TrimPrefix(body, "<")
	body = strings.TrimSuffix(body, ">")
	body = strings.TrimSuffix(body, "/")
	body = strings.TrimSpace(body)

	sp := strings.IndexByte(body, ' ')
	tag := body
	rest := ""
	if sp >= 0 {
		tag, rest = body[:sp], body[sp+1:]
	}
	if tag == "" {
		return nil, fmt.Errorf("empty tag in %q", line)
	}
	if closing {
		tag = "/" + tag
	}

	pe := &parsedElement{tag: tag, attrs: make(map[string]string)}
	for rest != "" {
		rest = strings.TrimLeft(rest, " ")
		if rest == "" {
			break
		}
		eq := strings.IndexByte(rest, '=')
		if eq < 0 || eq+1 >= len(rest) || rest[eq+1] != '\'' {
			return nil, fmt.Errorf("malformed attribute in %q", line)
		}
		name := rest[:eq]
		rest = rest[eq+2:]
		q := strings.IndexByte(rest, '\'')
		if q < 0 {
			return nil, fmt.Errorf("unterminated attribute %q", name)
		}
		pe.attrs[name] = unescapeAttr(rest[:q])
		rest = rest[q+1:]
	}
	return pe, nil
}
