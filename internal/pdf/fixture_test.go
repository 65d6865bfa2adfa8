package pdf

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// pdfBuilder writes small uncompressed PDFs with a classic xref table
type pdfBuilder struct {
	buf     bytes.Buffer
	offsets []int
	pages   int
	kids    []int
	font    int
}

func newPDFBuilder() *pdfBuilder {
	b := &pdfBuilder{}
	b.buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	b.pages = b.reserve()
	b.font = b.object("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	return b
}

func (b *pdfBuilder) reserve() int {
	b.offsets = append(b.offsets, -1)
	return len(b.offsets)
}

func (b *pdfBuilder) define(num int, body string) {
	b.offsets[num-1] = b.buf.Len()
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

func (b *pdfBuilder) object(body string) int {
	num := b.reserve()
	b.define(num, body)
	return num
}

// stream adds a stream object; entries is the dictionary body without Length
func (b *pdfBuilder) stream(entries string, data []byte) int {
	num := b.reserve()
	b.offsets[num-1] = b.buf.Len()
	fmt.Fprintf(&b.buf, "%d 0 obj\n<< %s /Length %d >>\nstream\n", num, entries, len(data))
	b.buf.Write(data)
	b.buf.WriteString("\nendstream\nendobj\n")
	return num
}

// page adds a page showing lines of text and drawing the named images
func (b *pdfBuilder) page(lines []string, images map[string]int) {
	names := make([]string, 0, len(images))
	for name := range images {
		names = append(names, name)
	}
	sort.Strings(names)

	var content strings.Builder
	content.WriteString("BT /F1 12 Tf 72 720 Td 14 TL\n")
	for _, line := range lines {
		fmt.Fprintf(&content, "(%s) Tj T*\n", line)
	}
	content.WriteString("ET\n")

	var xobjects strings.Builder
	for i, name := range names {
		fmt.Fprintf(&content, "q 100 0 0 100 %d 100 cm /%s Do Q\n", 72+i*110, name)
		fmt.Fprintf(&xobjects, "/%s %d 0 R ", name, images[name])
	}

	contents := b.stream("", []byte(content.String()))
	b.kids = append(b.kids, b.object(fmt.Sprintf(
		"<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> /XObject << %s>> >> /Contents %d 0 R >>",
		b.pages, b.font, xobjects.String(), contents)))
}

func (b *pdfBuilder) bytes() []byte {
	kids := make([]string, len(b.kids))
	for i, k := range b.kids {
		kids[i] = fmt.Sprintf("%d 0 R", k)
	}
	b.define(b.pages, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(b.kids)))
	catalog := b.object(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", b.pages))

	xref := b.buf.Len()
	fmt.Fprintf(&b.buf, "xref\n0 %d\n0000000000 65535 f \n", len(b.offsets)+1)
	for _, off := range b.offsets {
		fmt.Fprintf(&b.buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b.buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.offsets)+1, catalog, xref)
	return b.buf.Bytes()
}
