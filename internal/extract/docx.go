package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	docxDefaultPart  = "word/document.xml"
	docxContentTypes = "[Content_Types].xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	// Override elements list PartName and ContentType in either order.
	mainPartRes = []*regexp.Regexp{
		regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainType) + `"`),
		regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainType) + `"[^>]+PartName="([^"]+)"`),
	}
)

func readZipEntry(zr *zip.Reader, name string) ([]byte, bool, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, true, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		return data, true, err
	}
	return nil, false, nil
}

// docxMainPart returns the main document part named in [Content_Types].xml, or the
// conventional word/document.xml.
func docxMainPart(zr *zip.Reader) string {
	data, ok, err := readZipEntry(zr, docxContentTypes)
	if !ok || err != nil {
		return docxDefaultPart
	}
	for _, re := range mainPartRes {
		if m := re.FindSubmatch(data); len(m) > 1 {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return docxDefaultPart
}

// extractDOCX returns the text runs of the main document part joined by spaces.
// Runs are read from <w:t> nodes so paragraph attributes do not hide content.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	part := docxMainPart(zr)
	xml, ok, err := readZipEntry(zr, part)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: read %s: %w", part, err)
	}
	if !ok {
		return "", fmt.Errorf("extract DOCX: %s not found", part)
	}
	runs := wtTag.FindAllSubmatch(xml, -1)
	parts := make([]string, 0, len(runs))
	for _, r := range runs {
		if t := strings.TrimSpace(string(r[1])); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}
