package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestEntriesBytes_list(t *testing.T) {
	tests := []struct {
		name    string
		content string
		ext     string
		want    []Entry
	}{
		{
			name:    "plain lines",
			content: "apple\nbanana\n\n# comment\nad hoc\n",
			ext:     ".txt",
			want:    []Entry{{Text: "apple"}, {Text: "banana"}, {Text: "ad hoc"}},
		},
		{
			name:    "tab frequency",
			content: "apple\t42\r\nbanana\tx\n",
			ext:     ".tsv",
			want:    []Entry{{Text: "apple", Frequency: 42}, {Text: "banana"}},
		},
		{
			name:    "markdown bullets",
			content: "# Fruit\n- apple\n* pear\n",
			ext:     ".md",
			want:    []Entry{{Text: "apple"}, {Text: "pear"}},
		},
		{
			name:    "csv with header and quotes",
			content: "word,frequency\n\"ad hoc\",7\nbanana,3\n",
			ext:     ".csv",
			want:    []Entry{{Text: "ad hoc", Frequency: 7}, {Text: "banana", Frequency: 3}},
		},
		{
			name:    "invalid utf8",
			content: "caf\x80e\n",
			ext:     ".txt",
			want:    []Entry{{Text: "caf\uFFFDe"}},
		},
		{
			name:    "unknown extension as list",
			content: "raw\n",
			ext:     ".xyz",
			want:    []Entry{{Text: "raw"}},
		},
	}
	e := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.EntriesBytes([]byte(tt.content), tt.ext)
			if err != nil {
				t.Fatalf("EntriesBytes: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEntriesBytes_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Word")
	f.SetCellValue("Sheet1", "B1", "Count")
	f.SetCellValue("Sheet1", "A2", "apple")
	f.SetCellValue("Sheet1", "B2", 12)
	f.SetCellValue("Sheet1", "A3", "pear")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := NewExtractor().EntriesBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("EntriesBytes: %v", err)
	}
	want := []Entry{{Text: "apple", Frequency: 12}, {Text: "pear"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestEntries_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.TXT")
	if err := os.WriteFile(path, []byte("one\ntwo\n"), 0600); err != nil {
		t.Fatal(err)
	}
	got, err := NewExtractor().Entries(path)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %+v", got)
	}

	if _, err := NewExtractor().Entries("/nonexistent/path/file.txt"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func minimalDocx(text string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p w:rsidR="00A1"><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func docxWithContentTypes(text, docPath string, reversed bool) []byte {
	override := `<Override PartName="/` + docPath + `" ContentType="` + docxMainType + `"/>`
	if reversed {
		override = `<Override ContentType="` + docxMainType + `" PartName="/` + docPath + `"/>`
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	ct, _ := w.Create("[Content_Types].xml")
	_, _ = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` + override + `</Types>`))
	fw, _ := w.Create(docPath)
	_, _ = fw.Write([]byte(`<w:document><w:body><w:p><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}

func TestText_docx(t *testing.T) {
	e := NewExtractor()
	tests := []struct {
		name    string
		content []byte
		want    string
	}{
		{"default part", minimalDocx("Searchable docx content"), "Searchable docx content"},
		{"content types part", docxWithContentTypes("From document2", "word/document2.xml", false), "From document2"},
		{"reversed attributes", docxWithContentTypes("Reversed order", "word/document3.xml", true), "Reversed order"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Text(tt.content, ".docx")
			if err != nil {
				t.Fatalf("Text: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := e.Text([]byte("not a zip"), ".docx"); err == nil {
		t.Error("expected error for non-zip docx")
	}
}

func TestEntriesBytes_docxCountsWords(t *testing.T) {
	got, err := NewExtractor().EntriesBytes(minimalDocx("The cat saw the other Cat, 42 times."), ".docx")
	if err != nil {
		t.Fatalf("EntriesBytes: %v", err)
	}
	want := []Entry{
		{Text: "the", Frequency: 2},
		{Text: "cat", Frequency: 2},
		{Text: "saw", Frequency: 1},
		{Text: "other", Frequency: 1},
		{Text: "times", Frequency: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSupported(t *testing.T) {
	for _, ext := range []string{".txt", ".CSV", ".xlsx", ".pdf", ".docx"} {
		if !Supported(ext) {
			t.Errorf("%s should be supported", ext)
		}
	}
	if Supported(".pptx") {
		t.Error(".pptx should not be supported")
	}
}
