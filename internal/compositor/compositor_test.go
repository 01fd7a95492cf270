package compositor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Lllllllleong/searchablepdf/internal/config"
	"github.com/Lllllllleong/searchablepdf/internal/models"
)

var fixedClock = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 8), B: 120, A: 255})
		}
	}
	return img
}

func writePNG(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, testImage()); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeJPEG(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, testImage(), nil); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeBytes(t *testing.T, path string, data []byte) string {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func pageCount(t *testing.T, path string) int {
	t.Helper()
	n, err := PageCount(path)
	if err != nil {
		t.Fatalf("PageCount(%s) error = %v", path, err)
	}
	return n
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestBuildDocumentsMixedDirectories(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	jobs := []models.PdfDocumentJob{
		{DocumentName: "Folder A", Pages: []models.PdfPageSpec{
			{ImagePath: writePNG(t, filepath.Join(src, "Image 1.png")), Text: "Hello   world\nsecond line"},
			{ImagePath: writeJPEG(t, filepath.Join(src, "Image 2.JPG")), Text: "Grüße, café €5"},
			{ImagePath: writeBytes(t, filepath.Join(src, "Image 3.gif"), []byte("GIF89a")), Text: "ignored"},
		}},
		{DocumentName: "Folder B", Pages: []models.PdfPageSpec{
			{ImagePath: writeBytes(t, filepath.Join(src, "Image 4.gif"), []byte("GIF89a")), Text: "x"},
		}},
	}

	c := New(WithClock(fixedClock))
	res, err := c.BuildDocuments(context.Background(), out, jobs, config.A4LandscapeWidth, config.A4LandscapeHeight)
	if err != nil {
		t.Fatalf("BuildDocuments() error = %v", err)
	}
	if !res.Persisted() || res.Written() != 1 {
		t.Fatalf("Written() = %d, want 1", res.Written())
	}

	a := res.Documents[0]
	wantPages := []PageOutcome{PageAccepted, PageAccepted, PageSkippedUnsupportedType}
	if len(a.Pages) != len(wantPages) {
		t.Fatalf("Folder A pages = %v, want %v", a.Pages, wantPages)
	}
	for i := range wantPages {
		if a.Pages[i] != wantPages[i] {
			t.Fatalf("Folder A page %d = %v, want %v", i, a.Pages[i], wantPages[i])
		}
	}
	if a.PageCount != 2 || a.SkippedPages != 1 {
		t.Fatalf("Folder A PageCount=%d SkippedPages=%d", a.PageCount, a.SkippedPages)
	}
	if a.OutputPath != filepath.Join(out, "Folder A.pdf") {
		t.Fatalf("Folder A OutputPath = %q", a.OutputPath)
	}
	if n := pageCount(t, a.OutputPath); n != 2 {
		t.Fatalf("written page count = %d, want 2", n)
	}

	b := res.Documents[1]
	if b.Written() || !errors.Is(b.Err, models.ErrEmptyDocument) {
		t.Fatalf("Folder B = %+v, want discarded", b)
	}
	if names := listDir(t, out); len(names) != 1 || names[0] != "Folder A.pdf" {
		t.Fatalf("output dir = %v, want only Folder A.pdf", names)
	}
}

func TestBuildDocumentsNothingWritten(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	jobs := []models.PdfDocumentJob{{DocumentName: "Scans", Pages: []models.PdfPageSpec{
		{ImagePath: writeBytes(t, filepath.Join(src, "a.gif"), []byte("GIF89a"))},
		{ImagePath: writeBytes(t, filepath.Join(src, "b.tiff"), []byte("II*"))},
	}}}

	res, err := New().BuildDocuments(context.Background(), out, jobs, 100, 100)
	if err != nil {
		t.Fatalf("BuildDocuments() error = %v", err)
	}
	if res.Persisted() {
		t.Fatal("Persisted() = true, want false")
	}
	if names := listDir(t, out); len(names) != 0 {
		t.Fatalf("output dir = %v, want empty", names)
	}
}

func TestBuildDocumentsSkipsUnreadableImages(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	jobs := []models.PdfDocumentJob{{DocumentName: "Doc", Pages: []models.PdfPageSpec{
		{ImagePath: writeBytes(t, filepath.Join(src, "broken.png"), []byte("not a png")), Text: "a"},
		{ImagePath: filepath.Join(src, "missing.jpg"), Text: "b"},
		{ImagePath: writePNG(t, filepath.Join(src, "ok.png")), Text: "c"},
	}}}

	res, err := New().BuildDocuments(context.Background(), out, jobs, 200, 100)
	if err != nil {
		t.Fatalf("BuildDocuments() error = %v", err)
	}
	doc := res.Documents[0]
	if doc.Pages[0] != PageSkippedUnreadableImage || doc.Pages[1] != PageSkippedUnreadableImage || doc.Pages[2] != PageAccepted {
		t.Fatalf("pages = %v", doc.Pages)
	}
	if n := pageCount(t, doc.OutputPath); n != 1 {
		t.Fatalf("page count = %d, want 1", n)
	}
}

func TestBuildDocumentsInvalidArguments(t *testing.T) {
	src := t.TempDir()
	jobs := []models.PdfDocumentJob{{DocumentName: "Doc", Pages: []models.PdfPageSpec{
		{ImagePath: writePNG(t, filepath.Join(src, "a.png"))},
	}}}
	out := t.TempDir()

	cases := []struct {
		name          string
		dir           string
		jobs          []models.PdfDocumentJob
		width, height float64
		want          error
	}{
		{"empty dir", "", jobs, 10, 10, models.ErrInvalidArguments},
		{"relative dir", "out", jobs, 10, 10, models.ErrInvalidArguments},
		{"zero width", out, jobs, 0, 10, models.ErrInvalidArguments},
		{"negative height", out, jobs, 10, -1, models.ErrInvalidArguments},
		{"no jobs", out, nil, 10, 10, models.ErrNoDataToProcess},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := New().BuildDocuments(context.Background(), tc.dir, tc.jobs, tc.width, tc.height)
			if !errors.Is(err, tc.want) {
				t.Fatalf("BuildDocuments() error = %v, want %v", err, tc.want)
			}
			if res == nil || res.Persisted() {
				t.Fatalf("BuildDocuments() result = %+v", res)
			}
		})
	}
	if names := listDir(t, out); len(names) != 0 {
		t.Fatalf("output dir = %v, want untouched", names)
	}
}

func TestBuildDocumentsPersistenceFailure(t *testing.T) {
	src := t.TempDir()
	jobs := []models.PdfDocumentJob{{DocumentName: "Doc", Pages: []models.PdfPageSpec{
		{ImagePath: writePNG(t, filepath.Join(src, "a.png"))},
	}}}
	missing := filepath.Join(t.TempDir(), "does", "not", "exist")

	_, err := New().BuildDocuments(context.Background(), missing, jobs, 10, 10)
	if !errors.Is(err, models.ErrPersistenceFailure) {
		t.Fatalf("BuildDocuments() error = %v, want ErrPersistenceFailure", err)
	}
}

func TestBuildDocumentsDeterministicOutput(t *testing.T) {
	src := t.TempDir()
	jobs := []models.PdfDocumentJob{{DocumentName: "Doc", Pages: []models.PdfPageSpec{
		{ImagePath: writePNG(t, filepath.Join(src, "a.png")), Text: "some recognized text"},
		{ImagePath: writeJPEG(t, filepath.Join(src, "b.jpeg")), Text: ""},
	}}}

	sizes := make([]int64, 2)
	for i := range sizes {
		out := t.TempDir()
		res, err := New(WithClock(fixedClock)).BuildDocuments(context.Background(), out, jobs, 300, 200)
		if err != nil {
			t.Fatalf("BuildDocuments() error = %v", err)
		}
		info, err := os.Stat(res.Documents[0].OutputPath)
		if err != nil {
			t.Fatal(err)
		}
		sizes[i] = info.Size()
	}
	if sizes[0] != sizes[1] {
		t.Fatalf("sizes differ between runs: %v", sizes)
	}
}

func TestBuildDocumentsConcurrentKeepsJobOrder(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	names := []string{"d0", "d1", "d2", "d3", "d4", "d5"}
	jobs := make([]models.PdfDocumentJob, 0, len(names))
	for _, name := range names {
		pages := make([]models.PdfPageSpec, 0, 3)
		for p := 0; p < 3; p++ {
			path := writePNG(t, filepath.Join(src, name+"-"+string(rune('a'+p))+".png"))
			pages = append(pages, models.PdfPageSpec{ImagePath: path, Text: name})
		}
		jobs = append(jobs, models.PdfDocumentJob{DocumentName: name, Pages: pages})
	}

	res, err := New(WithConcurrency(3)).BuildDocuments(context.Background(), out, jobs, 100, 100)
	if err != nil {
		t.Fatalf("BuildDocuments() error = %v", err)
	}
	if res.Written() != len(names) {
		t.Fatalf("Written() = %d, want %d", res.Written(), len(names))
	}
	for i, doc := range res.Documents {
		if doc.DocumentName != names[i] || doc.PageCount != 3 {
			t.Fatalf("document %d = %s with %d pages", i, doc.DocumentName, doc.PageCount)
		}
	}
}

func TestBuildDocumentsOptimize(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	jobs := []models.PdfDocumentJob{{DocumentName: "Doc", Pages: []models.PdfPageSpec{
		{ImagePath: writePNG(t, filepath.Join(src, "a.png")), Text: "alpha"},
		{ImagePath: writePNG(t, filepath.Join(src, "b.png")), Text: "beta"},
	}}}

	res, err := New(WithOptimize(true)).BuildDocuments(context.Background(), out, jobs, 100, 100)
	if err != nil {
		t.Fatalf("BuildDocuments() error = %v", err)
	}
	if n := pageCount(t, res.Documents[0].OutputPath); n != 2 {
		t.Fatalf("page count = %d, want 2", n)
	}
	if names := listDir(t, out); len(names) != 1 {
		t.Fatalf("output dir = %v, want one file", names)
	}
}

func TestTimesGlyphs(t *testing.T) {
	glyphs := TimesGlyphs()
	for _, r := range "Aa0 é€ü" {
		if !glyphs.Contains(r) {
			t.Errorf("TimesGlyphs() missing %q", r)
		}
	}
	for _, r := range "\n\t中" {
		if glyphs.Contains(r) {
			t.Errorf("TimesGlyphs() contains %q", r)
		}
	}
}

func TestPageOutcomeString(t *testing.T) {
	if got := PageSkippedUnsupportedType.String(); got != "skipped-unsupported-type" {
		t.Fatalf("String() = %q", got)
	}
}

func TestBuildDocumentsDrawsInvisibleTextLayer(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	long := strings.Repeat("searchable ", 14)
	jobs := []models.PdfDocumentJob{{DocumentName: "Doc", Pages: []models.PdfPageSpec{
		{ImagePath: writePNG(t, filepath.Join(src, "a.png")), Text: "Grüße,\ncafé  €5 中文"},
		{ImagePath: writePNG(t, filepath.Join(src, "b.png")), Text: long},
	}}}

	res, err := New(WithCompression(false), WithClock(fixedClock)).BuildDocuments(context.Background(), out, jobs, 300, 200)
	if err != nil {
		t.Fatalf("BuildDocuments() error = %v", err)
	}
	data, err := os.ReadFile(res.Documents[0].OutputPath)
	if err != nil {
		t.Fatal(err)
	}

	// Windows-1252 bytes; the CJK runes are not Times glyphs and are dropped.
	needle := []byte("(Gr\xfc\xdfe, caf\xe9 \x805) Tj")
	textAt := bytes.Index(data, needle)
	if textAt < 0 {
		t.Fatalf("content stream does not contain %q", needle)
	}
	if !bytes.Contains(data, []byte("<</Type /ExtGState /ca 0.000 /CA 0.000 /BM /Normal>>")) {
		t.Fatal("no fully transparent graphics state")
	}
	gsAt := bytes.LastIndex(data[:textAt], []byte("/GS1 gs"))
	if gsAt < 0 {
		t.Fatal("text is not drawn under the transparent graphics state")
	}
	if restore := bytes.Index(data[gsAt:textAt], []byte("/GS2 gs")); restore >= 0 {
		t.Fatal("opacity restored before the text was drawn")
	}

	// 154 runes wrap at 125: the second page carries two lines.
	first := strings.TrimSpace(strings.Repeat("searchable ", 12))
	second := strings.TrimSpace(strings.Repeat("searchable ", 2))
	for _, line := range []string{first, second} {
		if !bytes.Contains(data, []byte("("+line+") Tj")) {
			t.Fatalf("content stream does not contain line %q", line)
		}
	}
}
