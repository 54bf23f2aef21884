package rewrite

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// ToUTF8 returns raw as UTF-8. Valid UTF-8 passes through untouched;
// anything else is decoded with the detected charset.
func ToUTF8(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}

	label := ""
	if _, name, certain := charset.DetermineEncoding(raw, "text/html"); certain {
		label = name
	} else if best, err := chardet.NewHtmlDetector().DetectBest(raw); err == nil {
		label = best.Charset
	}
	if label == "" {
		label = "windows-1252"
	}

	r, err := charset.NewReaderLabel(label, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", label, err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", label, err)
	}
	return string(decoded), nil
}
