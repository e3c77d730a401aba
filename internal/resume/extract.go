// Package resume turns an uploaded PDF resume into plain text.
package resume

import (
	"bytes"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

var (
	// ErrNoText is returned for any PDF that yields no extractable text.
	// Every extraction failure matches it, malformed documents included.
	ErrNoText = errors.New("failed to extract text from PDF - document may be image-based or blank")

	// ErrMalformed narrows ErrNoText to documents the PDF reader could not parse.
	ErrMalformed = errors.New("failed to parse PDF - file may be malformed or corrupt")
)

// parseError reports a reader failure. It matches both ErrMalformed and
// ErrNoText but only prints the parse message.
type parseError struct {
	cause error
}

func malformed(cause error) error {
	return &parseError{cause: cause}
}

func (e *parseError) Error() string {
	return ErrMalformed.Error() + ": " + e.cause.Error()
}

func (e *parseError) Unwrap() []error {
	return []error{ErrMalformed, ErrNoText, e.cause}
}

// ExtractBytes extracts the text of every page in blob.
func ExtractBytes(blob []byte) (string, error) {
	return ExtractText(bytes.NewReader(blob), int64(len(blob)))
}

// ExtractText extracts the text of every page readable from r.
func ExtractText(r io.ReaderAt, size int64) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = malformed(errors.Errorf("ExtractText panic recover: %v", rec))
		}
	}()
	if size <= 0 {
		return "", ErrNoText
	}

	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return "", malformed(err)
	}
	if doc.NumPage() == 0 {
		return "", ErrNoText
	}
	plain, err := doc.GetPlainText()
	if err != nil {
		return "", malformed(err)
	}
	var buf strings.Builder
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", malformed(err)
	}

	text = strings.TrimSpace(buf.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
