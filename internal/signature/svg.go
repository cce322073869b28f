// Package signature holds checks applied to submitted signature artifacts.
package signature

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultMaxBytes bounds an artifact when no limit is configured.
const DefaultMaxBytes = 512 * 1024

var (
	ErrEmpty    = errors.New("signature is empty")
	ErrTooLarge = errors.New("signature exceeds size limit")
	ErrNotSVG   = errors.New("signature is not an svg document")
)

// ValidateSVG checks that content is non-empty, no larger than maxBytes and
// well-formed XML whose root element is <svg>. maxBytes <= 0 uses DefaultMaxBytes.
func ValidateSVG(content []byte, maxBytes int) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return ErrEmpty
	}
	if len(content) > maxBytes {
		return fmt.Errorf("%w (%d > %d bytes)", ErrTooLarge, len(content), maxBytes)
	}
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.Strict = true
	var root *xml.StartElement
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotSVG, err)
		}
		if se, ok := tok.(xml.StartElement); ok && root == nil {
			se := se.Copy()
			root = &se
		}
	}
	if root == nil || !strings.EqualFold(root.Name.Local, "svg") {
		return ErrNotSVG
	}
	return nil
}
