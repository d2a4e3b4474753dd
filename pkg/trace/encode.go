package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	prettyjson "github.com/hokaccha/go-prettyjson"
)

// Format selects the serialization of a Document.
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
	FormatCBOR   Format = "cbor"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatPretty, FormatCBOR:
		return f, nil
	default:
		return "", fmt.Errorf("trace: unknown format %q (want json, pretty or cbor)", s)
	}
}

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("trace: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// Encode writes doc to w in the given format.
func Encode(w io.Writer, doc *Document, format Format) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(doc, "", "  ")
	case FormatPretty:
		data, err = prettyjson.Marshal(doc)
	case FormatCBOR:
		data, err = cborEncMode.Marshal(doc)
	default:
		return fmt.Errorf("trace: unknown format %q", format)
	}
	if err != nil {
		return fmt.Errorf("trace: encode %s: %w", format, err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if format != FormatCBOR {
		_, err = io.WriteString(w, "\n")
	}
	return err
}

// Decode reads a JSON or CBOR document. Entry.EventData comes back as a
// map keyed by the JSON field names.
func Decode(r io.Reader, format Format) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc Document
	switch format {
	case FormatJSON, FormatPretty:
		err = json.Unmarshal(data, &doc)
	case FormatCBOR:
		err = cborDecMode.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("trace: unknown format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("trace: decode %s: %w", format, err)
	}
	return &doc, nil
}
