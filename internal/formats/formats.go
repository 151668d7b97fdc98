package formats

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ExportFormat identifies a supported export target by its canonical
// lowercase token.
type ExportFormat string

const (
	STL     ExportFormat = "stl"
	ThreeMF ExportFormat = "3mf"
)

// SolidWorks document type discriminators, as understood by OpenDoc.
const (
	DocPart     = 1
	DocAssembly = 2
	DocDrawing  = 3
)

// Extension returns the output file extension, including the dot.
func (f ExportFormat) Extension() string {
	return "." + string(f)
}

// DisplayName returns a human-readable label for the format.
func (f ExportFormat) DisplayName() string {
	switch f {
	case STL:
		return "STL (Stereolithography)"
	case ThreeMF:
		return "3MF (3D Manufacturing Format)"
	default:
		return strings.ToUpper(string(f))
	}
}

func (f ExportFormat) String() string {
	return string(f)
}

// All returns every supported export format.
func All() []ExportFormat {
	return []ExportFormat{STL, ThreeMF}
}

// UnsupportedFormatError names the token that matched no known format.
type UnsupportedFormatError struct {
	Token string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format: %q (supported: stl, 3mf)", e.Token)
}

// UnsupportedSourceError names a source file extension that cannot be
// mapped to a SolidWorks document type.
type UnsupportedSourceError struct {
	Ext string
}

func (e *UnsupportedSourceError) Error() string {
	return fmt.Sprintf("unsupported source file type: %q", e.Ext)
}

// FromString resolves a single token to an ExportFormat. Matching is
// case-insensitive and whitespace-trimmed; "threemf" is accepted as an
// alias for 3MF.
func FromString(value string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "stl":
		return STL, nil
	case "3mf", "threemf":
		return ThreeMF, nil
	default:
		return "", &UnsupportedFormatError{Token: strings.TrimSpace(value)}
	}
}

// Parse resolves a comma-separated format spec such as "stl", "stl,3mf"
// or "all". An empty spec defaults to [STL]; callers never receive an
// empty list. When allowAll is set, the literal token "all" expands to
// every supported format regardless of other tokens present.
func Parse(spec string, allowAll bool) ([]ExportFormat, error) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	if spec == "" {
		return []ExportFormat{STL}, nil
	}

	tokens := strings.Split(spec, ",")
	if allowAll {
		for _, tok := range tokens {
			if strings.TrimSpace(tok) == "all" {
				return All(), nil
			}
		}
	}

	var parsed []ExportFormat
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		f, err := FromString(tok)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, f)
	}
	if len(parsed) == 0 {
		return []ExportFormat{STL}, nil
	}
	return parsed, nil
}

// SourceExtensions is the set of source file extensions eligible for
// conversion, keyed by lowercase extension.
var SourceExtensions = map[string]int{
	".sldprt": DocPart,
	".sldasm": DocAssembly,
}

// DocTypeForSource maps a source file path to its SolidWorks document
// type discriminator based on the file extension.
func DocTypeForSource(path string) (int, error) {
	ext := strings.ToLower(filepath.Ext(path))
	docType, ok := SourceExtensions[ext]
	if !ok {
		return 0, &UnsupportedSourceError{Ext: ext}
	}
	return docType, nil
}
