package scanning

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind is the declared kind of an input file
type Kind int

const (
	// KindImage is a single photographed or scanned page
	KindImage Kind = iota + 1
	// KindDocument is a multi-page PDF
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindDocument:
		return "document"
	default:
		return "unknown"
	}
}

var kindsByExt = map[string]Kind{
	"png":  KindImage,
	"jpg":  KindImage,
	"jpeg": KindImage,
	"pdf":  KindDocument,
}

// KindFromFilename derives the input kind from a file name's extension
func KindFromFilename(name string) (Kind, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	kind, ok := kindsByExt[ext]
	if !ok {
		return 0, fmt.Errorf("%w: %q (expected png, jpg, jpeg or pdf)", ErrUnsupportedFormat, filepath.Base(name))
	}
	return kind, nil
}
