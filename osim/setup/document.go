// Package setup reads and rewrites leaf values in the XML setup documents
// consumed by the simulation engine (tool setups, task sets, external
// loads). Documents are edited in place and persisted by a full rewrite;
// comments and whitespace survive the round trip.
package setup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

var (
	// ErrFieldNotFound is returned when no element carries the requested tag.
	ErrFieldNotFound = errors.New("setup: field not found")
	// ErrAmbiguousField is returned when more than one element carries the tag.
	ErrAmbiguousField = errors.New("setup: field is ambiguous")
)

// Document is a parsed setup file.
type Document struct {
	Path string // file the document was loaded from; empty for in-memory documents
	doc  *etree.Document
}

// Load parses the XML document at path.
func Load(path string) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("parsing setup file %s: %w", path, err)
	}
	return &Document{Path: path, doc: doc}, nil
}

// Parse builds a document from XML text.
func Parse(text string) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(text); err != nil {
		return nil, fmt.Errorf("parsing setup document: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Save rewrites the whole document to path.
func (d *Document) Save(path string) error {
	if err := d.doc.WriteToFile(path); err != nil {
		return fmt.Errorf("writing setup file %s: %w", path, err)
	}
	return nil
}

// String renders the document as XML.
func (d *Document) String() string {
	s, err := d.doc.WriteToString()
	if err != nil {
		return ""
	}
	return s
}

// find returns every element named tag, at any depth.
func (d *Document) find(tag string) ([]*etree.Element, error) {
	if tag == "" || strings.ContainsAny(tag, "/[]@()'\" ") {
		return nil, fmt.Errorf("invalid tag %q", tag)
	}
	path, err := etree.CompilePath("//" + tag)
	if err != nil {
		return nil, fmt.Errorf("invalid tag %q: %w", tag, err)
	}
	return d.doc.FindElementsPath(path), nil
}

// element returns the single element named tag.
func (d *Document) element(tag string) (*etree.Element, error) {
	els, err := d.find(tag)
	if err != nil {
		return nil, err
	}
	switch len(els) {
	case 0:
		return nil, fmt.Errorf("%w: <%s>", ErrFieldNotFound, tag)
	case 1:
		return els[0], nil
	default:
		return nil, fmt.Errorf("%w: %d <%s> elements", ErrAmbiguousField, len(els), tag)
	}
}

// Field returns the raw text of the unique element named tag.
func (d *Document) Field(tag string) (string, error) {
	el, err := d.element(tag)
	if err != nil {
		return "", err
	}
	return el.Text(), nil
}

// FieldOptional is Field, but an absent element yields "" and no error.
func (d *Document) FieldOptional(tag string) (string, error) {
	v, err := d.Field(tag)
	if errors.Is(err, ErrFieldNotFound) {
		return "", nil
	}
	return v, err
}

// HasField reports whether at least one element is named tag.
func (d *Document) HasField(tag string) bool {
	els, err := d.find(tag)
	return err == nil && len(els) > 0
}

// SetField overwrites the text of the unique element named tag.
func (d *Document) SetField(tag, value string) error {
	el, err := d.element(tag)
	if err != nil {
		return err
	}
	el.SetText(value)
	return nil
}

// Attr returns attribute attr of the unique element named tag.
func (d *Document) Attr(tag, attr string) (string, error) {
	el, err := d.element(tag)
	if err != nil {
		return "", err
	}
	a := el.SelectAttr(attr)
	if a == nil {
		return "", fmt.Errorf("%w: attribute %q on <%s>", ErrFieldNotFound, attr, tag)
	}
	return a.Value, nil
}
