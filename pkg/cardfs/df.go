package cardfs

import (
	"bytes"
	"fmt"

	"github.com/gregLibert/eid-sim/pkg/tlv"
)

// DedicatedFile is a directory of the card. An application is a DF with a name.
type DedicatedFile struct {
	fid      FileID
	name     []byte
	parent   *DedicatedFile
	children []Object
}

// NewDF creates a dedicated file. name may be nil.
func NewDF(fid FileID, name []byte) *DedicatedFile {
	return &DedicatedFile{fid: fid, name: append([]byte(nil), name...)}
}

// NewMF creates the master file.
func NewMF() *DedicatedFile {
	return NewDF(MasterFileID, nil)
}

func (d *DedicatedFile) FID() FileID { return d.fid }
func (d *DedicatedFile) Parent() *DedicatedFile { return d.parent }
func (d *DedicatedFile) setParent(p *DedicatedFile) { d.parent = p }

// Name returns the DF name (AID), or nil.
func (d *DedicatedFile) Name() []byte {
	return append([]byte(nil), d.name...)
}

// Children returns the direct children in insertion order.
func (d *DedicatedFile) Children() []Object {
	return append([]Object(nil), d.children...)
}

// Add attaches child to d. File identifiers and short file identifiers must
// be unique among siblings, DF names must be unique in the tree.
func (d *DedicatedFile) Add(child Object) error {
	if child.Parent() != nil {
		return fmt.Errorf("%w: %s already has a parent", ErrDuplicate, child.FID())
	}
	if _, ok := d.Child(child.FID()); ok {
		return fmt.Errorf("%w: FID %s under %s", ErrDuplicate, child.FID(), d.fid)
	}

	switch c := child.(type) {
	case *ElementaryFile:
		if c.sfi != 0 {
			if _, ok := d.ChildBySFI(c.sfi); ok {
				return fmt.Errorf("%w: SFI %02X under %s", ErrDuplicate, c.sfi, d.fid)
			}
		}
	case *DedicatedFile:
		if c == d.Root() {
			return fmt.Errorf("%w: %s cannot contain itself", ErrDuplicate, c.fid)
		}
		if len(c.name) > 0 {
			if _, ok := d.Root().FindByName(c.name); ok {
				return fmt.Errorf("%w: DF name %X", ErrDuplicate, c.name)
			}
		}
	}

	child.setParent(d)
	d.children = append(d.children, child)
	return nil
}

// Root returns the top of the tree d belongs to.
func (d *DedicatedFile) Root() *DedicatedFile {
	root := d
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// Child returns the direct child with the given file identifier.
func (d *DedicatedFile) Child(fid FileID) (Object, bool) {
	for _, c := range d.children {
		if c.FID() == fid {
			return c, true
		}
	}
	return nil, false
}

// ChildBySFI returns the direct EF child with the given short file identifier.
func (d *DedicatedFile) ChildBySFI(sfi byte) (*ElementaryFile, bool) {
	if sfi == 0 {
		return nil, false
	}
	for _, c := range d.children {
		if ef, ok := c.(*ElementaryFile); ok && ef.sfi == sfi {
			return ef, true
		}
	}
	return nil, false
}

// FindByName searches d and its descendants for the DF named name.
func (d *DedicatedFile) FindByName(name []byte) (*DedicatedFile, bool) {
	if len(d.name) > 0 && bytes.Equal(d.name, name) {
		return d, true
	}
	for _, c := range d.children {
		if df, ok := c.(*DedicatedFile); ok {
			if hit, ok := df.FindByName(name); ok {
				return hit, true
			}
		}
	}
	return nil, false
}

// Walk calls fn for d and every descendant, depth first.
func (d *DedicatedFile) Walk(fn func(obj Object, depth int)) {
	d.walk(fn, 0)
}

func (d *DedicatedFile) walk(fn func(Object, int), depth int) {
	fn(d, depth)
	for _, c := range d.children {
		if df, ok := c.(*DedicatedFile); ok {
			df.walk(fn, depth+1)
			continue
		}
		fn(c, depth+1)
	}
}

// FCP returns '62' { '82' descriptor, '83' FID, '84' name }.
func (d *DedicatedFile) FCP() *tlv.Node {
	fcp := tlv.NewConstructed(TagFCP,
		tlv.NewPrimitive(TagFileDescriptor, []byte{DescriptorDF}),
		tlv.NewPrimitive(TagFileID, d.fid[:]),
	)
	if len(d.name) > 0 {
		fcp.Children = append(fcp.Children, tlv.NewPrimitive(TagDFName, d.name))
	}
	return fcp
}

func (d *DedicatedFile) String() string {
	if len(d.name) > 0 {
		return fmt.Sprintf("DF %s (%X)", d.fid, d.name)
	}
	return fmt.Sprintf("DF %s", d.fid)
}
