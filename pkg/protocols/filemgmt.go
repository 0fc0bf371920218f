package protocols

import (
	"errors"
	"fmt"

	"github.com/gregLibert/eid-sim/pkg/apdumatch"
	"github.com/gregLibert/eid-sim/pkg/card"
	"github.com/gregLibert/eid-sim/pkg/cardfs"
	"github.com/gregLibert/eid-sim/pkg/iso7816"
	"github.com/gregLibert/eid-sim/pkg/secstatus"
)

// KindCurrentFile is the mechanism kind recording the selected file.
const KindCurrentFile secstatus.Kind = "current-file"

// CurrentFile is installed in the FILE context by every successful selection.
type CurrentFile struct {
	Object cardfs.Object
}

func (c *CurrentFile) Kind() secstatus.Kind { return KindCurrentFile }
func (c *CurrentFile) InvalidatedBy(secstatus.Event) bool { return false }

func (c *CurrentFile) String() string {
	return fmt.Sprintf("current-file(%s)", c.Object.FID())
}

// FileManagement serves SELECT, READ BINARY, UPDATE BINARY and ERASE BINARY
// over a card file tree.
type FileManagement struct {
	mf    *cardfs.DedicatedFile
	specs apdumatch.Set
}

var _ card.Protocol = (*FileManagement)(nil)

// NewFileManagement creates the protocol for the tree rooted at mf.
func NewFileManagement(mf *cardfs.DedicatedFile) *FileManagement {
	unchained := apdumatch.Is(false)
	return &FileManagement{
		mf: mf,
		specs: apdumatch.Set{
			{ID: "select", Initial: true, Chaining: unchained, INS: apdumatch.Is(iso7816.INS_SELECT)},
			{ID: "read-binary", Chaining: unchained, INS: apdumatch.Is(iso7816.INS_READ_BINARY)},
			{ID: "update-binary", Chaining: unchained, INS: apdumatch.Is(iso7816.INS_UPDATE_BINARY)},
			{ID: "erase-binary", Chaining: unchained, INS: apdumatch.Is(iso7816.INS_ERASE_BINARY)},
		},
	}
}

func (f *FileManagement) Name() string { return "file-management" }
func (f *FileManagement) Specifications() apdumatch.Set { return f.specs }
func (f *FileManagement) Reset() {}

// MF returns the root of the served tree.
func (f *FileManagement) MF() *cardfs.DedicatedFile {
	return f.mf
}

func (f *FileManagement) Process(req *card.Request) *card.Response {
	switch req.Command.Instruction.Raw {
	case iso7816.INS_SELECT:
		return f.selectFile(req)
	case iso7816.INS_READ_BINARY:
		return f.readBinary(req)
	case iso7816.INS_UPDATE_BINARY:
		return f.updateBinary(req)
	case iso7816.INS_ERASE_BINARY:
		return f.eraseBinary(req)
	}
	return card.Fail(iso7816.SW_ERR_INS_INVALID)
}

// current returns the selected file, the MF when nothing was selected.
func (f *FileManagement) current(st card.StatusView) cardfs.Object {
	if m, ok := st.Lookup(secstatus.File, KindCurrentFile).(*CurrentFile); ok {
		return m.Object
	}
	return f.mf
}

// currentDF returns the selected DF, or the parent of the selected EF.
func (f *FileManagement) currentDF(st card.StatusView) *cardfs.DedicatedFile {
	switch obj := f.current(st).(type) {
	case *cardfs.DedicatedFile:
		return obj
	default:
		if p := obj.Parent(); p != nil {
			return p
		}
	}
	return f.mf
}

func (f *FileManagement) selectFile(req *card.Request) *card.Response {
	cmd := req.Command
	ctrl, occ, err := iso7816.ParseSelectP2(cmd.P2)
	if err != nil {
		return card.Fail(iso7816.SW_ERR_INCORRECT_PARAMS_P1P2)
	}
	if occ != iso7816.FirstOrOnlyOccurrence || ctrl == iso7816.ReturnFMD {
		return card.Fail(iso7816.SW_ERR_FUNC_NOT_SUPPORTED)
	}

	obj, err := f.resolve(req.Status, iso7816.SelectionMethod(cmd.P1), cmd.Data)
	if err != nil {
		return card.Fail(selectStatus(err))
	}

	resp := card.OK(nil)
	if ctrl != iso7816.ReturnNoData {
		resp.Data = obj.FCP().Bytes()
	}
	return resp.With(selection(obj))
}

// selection is the security status update of selecting obj.
func selection(obj cardfs.Object) secstatus.Update {
	u := secstatus.Update{
		Events:   []secstatus.Event{secstatus.EventFileSelected},
		Installs: []secstatus.Install{{Context: secstatus.File, Mechanism: &CurrentFile{Object: obj}}},
	}
	if df, ok := obj.(*cardfs.DedicatedFile); ok && len(df.Name()) > 0 {
		u.Events = append(u.Events, secstatus.EventApplicationSelected)
	}
	return u
}

var (
	errBadSelection      = errors.New("invalid selection data")
	errUnsupportedMethod = errors.New("unsupported selection method")
)

func selectStatus(err error) iso7816.StatusWord {
	switch {
	case errors.Is(err, errBadSelection):
		return iso7816.SW_ERR_INCORRECT_PARAMS_DATA
	case errors.Is(err, errUnsupportedMethod):
		return iso7816.SW_ERR_INCORRECT_PARAMS_P1P2
	}
	return statusFor(err)
}

func (f *FileManagement) resolve(st card.StatusView, method iso7816.SelectionMethod, data []byte) (cardfs.Object, error) {
	df := f.currentDF(st)

	switch method {
	case iso7816.SelectByFileID:
		if len(data) == 0 {
			return f.mf, nil
		}
		fid, err := cardfs.ParseFileID(data)
		if err != nil {
			return nil, errBadSelection
		}
		return f.byFileID(df, fid)

	case iso7816.SelectChildDF, iso7816.SelectEFUnderCurrentDF:
		fid, err := cardfs.ParseFileID(data)
		if err != nil {
			return nil, errBadSelection
		}
		child, ok := df.Child(fid)
		if !ok {
			return nil, fmt.Errorf("%w: %s under %s", cardfs.ErrNotFound, fid, df.FID())
		}
		if _, isDF := child.(*cardfs.DedicatedFile); isDF != (method == iso7816.SelectChildDF) {
			return nil, fmt.Errorf("%w: %s has the wrong type", cardfs.ErrNotFound, fid)
		}
		return child, nil

	case iso7816.SelectParentDF:
		if df.Parent() == nil {
			return nil, fmt.Errorf("%w: %s has no parent", cardfs.ErrNotFound, df.FID())
		}
		return df.Parent(), nil

	case iso7816.SelectByDFName:
		if len(data) == 0 {
			return nil, errBadSelection
		}
		app, ok := f.mf.FindByName(data)
		if !ok {
			return nil, fmt.Errorf("%w: DF name %X", cardfs.ErrNotFound, data)
		}
		return app, nil

	case iso7816.SelectPathFromMF:
		return f.byPath(f.mf, data)

	case iso7816.SelectPathFromCurrentDF:
		return f.byPath(df, data)
	}
	return nil, errUnsupportedMethod
}

// byFileID searches the MF, the current DF, its children, its parent and
// the children of its parent.
func (f *FileManagement) byFileID(df *cardfs.DedicatedFile, fid cardfs.FileID) (cardfs.Object, error) {
	if fid == cardfs.MasterFileID {
		return f.mf, nil
	}
	if df.FID() == fid {
		return df, nil
	}
	if child, ok := df.Child(fid); ok {
		return child, nil
	}
	if parent := df.Parent(); parent != nil {
		if parent.FID() == fid {
			return parent, nil
		}
		if sibling, ok := parent.Child(fid); ok {
			return sibling, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", cardfs.ErrNotFound, fid)
}

func (f *FileManagement) byPath(from *cardfs.DedicatedFile, path []byte) (cardfs.Object, error) {
	if len(path) == 0 || len(path)%2 != 0 {
		return nil, errBadSelection
	}

	var obj cardfs.Object = from
	for i := 0; i < len(path); i += 2 {
		df, ok := obj.(*cardfs.DedicatedFile)
		if !ok {
			return nil, fmt.Errorf("%w: path continues below EF %s", cardfs.ErrNotFound, obj.FID())
		}
		fid := cardfs.FileID{path[i], path[i+1]}
		if obj, ok = df.Child(fid); !ok {
			return nil, fmt.Errorf("%w: %s under %s", cardfs.ErrNotFound, fid, df.FID())
		}
	}
	return obj, nil
}

// targetEF resolves the EF of a binary command. With SFI addressing the
// referenced EF becomes the current file.
func (f *FileManagement) targetEF(req *card.Request) (*cardfs.ElementaryFile, iso7816.BinaryReference, secstatus.Update, iso7816.StatusWord) {
	ref := iso7816.ParseBinaryReference(req.Command.P1, req.Command.P2)

	if ref.SFI != 0 {
		ef, ok := f.currentDF(req.Status).ChildBySFI(ref.SFI)
		if !ok {
			return nil, ref, secstatus.Update{}, iso7816.SW_ERR_FILE_NOT_FOUND
		}
		return ef, ref, selection(ef), iso7816.SW_NO_ERROR
	}

	ef, ok := f.current(req.Status).(*cardfs.ElementaryFile)
	if !ok {
		return nil, ref, secstatus.Update{}, iso7816.SW_ERR_CMD_NOT_ALLOWED_NO_EF
	}
	return ef, ref, secstatus.Update{}, iso7816.SW_NO_ERROR
}

func (f *FileManagement) readBinary(req *card.Request) *card.Response {
	ef, ref, sel, sw := f.targetEF(req)
	if sw != iso7816.SW_NO_ERROR {
		return card.Fail(sw)
	}

	content, err := ef.Read(req.Status)
	if err != nil {
		return card.Fail(statusFor(err)).With(sel)
	}
	switch {
	case ref.Offset > len(content):
		return card.Fail(iso7816.SW_ERR_WRONG_P1P2).With(sel)
	case ref.Offset == len(content):
		return card.Fail(iso7816.SW_WARN_EOF_REACHED).With(sel)
	}

	end := len(content)
	if ne := req.Command.Ne; ne > 0 && ref.Offset+ne < end {
		end = ref.Offset + ne
	}
	return card.OK(content[ref.Offset:end]).With(sel)
}

func (f *FileManagement) updateBinary(req *card.Request) *card.Response {
	if len(req.Command.Data) == 0 {
		return card.Fail(iso7816.SW_ERR_WRONG_LENGTH)
	}
	ef, ref, sel, sw := f.targetEF(req)
	if sw != iso7816.SW_NO_ERROR {
		return card.Fail(sw)
	}

	if err := ef.Write(req.Status, ref.Offset, req.Command.Data); err != nil {
		return card.Fail(statusFor(err)).With(sel)
	}
	return card.OK(nil).With(sel)
}

func (f *FileManagement) eraseBinary(req *card.Request) *card.Response {
	ef, ref, sel, sw := f.targetEF(req)
	if sw != iso7816.SW_NO_ERROR {
		return card.Fail(sw)
	}

	if err := ef.Erase(req.Status, ref.Offset); err != nil {
		return card.Fail(statusFor(err)).With(sel)
	}
	return card.OK(nil).With(sel)
}
