// Package perso loads personalization profiles: the file tree of the card,
// the access conditions of every EF and the trust point of terminal
// authentication, written in YAML.
//
//	date: 2024-06-01
//	trust_point: 7F2182...
//	files:
//	  - fid: "011C"
//	    sfi: 0x1C
//	    content: "31 00"
//	    read: [always]
//	  - fid: "7F00"
//	    name: E80704007F00070302
//	    files:
//	      - fid: "0101"
//	        sfi: 1
//	        text: "DG1"
//	        read: ["ta:0"]
package perso

import (
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/logger"
	"gopkg.in/yaml.v3"

	"github.com/gregLibert/eid-sim/pkg/card"
	"github.com/gregLibert/eid-sim/pkg/cardfs"
	"github.com/gregLibert/eid-sim/pkg/cvc"
	"github.com/gregLibert/eid-sim/pkg/protocols"
	"github.com/gregLibert/eid-sim/pkg/secstatus"
)

var ErrInvalidProfile = errors.New("perso: invalid profile")

// Profile is the personalization of one card.
type Profile struct {
	// Date fixes the card date (YYYY-MM-DD). The host clock is used when
	// empty.
	Date string `yaml:"date,omitempty"`
	// TrustPoint is the hex encoded CVCA certificate. Terminal
	// authentication is only offered when it is set.
	TrustPoint string `yaml:"trust_point,omitempty"`
	Files      []File `yaml:"files"`
}

// File describes a DF or an EF below the MF. Entries with children or a
// name are DFs unless Type says otherwise.
type File struct {
	Type string `yaml:"type,omitempty"`
	FID  string `yaml:"fid"`
	// Name is the hex encoded DF name (AID).
	Name  string `yaml:"name,omitempty"`
	Files []File `yaml:"files,omitempty"`

	SFI byte `yaml:"sfi,omitempty"`
	// Content is hex encoded, Text is taken as is. At most one is set.
	Content string   `yaml:"content,omitempty"`
	Text    string   `yaml:"text,omitempty"`
	Read    []string `yaml:"read,omitempty"`
	Write   []string `yaml:"write,omitempty"`
	Erase   []string `yaml:"erase,omitempty"`
}

// IsDF reports whether the entry describes a dedicated file.
func (f *File) IsDF() bool {
	switch strings.ToLower(f.Type) {
	case "df":
		return true
	case "ef":
		return false
	}
	return len(f.Files) > 0 || f.Name != ""
}

// Load reads and validates the profile stored at path.
func Load(path string) (*Profile, error) {
	// #nosec G304 - profile path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML profile.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the profile by building it once.
func (p *Profile) Validate() error {
	if _, err := p.clock(); err != nil {
		return err
	}
	if _, err := p.trustPoint(); err != nil {
		return err
	}
	_, err := p.Tree()
	return err
}

// Tree builds the file tree described by the profile.
func (p *Profile) Tree() (*cardfs.DedicatedFile, error) {
	mf := cardfs.NewMF()
	if err := addFiles(mf, p.Files, "3F00"); err != nil {
		return nil, err
	}
	return mf, nil
}

func addFiles(df *cardfs.DedicatedFile, files []File, path string) error {
	for i := range files {
		f := &files[i]
		obj, err := f.build(path)
		if err != nil {
			return err
		}
		if err := df.Add(obj); err != nil {
			return fmt.Errorf("%w: %s/%s: %w", ErrInvalidProfile, path, f.FID, err)
		}
		if sub, ok := obj.(*cardfs.DedicatedFile); ok {
			if err := addFiles(sub, f.Files, path+"/"+f.FID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *File) build(path string) (cardfs.Object, error) {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s/%s: %s", ErrInvalidProfile, path, f.FID, fmt.Sprintf(format, args...))
	}

	raw, err := decodeHex(f.FID)
	if err != nil {
		return nil, fail("file identifier: %v", err)
	}
	fid, err := cardfs.ParseFileID(raw)
	if err != nil {
		return nil, fail("%v", err)
	}

	if f.IsDF() {
		if f.Content != "" || f.Text != "" || f.SFI != 0 {
			return nil, fail("a DF has no content or SFI")
		}
		name, err := decodeHex(f.Name)
		if err != nil {
			return nil, fail("name: %v", err)
		}
		return cardfs.NewDF(fid, name), nil
	}

	if len(f.Files) > 0 {
		return nil, fail("an EF has no children")
	}
	if f.Content != "" && f.Text != "" {
		return nil, fail("content and text are exclusive")
	}
	content := []byte(f.Text)
	if f.Content != "" {
		if content, err = decodeHex(f.Content); err != nil {
			return nil, fail("content: %v", err)
		}
	}

	var access cardfs.Access
	for _, rule := range []struct {
		op    string
		in    []string
		conds *[]secstatus.Condition
	}{
		{"read", f.Read, &access.Read},
		{"write", f.Write, &access.Write},
		{"erase", f.Erase, &access.Erase},
	} {
		for _, s := range rule.in {
			cond, err := protocols.ParseCondition(s)
			if err != nil {
				return nil, fail("%s: %v", rule.op, err)
			}
			*rule.conds = append(*rule.conds, cond)
		}
	}

	ef, err := cardfs.NewEF(fid, f.SFI, content, access)
	if err != nil {
		return nil, fail("%v", err)
	}
	return ef, nil
}

func (p *Profile) clock() (func() time.Time, error) {
	if p.Date == "" {
		return time.Now, nil
	}
	date, err := time.Parse(time.DateOnly, p.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: date: %w", ErrInvalidProfile, err)
	}
	return func() time.Time { return date }, nil
}

func (p *Profile) trustPoint() (*cvc.Certificate, error) {
	if p.TrustPoint == "" {
		return nil, nil
	}
	raw, err := decodeHex(p.TrustPoint)
	if err != nil {
		return nil, fmt.Errorf("%w: trust point: %w", ErrInvalidProfile, err)
	}
	cert, err := cvc.ParseEncoded(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: trust point: %w", ErrInvalidProfile, err)
	}
	if cert.CHAT().Role != cvc.RoleCVCA {
		return nil, fmt.Errorf("%w: trust point %s is not a CVCA certificate", ErrInvalidProfile, cert.HolderReference())
	}
	return cert, nil
}

// Build personalizes a card: file management over the profile tree,
// followed by terminal authentication when a trust point is configured.
func (p *Profile) Build() (*card.Processor, error) {
	mf, err := p.Tree()
	if err != nil {
		return nil, err
	}
	now, err := p.clock()
	if err != nil {
		return nil, err
	}
	tp, err := p.trustPoint()
	if err != nil {
		return nil, err
	}

	proc := card.NewProcessor(protocols.NewFileManagement(mf))
	if tp != nil {
		proc.Register(protocols.NewTerminalAuthentication(tp, protocols.WithClock(now)))
	} else {
		logger.Warning("perso: no trust point configured, terminal authentication disabled")
	}

	count := 0
	mf.Walk(func(cardfs.Object, int) { count++ })
	logger.V(1).Infof("perso: card built with %d files", count)
	return proc, nil
}

// decodeHex accepts hex with optional whitespace: "7F 00", "7f00".
func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.Join(strings.Fields(s), ""))
}

//go:embed default.yaml
var defaultProfile []byte

// Default returns the built-in profile.
func Default() *Profile {
	p, err := Parse(defaultProfile)
	if err != nil {
		panic(fmt.Sprintf("built-in profile: %v", err))
	}
	return p
}
