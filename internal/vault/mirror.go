package vault

import (
	"errors"
	"fmt"
	"io"

	"safekeep/internal/sk"
)

// Mirror copies every artifact to several vaults. Reads are served by the
// first vault that has the artifact.
type Mirror struct {
	vaults []sk.Vault
}

// NewMirror creates a vault that fans out to vaults.
func NewMirror(vaults ...sk.Vault) *Mirror {
	return &Mirror{vaults: vaults}
}

// Put stores the artifact in every vault. r must be an io.Seeker when
// there is more than one vault, since each upload reads it from the start.
func (m *Mirror) Put(key string, r io.Reader, size int64) error {
	seeker, seekable := r.(io.Seeker)
	if len(m.vaults) > 1 && !seekable {
		return fmt.Errorf("mirroring %s: reader is not seekable", key)
	}

	var start int64
	if seekable {
		var err error
		if start, err = seeker.Seek(0, io.SeekCurrent); err != nil {
			return fmt.Errorf("mirroring %s: %w", key, err)
		}
	}

	for i, v := range m.vaults {
		if i > 0 {
			if _, err := seeker.Seek(start, io.SeekStart); err != nil {
				return fmt.Errorf("mirroring %s: %w", key, err)
			}
		}
		if err := v.Put(key, r, size); err != nil {
			return fmt.Errorf("vault %d: %w", i, err)
		}
	}
	return nil
}

// Get returns the artifact from the first vault that can serve it.
func (m *Mirror) Get(key string, w io.Writer) error {
	var errs []error
	for i, v := range m.vaults {
		err := v.Get(key, w)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("vault %d: %w", i, err))
	}
	if len(errs) == 0 {
		return fmt.Errorf("artifact %s: %w", key, sk.ErrNotFound)
	}
	return errors.Join(errs...)
}

// Delete removes the artifact from every vault.
func (m *Mirror) Delete(key string) error {
	var errs []error
	for i, v := range m.vaults {
		if err := v.Delete(key); err != nil {
			errs = append(errs, fmt.Errorf("vault %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// ValidateSetup validates every vault.
func (m *Mirror) ValidateSetup() error {
	var errs []error
	for i, v := range m.vaults {
		if err := v.ValidateSetup(); err != nil {
			errs = append(errs, fmt.Errorf("vault %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

var _ sk.Vault = (*Mirror)(nil)
