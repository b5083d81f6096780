package fsview

import (
	"github.com/buildtool/buildtool/pkg/berrors"
	"github.com/buildtool/buildtool/pkg/evaluator"
)

// View wires the FileKey, DirectoryListingKey, and FileDigestKey evaluator
// Functions onto an Evaluator, backed by the real filesystem. Paths are
// resolved exactly as given by callers (absolute, or relative to the
// process's working directory); it is the package loader's responsibility
// to pass paths rooted at the workspace.
type View struct {
	digest *DigestPolicy
}

// New creates a View. hint may be nil to disable the digest fast path.
func New(hint DigestHintReader) *View {
	return &View{digest: NewDigestPolicy(hint)}
}

// Register binds this View's Functions onto ev.
func (v *View) Register(ev *evaluator.Evaluator) {
	ev.Register("FileKey", v.evaluateFile)
	ev.Register("DirectoryListingKey", v.evaluateDirectoryListing)
	ev.Register("FileDigestKey", v.evaluateFileDigest)
}

func (v *View) evaluateFile(ctx *evaluator.Context) (evaluator.Value, error) {
	key, ok := ctx.Key().(FileKey)
	if !ok {
		return nil, berrors.NewInternal("evaluateFile called for non-FileKey", nil)
	}

	fv, err := statPath(key.Path)
	if err != nil {
		return nil, berrors.NewTransient("stat failed", err).WithResource(key.Path)
	}

	if fv.Kind == KindRegular {
		digestValue, err := ctx.Request(FileDigestKey{Path: key.Path})
		if err != nil {
			return nil, err
		}
		fv.Digest = digestValue.(Digest)
	} else if fv.Kind != KindAbsent {
		fv.Digest = proxyDigest(fv)
	}

	return fv, nil
}

func (v *View) evaluateDirectoryListing(ctx *evaluator.Context) (evaluator.Value, error) {
	key, ok := ctx.Key().(DirectoryListingKey)
	if !ok {
		return nil, berrors.NewInternal("evaluateDirectoryListing called for non-DirectoryListingKey", nil)
	}

	listing, err := listDirectory(key.Path)
	if err != nil {
		return nil, berrors.NewTransient("directory listing failed", err).WithResource(key.Path)
	}
	return listing, nil
}

func (v *View) evaluateFileDigest(ctx *evaluator.Context) (evaluator.Value, error) {
	key, ok := ctx.Key().(FileDigestKey)
	if !ok {
		return nil, berrors.NewInternal("evaluateFileDigest called for non-FileDigestKey", nil)
	}

	d, err := v.digest.Digest(key.Path)
	if err != nil {
		return nil, berrors.NewTransient("digest computation failed", err).WithResource(key.Path)
	}
	return d, nil
}
