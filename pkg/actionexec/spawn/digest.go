package spawn

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/buildtool/buildtool/pkg/artifact"
)

func fileCopyBuf(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}

// digestFile computes an output's content digest after the command has run.
func digestFile(path string) (artifact.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return artifact.Digest{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return artifact.Digest{}, err
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return artifact.Digest{}, err
	}

	return artifact.Digest{
		HashFunc: "sha256",
		Hex:      hex.EncodeToString(h.Sum(nil)),
		Size:     info.Size(),
	}, nil
}
