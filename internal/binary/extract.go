package binary

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/ZebulonRouseFrantzich/embedmq/pkg/log"
)

// ArchiveFormat identifies a supported archive encoding.
type ArchiveFormat int

const (
	FormatUnknown ArchiveFormat = iota
	FormatTarGz
	FormatTarXz
	FormatZip
)

// String returns the string representation of the archive format
func (f ArchiveFormat) String() string {
	switch f {
	case FormatTarGz:
		return "tar.gz"
	case FormatTarXz:
		return "tar.xz"
	case FormatZip:
		return "zip"
	default:
		return "unknown"
	}
}

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicXz   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZip  = []byte{'P', 'K', 0x03, 0x04}
)

// Extractor handles archive extraction
type Extractor struct {
	logger log.Logger
}

// NewExtractor creates a new extractor
func NewExtractor(logger log.Logger) *Extractor {
	return &Extractor{logger: log.OrNoop(logger)}
}

// Extract unpacks archivePath into destRoot and returns destRoot/appFolder.
// When that folder already exists and is non-empty, extraction is skipped.
// A failed extraction leaves whatever was written in place.
func (e *Extractor) Extract(archivePath, destRoot, appFolder string) (string, error) {
	installed := filepath.Join(destRoot, appFolder)

	if dirPopulated(installed) {
		e.logger.Debug("artifact already extracted", "path", installed)
		return installed, nil
	}

	format, err := DetectFormat(archivePath)
	if err != nil {
		return "", &ExtractionError{Archive: archivePath, Dest: destRoot, Err: err}
	}

	if err := os.MkdirAll(destRoot, 0755); err != nil {
		return "", &ExtractionError{Archive: archivePath, Dest: destRoot, Err: fmt.Errorf("create dest dir: %w", err)}
	}

	e.logger.Info("extracting artifact", "archive", archivePath, "format", format.String(), "dest", destRoot)

	switch format {
	case FormatTarGz, FormatTarXz:
		err = e.extractTar(archivePath, destRoot, format)
	case FormatZip:
		err = e.extractZip(archivePath, destRoot)
	}
	if err != nil {
		return "", &ExtractionError{Archive: archivePath, Dest: destRoot, Err: err}
	}

	if !dirPopulated(installed) {
		return "", &ExtractionError{
			Archive: archivePath,
			Dest:    destRoot,
			Err:     fmt.Errorf("archive did not contain expected folder %s", appFolder),
		}
	}

	e.logger.Info("extraction complete", "path", installed)
	return installed, nil
}

// DetectFormat picks the archive format from the file name, falling back to
// the leading magic bytes.
func DetectFormat(archivePath string) (ArchiveFormat, error) {
	name := strings.ToLower(filepath.Base(archivePath))
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(name, ".tar.xz"), strings.HasSuffix(name, ".txz"):
		return FormatTarXz, nil
	case strings.HasSuffix(name, ".zip"):
		return FormatZip, nil
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return FormatUnknown, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	header := make([]byte, 8)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return FormatUnknown, fmt.Errorf("read archive header: %w", err)
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, magicGzip):
		return FormatTarGz, nil
	case bytes.HasPrefix(header, magicXz):
		return FormatTarXz, nil
	case bytes.HasPrefix(header, magicZip):
		return FormatZip, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Base(archivePath))
	}
}

// extractTar extracts a gzip- or xz-compressed tarball into destDir.
func (e *Extractor) extractTar(archivePath, destDir string, format ArchiveFormat) error {
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	var stream io.Reader
	switch format {
	case FormatTarGz:
		gzipReader, err := gzip.NewReader(archiveFile)
		if err != nil {
			return fmt.Errorf("create gzip reader: %w", err)
		}
		defer gzipReader.Close()
		stream = gzipReader
	case FormatTarXz:
		xzReader, err := xz.NewReader(archiveFile)
		if err != nil {
			return fmt.Errorf("create xz reader: %w", err)
		}
		stream = xzReader
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedArchive, format)
	}

	tarReader := tar.NewReader(stream)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		target, err := safeJoin(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := makeDir(destDir, target); err != nil {
				return err
			}

		case tar.TypeReg:
			if err := writeFile(destDir, target, tarReader, os.FileMode(header.Mode).Perm()); err != nil {
				return err
			}

		case tar.TypeSymlink:
			if err := writeSymlink(destDir, target, header.Linkname); err != nil {
				return err
			}

		default:
			// Skip other types (char devices, block devices, etc.)
			continue
		}
	}

	return nil
}

// extractZip extracts a zip archive into destDir.
func (e *Extractor) extractZip(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	for _, f := range reader.File {
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := makeDir(destDir, target); err != nil {
				return err
			}

		case mode&os.ModeSymlink != 0:
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("open zip entry %s: %w", f.Name, err)
			}
			link, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return fmt.Errorf("read symlink %s: %w", f.Name, err)
			}
			if err := writeSymlink(destDir, target, string(link)); err != nil {
				return err
			}

		default:
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("open zip entry %s: %w", f.Name, err)
			}
			perm := mode.Perm()
			if perm == 0 {
				perm = 0644
			}
			err = writeFile(destDir, target, rc, perm)
			rc.Close()
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// writeFile creates target with perm and copies r into it.
func writeFile(destDir, target string, r io.Reader, perm os.FileMode) error {
	if err := makeParent(destDir, target); err != nil {
		return err
	}

	outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}

	if _, err := io.Copy(outFile, r); err != nil {
		outFile.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}

	if err := outFile.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}

	// The umask may have stripped execute bits requested by the archive.
	return os.Chmod(target, perm)
}

// safeJoin joins name onto destDir, rejecting entries that escape it.
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, name)
	if target != filepath.Clean(destDir) &&
		!strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal file path: %s", name)
	}
	return target, nil
}

// makeDir creates the directory entry target inside destDir.
func makeDir(destDir, target string) error {
	if err := makeParent(destDir, target); err != nil {
		return err
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", target, err)
	}
	return nil
}

// writeSymlink creates target pointing at linkname. The link must be
// relative and must resolve inside destDir.
func writeSymlink(destDir, target, linkname string) error {
	if linkname == "" || filepath.IsAbs(linkname) || filepath.VolumeName(linkname) != "" {
		return fmt.Errorf("illegal symlink target: %s -> %s", target, linkname)
	}
	if err := makeParent(destDir, target); err != nil {
		return err
	}

	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", destDir, err)
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(target))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", filepath.Dir(target), err)
	}
	if !within(root, filepath.Join(parent, linkname)) {
		return fmt.Errorf("illegal symlink target: %s -> %s", target, linkname)
	}

	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("create symlink %s: %w", target, err)
	}
	return nil
}

// makeParent creates the parent directory of target and checks that, with
// symlinks already extracted resolved, it is still inside destDir.
func makeParent(destDir, target string) error {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}

	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", destDir, err)
	}
	resolved, err := filepath.EvalSymlinks(parent)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", parent, err)
	}
	if !within(root, resolved) {
		return fmt.Errorf("illegal file path: %s resolves outside %s", target, destDir)
	}
	return nil
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && !filepath.IsAbs(rel)
}

// dirPopulated reports whether path is a directory with at least one entry.
func dirPopulated(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.IsDir() {
		return false
	}

	names, err := f.Readdirnames(1)
	return err == nil && len(names) > 0
}

// SetExecutable sets executable permissions on a file
func SetExecutable(path string) error {
	if err := os.Chmod(path, 0755); err != nil {
		return fmt.Errorf("set executable: %w", err)
	}
	return nil
}
