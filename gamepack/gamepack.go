// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package gamepack handles versioned game package archives: the files
// a developer uploads per game version, extracted into a fresh runtime
// directory for every launch.
//
// Three archive formats are accepted, selected by filename suffix:
// .zip (the format the stock tooling produces), .tar.zst, and
// .tar.lz4. Entry paths are validated against directory traversal —
// a hostile package must not be able to write outside its runtime
// directory.
package gamepack

import (
	"archive/tar"
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// maxFileSize caps a single extracted file. Packages travel in 4 MiB
// wire frames, so any single entry claiming more is hostile.
const maxFileSize = 64 << 20

// Extract unpacks the archive at archivePath into dest, which must
// already exist and be empty. The context is checked between entries
// so a launch deadline can abort a pathological archive.
func Extract(ctx context.Context, archivePath, dest string) error {
	switch {
	case strings.HasSuffix(archivePath, ".zip"):
		return extractZip(ctx, archivePath, dest)
	case strings.HasSuffix(archivePath, ".tar.zst"):
		file, err := os.Open(archivePath)
		if err != nil {
			return fmt.Errorf("opening package %s: %w", archivePath, err)
		}
		defer file.Close()
		decoder, err := zstd.NewReader(file)
		if err != nil {
			return fmt.Errorf("opening zstd stream: %w", err)
		}
		defer decoder.Close()
		return extractTar(ctx, decoder, dest)
	case strings.HasSuffix(archivePath, ".tar.lz4"):
		file, err := os.Open(archivePath)
		if err != nil {
			return fmt.Errorf("opening package %s: %w", archivePath, err)
		}
		defer file.Close()
		return extractTar(ctx, lz4.NewReader(file), dest)
	default:
		return fmt.Errorf("unsupported package format: %s", filepath.Base(archivePath))
	}
}

func extractZip(ctx context.Context, archivePath, dest string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening package %s: %w", archivePath, err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := secureJoin(dest, entry.Name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", entry.Name, err)
			}
			continue
		}
		if err := writeEntry(target, entry.Mode(), func() (io.ReadCloser, error) { return entry.Open() }); err != nil {
			return fmt.Errorf("extracting %s: %w", entry.Name, err)
		}
	}
	return nil
}

func extractTar(ctx context.Context, stream io.Reader, dest string) error {
	reader := tar.NewReader(stream)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}
		target, err := secureJoin(dest, header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			mode := os.FileMode(header.Mode) & 0o777
			if err := writeEntry(target, mode, func() (io.ReadCloser, error) {
				return io.NopCloser(reader), nil
			}); err != nil {
				return fmt.Errorf("extracting %s: %w", header.Name, err)
			}
		default:
			// Symlinks, devices, and the rest have no business in a
			// game package.
			return fmt.Errorf("package entry %s has unsupported type %d", header.Name, header.Typeflag)
		}
	}
}

// secureJoin resolves an archive entry name under dest, rejecting
// absolute paths and traversal outside dest.
func secureJoin(dest, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("package entry %s has an absolute path", name)
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("package entry %s escapes the runtime directory", name)
	}
	return target, nil
}

func writeEntry(target string, mode os.FileMode, open func() (io.ReadCloser, error)) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	source, err := open()
	if err != nil {
		return err
	}
	defer source.Close()

	if mode&0o700 == 0 {
		mode |= 0o600
	}
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	written, err := io.Copy(file, io.LimitReader(source, maxFileSize+1))
	if err != nil {
		file.Close()
		return err
	}
	if written > maxFileSize {
		file.Close()
		return fmt.Errorf("entry exceeds %d byte limit", maxFileSize)
	}
	return file.Close()
}

// Blake3Hex returns the lowercase hex BLAKE3-256 digest of data. This
// is the content hash recorded for package integrity.
func Blake3Hex(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data. Kept on
// the download wire format for clients that verify with stock tooling.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
