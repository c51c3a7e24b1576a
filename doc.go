// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zipkit implements reading and writing of PKZIP-compatible ZIP
// archives, including the ZIP64 extensions for files and archives that
// exceed the 32-bit size limits.
//
// Unlike archive/zip, zipkit is built around streaming: entries can be
// produced chunk-by-chunk without the caller knowing their final size in
// advance (Writer), and archives can be read either entirely from memory
// (BufferReader) or incrementally from an arbitrary-size random-access
// source with prefetch (Reader).
//
// Compression is a host concern: zipkit ships a default Store (identity)
// transform and a default Deflate transform backed by
// github.com/klauspost/compress/flate, but callers may register their own
// Compressor/Decompressor per method.
//
// See https://www.pkware.com/appnote for the binary format this package
// implements.
//
// This package does not support disk spanning, encryption, or compression
// methods other than Store and Deflate.
package zipkit
